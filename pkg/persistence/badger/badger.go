package badger

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixChannel     = "channel:"
	keyPrefixAccount     = "account:"
	keyHubState          = "hubstate:main"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a production-ready persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newZapBadgerLogger(logger)
	opts.SyncWrites = true // fsync on every write
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func channelKey(id common.Hash) []byte {
	return []byte(keyPrefixChannel + id.Hex())
}

func accountKey(addr common.Address) []byte {
	return []byte(keyPrefixAccount + addr.Hex())
}

// get returns a copy of the value at key, or nil if the key is missing
func (b *BadgerPersistence) get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

func (b *BadgerPersistence) set(key, value []byte) error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

// SaveChannel persists a channel record
func (b *BadgerPersistence) SaveChannel(ch *types.Channel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil Channel")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalChannel(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal Channel: %w", err)
	}

	return b.set(channelKey(ch.ID), data)
}

// LoadChannel retrieves a channel by ID
func (b *BadgerPersistence) LoadChannel(id common.Hash) (*types.Channel, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	data, err := b.get(channelKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load Channel: %w", err)
	}
	if data == nil {
		return nil, nil // Not found
	}

	ch, err := persistence.UnmarshalChannel(id, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Channel: %w", err)
	}

	return ch, nil
}

// ListChannels returns all channels sorted by ID
func (b *BadgerPersistence) ListChannels() ([]*types.Channel, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	channels := make([]*types.Channel, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixChannel)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			id := common.HexToHash(key[len(keyPrefixChannel):])
			ch, err := persistence.UnmarshalChannel(id, data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal Channel, skipping",
					"key", key, "error", err)
				continue
			}

			channels = append(channels, ch)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list Channels: %w", err)
	}

	sort.Slice(channels, func(i, j int) bool {
		return bytes.Compare(channels[i].ID[:], channels[j].ID[:]) < 0
	})

	return channels, nil
}

// SaveAccount persists an account balance
func (b *BadgerPersistence) SaveAccount(addr common.Address, balance *uint256.Int) error {
	if balance == nil {
		return fmt.Errorf("cannot save nil balance")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.set(accountKey(addr), persistence.MarshalBalance(balance))
}

// LoadAccount retrieves an account balance
func (b *BadgerPersistence) LoadAccount(addr common.Address) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	data, err := b.get(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return persistence.UnmarshalBalance(data)
}

// SaveHubState persists hub state
func (b *BadgerPersistence) SaveHubState(state *persistence.HubState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil HubState")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalHubState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal HubState: %w", err)
	}

	return b.set([]byte(keyHubState), data)
}

// LoadHubState retrieves hub state
func (b *BadgerPersistence) LoadHubState() (*persistence.HubState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	data, err := b.get([]byte(keyHubState))
	if err != nil {
		return nil, fmt.Errorf("failed to load HubState: %w", err)
	}
	if data == nil {
		return nil, nil // First run
	}

	return persistence.UnmarshalHubState(data)
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
