package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixChannel     = "payword:channel:"
	keyPrefixAccount     = "payword:account:"
	keyHubState          = "payword:hubstate:main"
	keySchemaVersion     = "payword:metadata:schema_version"
	keyWriterLease       = "payword:metadata:writer_lease"
	currentSchemaVersion = "v1"

	defaultLeaseTTL = 30 * time.Second

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetChannels = "payword:channels:index"
)

var (
	// ErrWriterLeaseHeld is returned when another hub already owns the key prefix
	ErrWriterLeaseHeld = errors.New("redis key prefix is leased by another hub")
	// ErrWriterLeaseLost is returned by writes after the lease could not be renewed
	ErrWriterLeaseLost = errors.New("redis writer lease lost")
)

// Lease scripts only touch the key while it still holds our token
var (
	renewLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisPersistence is a persistence implementation using Redis.
//
// The hub keeps its single writer lock in process, so exactly one hub may
// write a key prefix. NewRedisPersistence takes a writer lease on the prefix
// (SET NX with a TTL, renewed in the background) and fails with
// ErrWriterLeaseHeld while another instance holds it. If renewal fails the
// store refuses further writes with ErrWriterLeaseLost. Run several hubs by
// giving each its own KeyPrefix.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool

	leaseToken string
	leaseTTL   time.Duration
	leaseLost  atomic.Bool
	stopLease  chan struct{}
	leaseDone  chan struct{}
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, this prefix is prepended to all keys, e.g., "hub1:" would result in
	// keys like "hub1:payword:channel:0x...".
	KeyPrefix string
	// LeaseTTL bounds how long a crashed hub blocks its successor; defaults to 30s
	LeaseTTL time.Duration
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	rp := &RedisPersistence{
		client:     client,
		logger:     logger,
		keyPrefix:  cfg.KeyPrefix,
		leaseToken: uuid.NewString(),
		leaseTTL:   leaseTTL,
		stopLease:  make(chan struct{}),
		leaseDone:  make(chan struct{}),
	}

	if err := rp.acquireLease(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	if err := rp.initSchema(ctx); err != nil {
		rp.releaseLease(ctx)
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go rp.runLeaseRenewal()

	if cfg.KeyPrefix != "" {
		logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)
	} else {
		logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB)
	}

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) channelKey(id string) string {
	return r.prefixKey(keyPrefixChannel + id)
}

// acquireLease claims the writer lease for this key prefix
func (r *RedisPersistence) acquireLease(ctx context.Context) error {
	ok, err := r.client.SetNX(ctx, r.prefixKey(keyWriterLease), r.leaseToken, r.leaseTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire writer lease: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: prefix %q", ErrWriterLeaseHeld, r.keyPrefix)
	}
	return nil
}

// renewLease extends the lease; once it fails the store stays read-only
func (r *RedisPersistence) renewLease(ctx context.Context) error {
	res, err := renewLeaseScript.Run(ctx, r.client, []string{r.prefixKey(keyWriterLease)},
		r.leaseToken, r.leaseTTL.Milliseconds()).Int64()
	if err == nil && res == 1 {
		return nil
	}
	r.leaseLost.Store(true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriterLeaseLost, err)
	}
	return ErrWriterLeaseLost
}

func (r *RedisPersistence) releaseLease(ctx context.Context) {
	if err := releaseLeaseScript.Run(ctx, r.client, []string{r.prefixKey(keyWriterLease)}, r.leaseToken).Err(); err != nil {
		r.logger.Sugar().Warnw("Failed to release writer lease", "error", err)
	}
}

func (r *RedisPersistence) runLeaseRenewal() {
	defer close(r.leaseDone)

	ticker := time.NewTicker(r.leaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopLease:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.leaseTTL/3)
			err := r.renewLease(ctx)
			cancel()
			if err != nil {
				r.logger.Sugar().Errorw("Writer lease lost, refusing further writes", "error", err)
				return
			}
		}
	}
}

// checkWritable must be called with r.mu held
func (r *RedisPersistence) checkWritable() error {
	if r.closed {
		return persistence.ErrClosed
	}
	if r.leaseLost.Load() {
		return ErrWriterLeaseLost
	}
	return nil
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveChannel persists a channel record
func (r *RedisPersistence) SaveChannel(ch *types.Channel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil Channel")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkWritable(); err != nil {
		return err
	}

	ctx := context.Background()

	data, err := persistence.MarshalChannel(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal Channel: %w", err)
	}

	// Record and index entry are written together
	id := ch.ID.Hex()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.channelKey(id), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetChannels), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save Channel: %w", err)
	}

	return nil
}

// LoadChannel retrieves a channel by ID
func (r *RedisPersistence) LoadChannel(id common.Hash) (*types.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx := context.Background()

	data, err := r.client.Get(ctx, r.channelKey(id.Hex())).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Channel: %w", err)
	}

	ch, err := persistence.UnmarshalChannel(id, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Channel: %w", err)
	}

	return ch, nil
}

// ListChannels returns all channels sorted by ID
func (r *RedisPersistence) ListChannels() ([]*types.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx := context.Background()
	indexKey := r.prefixKey(keySetChannels)

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list Channel ids: %w", err)
	}

	if len(ids) == 0 {
		return []*types.Channel{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.channelKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Channels: %w", err)
	}

	channels := make([]*types.Channel, 0, len(values))
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for Channel", "key", keys[i])
			continue
		}

		ch, err := persistence.UnmarshalChannel(common.HexToHash(ids[i]), []byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal Channel, skipping",
				"key", keys[i], "error", err)
			continue
		}

		channels = append(channels, ch)
	}

	sort.Slice(channels, func(i, j int) bool {
		return bytes.Compare(channels[i].ID[:], channels[j].ID[:]) < 0
	})

	return channels, nil
}

// SaveAccount persists an account balance
func (r *RedisPersistence) SaveAccount(addr common.Address, balance *uint256.Int) error {
	if balance == nil {
		return fmt.Errorf("cannot save nil balance")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkWritable(); err != nil {
		return err
	}

	key := r.prefixKey(keyPrefixAccount + strings.ToLower(addr.Hex()))
	if err := r.client.Set(context.Background(), key, persistence.MarshalBalance(balance), 0).Err(); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// LoadAccount retrieves an account balance
func (r *RedisPersistence) LoadAccount(addr common.Address) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	key := r.prefixKey(keyPrefixAccount + strings.ToLower(addr.Hex()))
	data, err := r.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	return persistence.UnmarshalBalance(data)
}

// SaveHubState persists hub state
func (r *RedisPersistence) SaveHubState(state *persistence.HubState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil HubState")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.checkWritable(); err != nil {
		return err
	}

	data, err := persistence.MarshalHubState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal HubState: %w", err)
	}

	if err := r.client.Set(context.Background(), r.prefixKey(keyHubState), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save HubState: %w", err)
	}
	return nil
}

// LoadHubState retrieves hub state
func (r *RedisPersistence) LoadHubState() (*persistence.HubState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	data, err := r.client.Get(context.Background(), r.prefixKey(keyHubState)).Bytes()
	if err == redis.Nil {
		return nil, nil // First run
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load HubState: %w", err)
	}

	return persistence.UnmarshalHubState(data)
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopLease)
	<-r.leaseDone

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	r.releaseLease(ctx)
	cancel()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.leaseLost.Load() {
		return ErrWriterLeaseLost
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
