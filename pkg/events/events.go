// Package events carries notifications about channel lifecycle changes.
package events

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/types"
)

// Event is implemented by every notification the hub emits
type Event interface {
	Name() string
	Channel() common.Hash
}

// ChannelCreated is emitted once a channel's deposit is escrowed
type ChannelCreated struct {
	ChannelID  common.Hash
	Sender     common.Address
	Recipient  common.Address
	Amount     *uint256.Int
	WordCount  uint64
	Commitment common.Hash
	Variant    types.Variant
}

func (e ChannelCreated) Name() string         { return "ChannelCreated" }
func (e ChannelCreated) Channel() common.Hash { return e.ChannelID }

// ChannelRedeemed is emitted for a redemption that leaves the channel open
type ChannelRedeemed struct {
	ChannelID      common.Hash
	Recipient      common.Address
	Amount         *uint256.Int
	WordsRedeemed  uint64
	RemainingWords uint64
}

func (e ChannelRedeemed) Name() string         { return "ChannelRedeemed" }
func (e ChannelRedeemed) Channel() common.Hash { return e.ChannelID }

// ChannelClosed is emitted when a redemption closes the channel
type ChannelClosed struct {
	ChannelID     common.Hash
	Recipient     common.Address
	Amount        *uint256.Int
	Sender        common.Address
	Refund        *uint256.Int
	WordsRedeemed uint64
}

func (e ChannelClosed) Name() string         { return "ChannelClosed" }
func (e ChannelClosed) Channel() common.Hash { return e.ChannelID }

// Sink receives events. Emit must not block for long; it runs on the write path.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes every event to a zap logger
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	fields := []interface{}{"event", ev.Name(), "channelId", ev.Channel().Hex()}
	switch e := ev.(type) {
	case ChannelCreated:
		fields = append(fields,
			"sender", e.Sender.Hex(),
			"recipient", e.Recipient.Hex(),
			"amount", e.Amount.Dec(),
			"wordCount", e.WordCount,
			"commitment", e.Commitment.Hex(),
			"variant", e.Variant.String(),
		)
	case ChannelRedeemed:
		fields = append(fields,
			"recipient", e.Recipient.Hex(),
			"amount", e.Amount.Dec(),
			"wordsRedeemed", e.WordsRedeemed,
			"remainingWords", e.RemainingWords,
		)
	case ChannelClosed:
		fields = append(fields,
			"recipient", e.Recipient.Hex(),
			"amount", e.Amount.Dec(),
			"sender", e.Sender.Hex(),
			"refund", e.Refund.Dec(),
			"wordsRedeemed", e.WordsRedeemed,
		)
	}
	s.logger.Sugar().Infow("Channel event", fields...)
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events in emission order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Multi fans an event out to several sinks in order
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
