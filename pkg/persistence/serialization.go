package persistence

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/util"
)

// MarshalChannel serializes a Channel to its ABI record layout.
// The ID is not part of the record; stores key records by ID.
func MarshalChannel(ch *types.Channel) ([]byte, error) {
	if ch == nil {
		return nil, fmt.Errorf("cannot marshal nil Channel")
	}

	balance := new(big.Int)
	if ch.Balance != nil {
		balance = ch.Balance.ToBig()
	}

	data, err := util.EncodeChannelRecord(&util.ChannelRecord{
		Recipient:        ch.Recipient,
		Sender:           ch.Sender,
		Balance:          balance,
		TotalWordCount:   new(big.Int).SetUint64(ch.TotalWordCount),
		Commitment:       ch.Commitment,
		Variant:          uint8(ch.Variant),
		Status:           uint8(ch.Status),
		InitialWordCount: new(big.Int).SetUint64(ch.InitialWordCount),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode channel record: %w", err)
	}
	return data, nil
}

// UnmarshalChannel deserializes a Channel record stored under id.
func UnmarshalChannel(id common.Hash, data []byte) (*types.Channel, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	rec, err := util.DecodeChannelRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode channel record: %w", err)
	}

	balance, overflow := uint256.FromBig(rec.Balance)
	if overflow {
		return nil, fmt.Errorf("channel balance overflows uint256")
	}
	if !rec.TotalWordCount.IsUint64() || !rec.InitialWordCount.IsUint64() {
		return nil, fmt.Errorf("channel word count overflows uint64")
	}

	return &types.Channel{
		ID:               id,
		Recipient:        rec.Recipient,
		Sender:           rec.Sender,
		Balance:          balance,
		TotalWordCount:   rec.TotalWordCount.Uint64(),
		Commitment:       rec.Commitment,
		Variant:          types.Variant(rec.Variant),
		Status:           types.Status(rec.Status),
		InitialWordCount: rec.InitialWordCount.Uint64(),
	}, nil
}

// MarshalBalance serializes a balance as a 32-byte big-endian word.
func MarshalBalance(balance *uint256.Int) []byte {
	if balance == nil {
		balance = new(uint256.Int)
	}
	b := balance.Bytes32()
	return b[:]
}

// UnmarshalBalance deserializes a 32-byte big-endian balance.
func UnmarshalBalance(data []byte) (*uint256.Int, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid balance length %d", len(data))
	}
	return new(uint256.Int).SetBytes32(data), nil
}

// MarshalHubState serializes HubState to JSON bytes.
func MarshalHubState(hs *HubState) ([]byte, error) {
	if hs == nil {
		return nil, fmt.Errorf("cannot marshal nil HubState")
	}

	return json.Marshal(hs)
}

// UnmarshalHubState deserializes HubState from JSON bytes.
func UnmarshalHubState(data []byte) (*HubState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var hs HubState
	if err := json.Unmarshal(data, &hs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to HubState: %w", err)
	}

	return &hs, nil
}
