package util

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ChannelRecordSize is the ABI encoded size of a channel record: five head
// words followed by the three word extension.
const ChannelRecordSize = 8 * 32

var (
	// channelRecordArgs matches the public getter of the channel mapping:
	// (recipient, sender, balance, totalWordCount, commitment).
	channelRecordArgs = mustArguments("address", "address", "uint256", "uint256", "bytes32")

	// channelExtensionArgs carries the fields the on-chain struct keeps
	// implicitly: (variant, status, initialWordCount).
	channelExtensionArgs = mustArguments("uint8", "uint8", "uint256")
)

// ChannelRecord is the persisted per-channel state in its on-chain field order.
type ChannelRecord struct {
	Recipient        common.Address
	Sender           common.Address
	Balance          *big.Int
	TotalWordCount   *big.Int
	Commitment       [32]byte
	Variant          uint8
	Status           uint8
	InitialWordCount *big.Int
}

func mustArguments(typeNames ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(typeNames))
	for _, name := range typeNames {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(fmt.Sprintf("invalid abi type %s: %v", name, err))
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// PackUint256 returns v as a 32-byte big-endian word, the abi.encodePacked
// form of a uint256.
func PackUint256(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}

// EncodePackedChannelSeed returns abi.encodePacked(sender, recipient, nonce).
func EncodePackedChannelSeed(sender, recipient common.Address, nonce uint64) []byte {
	data := make([]byte, 0, common.AddressLength*2+32)
	data = append(data, sender.Bytes()...)
	data = append(data, recipient.Bytes()...)
	data = append(data, PackUint256(nonce)...)
	return data
}

// EncodeChannelRecord ABI encodes a channel record.
func EncodeChannelRecord(rec *ChannelRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot encode nil channel record")
	}
	balance := rec.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	total := rec.TotalWordCount
	if total == nil {
		total = new(big.Int)
	}
	initial := rec.InitialWordCount
	if initial == nil {
		initial = new(big.Int)
	}

	head, err := channelRecordArgs.Pack(rec.Recipient, rec.Sender, balance, total, rec.Commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to pack channel record: %w", err)
	}
	ext, err := channelExtensionArgs.Pack(rec.Variant, rec.Status, initial)
	if err != nil {
		return nil, fmt.Errorf("failed to pack channel record extension: %w", err)
	}
	return append(head, ext...), nil
}

// DecodeChannelRecord reverses EncodeChannelRecord.
func DecodeChannelRecord(data []byte) (*ChannelRecord, error) {
	if len(data) != ChannelRecordSize {
		return nil, fmt.Errorf("invalid channel record length: %d (expected %d)", len(data), ChannelRecordSize)
	}
	headSize := len(channelRecordArgs) * 32

	head, err := channelRecordArgs.Unpack(data[:headSize])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack channel record: %w", err)
	}
	ext, err := channelExtensionArgs.Unpack(data[headSize:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack channel record extension: %w", err)
	}

	rec := &ChannelRecord{}
	var ok bool
	if rec.Recipient, ok = head[0].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected recipient type %T", head[0])
	}
	if rec.Sender, ok = head[1].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected sender type %T", head[1])
	}
	if rec.Balance, ok = head[2].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected balance type %T", head[2])
	}
	if rec.TotalWordCount, ok = head[3].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected word count type %T", head[3])
	}
	if rec.Commitment, ok = head[4].([32]byte); !ok {
		return nil, fmt.Errorf("unexpected commitment type %T", head[4])
	}
	if rec.Variant, ok = ext[0].(uint8); !ok {
		return nil, fmt.Errorf("unexpected variant type %T", ext[0])
	}
	if rec.Status, ok = ext[1].(uint8); !ok {
		return nil, fmt.Errorf("unexpected status type %T", ext[1])
	}
	if rec.InitialWordCount, ok = ext[2].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected initial word count type %T", ext[2])
	}
	return rec, nil
}
