package channel

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/ethword-go/pkg/hashchain"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/merkle"
	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/verifier"
)

var (
	sender    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func newHashChainChannel(t *testing.T, n int, deposit *uint256.Int) (*types.Channel, []common.Hash) {
	t.Helper()
	chain, err := hashchain.Build(hashing.Keccak256, []byte("segredo"), n)
	require.NoError(t, err)
	ch, err := New(common.HexToHash("0xc1"), &Params{
		Sender:     sender,
		Recipient:  recipient,
		Deposit:    deposit,
		WordCount:  uint64(n),
		Commitment: chain[n-1],
		Variant:    types.VariantHashChain,
	}, 0)
	require.NoError(t, err)
	return ch, chain
}

func newMerkleChannel(t *testing.T, n int, deposit *uint256.Int) (*types.Channel, []common.Hash, *merkle.MerkleTree) {
	t.Helper()
	chain, err := hashchain.Build(hashing.Keccak256, []byte("segredo"), n)
	require.NoError(t, err)
	tree, err := merkle.BuildWordTree(hashing.Keccak256, chain)
	require.NoError(t, err)
	ch, err := New(common.HexToHash("0xc2"), &Params{
		Sender:     sender,
		Recipient:  recipient,
		Deposit:    deposit,
		WordCount:  uint64(n),
		Commitment: tree.Root,
		Variant:    types.VariantMerkle,
	}, 0)
	require.NoError(t, err)
	return ch, chain, tree
}

func merkleClaim(t *testing.T, chain []common.Hash, tree *merkle.MerkleTree, index int) types.MerkleClaim {
	t.Helper()
	proof, err := tree.GenerateProof(index)
	require.NoError(t, err)
	return types.MerkleClaim{Word: chain[index], Index: uint64(index), Proof: proof.Proof}
}

func TestParamsValidate(t *testing.T) {
	valid := func() *Params {
		return &Params{
			Sender:     sender,
			Recipient:  recipient,
			Deposit:    uint256.NewInt(1),
			WordCount:  1,
			Commitment: common.HexToHash("0x01"),
			Variant:    types.VariantHashChain,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero recipient", func(p *Params) { p.Recipient = common.Address{} }},
		{"zero sender", func(p *Params) { p.Sender = common.Address{} }},
		{"zero word count", func(p *Params) { p.WordCount = 0 }},
		{"word count above default limit", func(p *Params) { p.WordCount = DefaultMaxWordCount + 1 }},
		{"unbounded word count", func(p *Params) { p.WordCount = 1 << 62 }},
		{"zero commitment", func(p *Params) { p.Commitment = common.Hash{} }},
		{"zero deposit", func(p *Params) { p.Deposit = uint256.NewInt(0) }},
		{"nil deposit", func(p *Params) { p.Deposit = nil }},
		{"unknown variant", func(p *Params) { p.Variant = types.VariantUnknown }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			require.ErrorIs(t, p.Validate(), ErrInvalidParameters)
			_, err := New(common.Hash{}, p, 0)
			require.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestParamsValidateLimit(t *testing.T) {
	p := &Params{
		Sender:     sender,
		Recipient:  recipient,
		Deposit:    uint256.NewInt(1),
		WordCount:  100,
		Commitment: common.HexToHash("0x01"),
		Variant:    types.VariantMerkle,
	}
	require.NoError(t, p.ValidateLimit(100))
	require.ErrorIs(t, p.ValidateLimit(99), ErrInvalidParameters)

	_, err := New(common.HexToHash("0xc3"), p, 10)
	require.ErrorIs(t, err, ErrInvalidParameters)

	// an operator may raise the cap past the default
	p.WordCount = DefaultMaxWordCount + 1
	require.ErrorIs(t, p.Validate(), ErrInvalidParameters)
	ch, err := New(common.HexToHash("0xc3"), p, DefaultMaxWordCount*2)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxWordCount+1, ch.TotalWordCount)
}

func TestNewCopiesDeposit(t *testing.T) {
	deposit := uint256.NewInt(50)
	ch, _ := newHashChainChannel(t, 3, deposit)
	deposit.SetUint64(1)
	assert.Equal(t, uint64(50), ch.Balance.Uint64())
	assert.Equal(t, types.StatusOpen, ch.Status)
	assert.Equal(t, uint64(3), ch.InitialWordCount)
}

func TestComputePayout(t *testing.T) {
	tests := []struct {
		balance *uint256.Int
		words   uint64
		total   uint64
		want    *uint256.Int
	}{
		{ether(3000), 10, 10, ether(3000)},
		{ether(3000), 1, 10, ether(300)},
		{ether(3000), 8, 10, ether(2400)},
		{uint256.NewInt(100), 1, 3, uint256.NewInt(33)},
		{uint256.NewInt(100), 2, 3, uint256.NewInt(66)},
		{uint256.NewInt(5), 1, 10, uint256.NewInt(0)},
		{uint256.NewInt(5), 1, 0, uint256.NewInt(0)},
		{new(uint256.Int).SetAllOne(), 1, 2, new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 1)},
	}
	for _, tt := range tests {
		got := ComputePayout(tt.balance, tt.words, tt.total)
		assert.Equal(t, tt.want.Dec(), got.Dec(), "%s * %d / %d", tt.balance.Dec(), tt.words, tt.total)
		assert.True(t, got.Cmp(tt.balance) <= 0)
	}
}

// Mirrors the reference scenario: secret "segredo", ten words, 3000 ether.
func TestSettleHashChainScenario(t *testing.T) {
	v := verifier.NewHashChainVerifier(hashing.Keccak256)

	t.Run("first word pays everything", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		s, err := Settle(ch, recipient, types.HashChainClaim{Word: chain[0], WordCount: 10}, v, PolicyAlwaysClose)
		require.NoError(t, err)
		assert.Equal(t, ether(3000), s.Payout)
		assert.True(t, s.Refund.IsZero())
		assert.True(t, s.Closed)
		assert.True(t, s.After.Balance.IsZero())
		assert.Equal(t, uint64(0), s.After.TotalWordCount)
	})

	t.Run("tip pays one word", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		s, err := Settle(ch, recipient, types.HashChainClaim{Word: chain[9], WordCount: 1}, v, PolicyAlwaysClose)
		require.NoError(t, err)
		assert.Equal(t, ether(300), s.Payout)
		assert.Equal(t, ether(2700), s.Refund)
		assert.Equal(t, uint64(9), s.After.TotalWordCount)
	})

	t.Run("eight words", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		s, err := Settle(ch, recipient, types.HashChainClaim{Word: chain[2], WordCount: 8}, v, PolicyAlwaysClose)
		require.NoError(t, err)
		assert.Equal(t, ether(2400), s.Payout)
		assert.Equal(t, ether(600), s.Refund)
		assert.Equal(t, chain[2], s.After.Commitment)
		assert.Equal(t, types.StatusClosed, s.After.Status)
	})

	t.Run("hash chain closes under partial policy", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		s, err := Settle(ch, recipient, types.HashChainClaim{Word: chain[8], WordCount: 2}, v, PolicyPartial)
		require.NoError(t, err)
		assert.True(t, s.Closed)
	})
}

func TestSettleDoesNotMutateInput(t *testing.T) {
	ch, chain := newHashChainChannel(t, 10, ether(3000))
	before := ch.Clone()

	s, err := Settle(ch, recipient, types.HashChainClaim{Word: chain[0], WordCount: 10}, verifier.NewHashChainVerifier(nil), PolicyAlwaysClose)
	require.NoError(t, err)
	assert.Equal(t, before, ch)
	assert.Equal(t, before, s.Before)
	assert.NotSame(t, ch.Balance, s.After.Balance)
}

func TestSettleErrors(t *testing.T) {
	v := verifier.NewHashChainVerifier(nil)

	t.Run("unauthorized", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		for _, caller := range []common.Address{sender, stranger, {}} {
			_, err := Settle(ch, caller, types.HashChainClaim{Word: chain[0], WordCount: 10}, v, PolicyAlwaysClose)
			require.ErrorIs(t, err, ErrUnauthorized)
		}
	})

	t.Run("unauthorized before verification", func(t *testing.T) {
		ch, _ := newHashChainChannel(t, 10, ether(3000))
		_, err := Settle(ch, stranger, types.HashChainClaim{WordCount: 0}, v, PolicyAlwaysClose)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("closed before unauthorized", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		ch.Status = types.StatusClosed
		_, err := Settle(ch, stranger, types.HashChainClaim{Word: chain[0], WordCount: 10}, v, PolicyAlwaysClose)
		require.ErrorIs(t, err, ErrChannelClosed)
	})

	t.Run("replay after close", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		claim := types.HashChainClaim{Word: chain[5], WordCount: 5}
		s, err := Settle(ch, recipient, claim, v, PolicyAlwaysClose)
		require.NoError(t, err)
		_, err = Settle(s.After, recipient, claim, v, PolicyAlwaysClose)
		require.ErrorIs(t, err, ErrChannelClosed)
	})

	t.Run("verifier error passes through", func(t *testing.T) {
		ch, chain := newHashChainChannel(t, 10, ether(3000))
		_, err := Settle(ch, recipient, types.HashChainClaim{Word: chain[1], WordCount: 10}, v, PolicyAlwaysClose)
		require.ErrorIs(t, err, verifier.ErrInvalidPreimageChain)
	})

	t.Run("nil channel", func(t *testing.T) {
		_, err := Settle(nil, recipient, types.HashChainClaim{}, v, PolicyAlwaysClose)
		require.ErrorIs(t, err, ErrChannelNotFound)
	})
}

func TestSettleMerkleAlwaysClose(t *testing.T) {
	ch, chain, tree := newMerkleChannel(t, 4, uint256.NewInt(1000))
	s, err := Settle(ch, recipient, merkleClaim(t, chain, tree, 0), verifier.NewMerkleVerifier(nil), PolicyAlwaysClose)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), s.WordsRedeemed)
	assert.Equal(t, uint64(250), s.Payout.Uint64())
	assert.Equal(t, uint64(750), s.Refund.Uint64())
	assert.True(t, s.Closed)
	assert.Equal(t, tree.Root, s.After.Commitment)
	assert.Equal(t, uint64(3), s.After.TotalWordCount)
}

func TestSettleMerklePartial(t *testing.T) {
	deposit := uint256.NewInt(100)
	ch, chain, tree := newMerkleChannel(t, 3, deposit)
	v := verifier.NewMerkleVerifier(nil)
	paid := new(uint256.Int)

	// 100 * 1 / 3 = 33
	s, err := Settle(ch, recipient, merkleClaim(t, chain, tree, 0), v, PolicyPartial)
	require.NoError(t, err)
	assert.False(t, s.Closed)
	assert.Equal(t, uint64(33), s.Payout.Uint64())
	assert.True(t, s.Refund.IsZero())
	assert.Equal(t, uint64(67), s.After.Balance.Uint64())
	assert.Equal(t, uint64(2), s.After.TotalWordCount)
	paid.Add(paid, s.Payout)

	_, err = Settle(s.After, recipient, merkleClaim(t, chain, tree, 0), v, PolicyPartial)
	require.ErrorIs(t, err, verifier.ErrZeroWordCount)

	// 67 * 1 / 2 = 33
	s, err = Settle(s.After, recipient, merkleClaim(t, chain, tree, 1), v, PolicyPartial)
	require.NoError(t, err)
	assert.False(t, s.Closed)
	assert.Equal(t, uint64(33), s.Payout.Uint64())
	paid.Add(paid, s.Payout)

	// last word takes the whole remainder and closes
	s, err = Settle(s.After, recipient, merkleClaim(t, chain, tree, 2), v, PolicyPartial)
	require.NoError(t, err)
	assert.True(t, s.Closed)
	assert.Equal(t, uint64(34), s.Payout.Uint64())
	paid.Add(paid, s.Payout)

	assert.Equal(t, deposit, paid)
	assert.Equal(t, uint64(0), s.After.TotalWordCount)
	assert.True(t, s.After.Balance.IsZero())
}

func TestSettleConservation(t *testing.T) {
	for n := 1; n <= 7; n++ {
		for idx := 0; idx < n; idx++ {
			ch, chain, tree := newMerkleChannel(t, n, uint256.NewInt(1001))
			s, err := Settle(ch, recipient, merkleClaim(t, chain, tree, idx), verifier.NewMerkleVerifier(nil), PolicyPartial)
			require.NoError(t, err)

			sum := new(uint256.Int).Add(s.Payout, s.Refund)
			sum.Add(sum, s.After.Balance)
			assert.Equal(t, ch.Balance, sum, "n=%d idx=%d", n, idx)
			assert.Equal(t, ch.TotalWordCount-s.WordsRedeemed, s.After.TotalWordCount)
			assert.True(t, s.After.Balance.Cmp(ch.Balance) <= 0)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyAlwaysClose, p)

	p, err = ParsePolicy("partial")
	require.NoError(t, err)
	assert.Equal(t, PolicyPartial, p)
	assert.Equal(t, "partial", p.String())

	_, err = ParsePolicy("never")
	require.Error(t, err)
}
