package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/ethword-go/internal/tests"
	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/client"
	"github.com/Layr-Labs/ethword-go/pkg/events"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	badgerPersistence "github.com/Layr-Labs/ethword-go/pkg/persistence/badger"
	"github.com/Layr-Labs/ethword-go/pkg/persistence/memory"
	"github.com/Layr-Labs/ethword-go/pkg/payword"
	"github.com/Layr-Labs/ethword-go/pkg/testutil"
	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/wordsource"
)

func openChannel(t *testing.T, ctx context.Context, c *client.HubClient, pub *payword.Publication) *types.ChannelResponse {
	t.Helper()
	ch, err := c.CreateChannel(ctx, &types.CreateChannelRequest{
		Recipient:  pub.Recipient,
		Deposit:    pub.Deposit.Dec(),
		WordCount:  pub.WordCount,
		Commitment: pub.Commitment,
		Variant:    pub.Variant.String(),
	})
	require.NoError(t, err)
	return ch
}

// Test_HashChainFlow runs a payer and payee against a badger backed hub,
// then restarts the hub over the same data directory.
func Test_HashChainFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end integration test in short mode")
	}
	ctx := context.Background()
	dataPath := filepath.Join(t.TempDir(), "hub")
	chainFile := filepath.Join(t.TempDir(), "chain.json")

	store, err := badgerPersistence.NewBadgerPersistence(dataPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	th := tests.NewTestHub(t, store, nil)

	payerClient := client.NewHubClient(th.URL, testutil.SenderAddress)
	payeeClient := client.NewHubClient(th.URL, testutil.RecipientAddress)
	_, err = payerClient.FundAccount(ctx, testutil.SenderAddress, "10000")
	require.NoError(t, err)

	// payer derives the chain once and keeps it on disk
	chain, err := wordsource.NewSecretSource(hashing.Keccak256, []byte("segredo"), 10).FetchFullChain(ctx)
	require.NoError(t, err)
	require.NoError(t, wordsource.WriteFile(chainFile, chain))

	payer, err := payword.NewPayer(ctx, hashing.Keccak256, wordsource.NewFileSource(chainFile, hashing.Keccak256), types.VariantHashChain)
	require.NoError(t, err)
	pub := payer.Commit(testutil.RecipientAddress, uint256.NewInt(3000))
	ch := openChannel(t, ctx, payerClient, pub)
	assert.Equal(t, chain[9], ch.Commitment)

	// payments arrive one word at a time; the payee keeps the best
	payee := payword.NewPayee(hashing.Keccak256, pub)
	for words := uint64(1); words <= 8; words++ {
		claim, err := payer.Pay(words)
		require.NoError(t, err)
		owed, err := payee.Accept(claim)
		require.NoError(t, err)
		assert.Equal(t, words, owed)
	}
	stale, err := payer.Pay(3)
	require.NoError(t, err)
	owed, err := payee.Accept(stale)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), owed)
	assert.Equal(t, "2400", payee.Owed().Dec())

	best, words, err := payee.Best()
	require.NoError(t, err)
	require.Equal(t, uint64(8), words)

	sim, err := payeeClient.SimulateClose(ctx, ch.ID, best)
	require.NoError(t, err)
	require.True(t, sim.Valid)

	st, err := payeeClient.CloseChannel(ctx, ch.ID, best)
	require.NoError(t, err)
	assert.Equal(t, "2400", st.Payout)
	assert.Equal(t, "600", st.Refund)
	assert.True(t, st.Closed)
	assert.Equal(t, sim.Settlement.Payout, st.Payout)

	// replay is refused
	_, err = payeeClient.CloseChannel(ctx, ch.ID, best)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)

	recorded := th.Events.Events()
	require.Len(t, recorded, 2)
	assert.Equal(t, "ChannelCreated", recorded[0].Name())
	closed, ok := recorded[1].(events.ChannelClosed)
	require.True(t, ok)
	assert.Equal(t, uint64(8), closed.WordsRedeemed)

	// restart over the same directory
	th.Close()
	require.NoError(t, store.Close())
	store, err = badgerPersistence.NewBadgerPersistence(dataPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	th = tests.NewTestHub(t, store, nil)
	payerClient = client.NewHubClient(th.URL, testutil.SenderAddress)

	got, err := payerClient.GetChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", got.Status)
	assert.Equal(t, "0", got.Balance)

	acct, err := payerClient.GetAccount(ctx, testutil.SenderAddress)
	require.NoError(t, err)
	assert.Equal(t, "7600", acct.Balance)
	acct, err = payerClient.GetAccount(ctx, testutil.RecipientAddress)
	require.NoError(t, err)
	assert.Equal(t, "2400", acct.Balance)

	// a second channel between the same parties gets a fresh id
	again := openChannel(t, ctx, payerClient, pub)
	assert.NotEqual(t, ch.ID, again.ID)
}

// Test_MerklePartialFlow redeems a merkle channel in several installments
func Test_MerklePartialFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end integration test in short mode")
	}
	ctx := context.Background()
	th := tests.NewTestHub(t, memory.NewMemoryPersistence(), &tests.HubOptions{
		HashName: hashing.NameBlake2b256,
		Policy:   channel.PolicyPartial,
	})

	payerClient := client.NewHubClient(th.URL, testutil.SenderAddress)
	payeeClient := client.NewHubClient(th.URL, testutil.RecipientAddress)
	_, err := payerClient.FundAccount(ctx, testutil.SenderAddress, "1000")
	require.NoError(t, err)

	src := wordsource.NewSecretSource(hashing.Blake2b256, []byte("segredo"), 5)
	payer, err := payword.NewPayer(ctx, hashing.Blake2b256, src, types.VariantMerkle)
	require.NoError(t, err)
	pub := payer.Commit(testutil.RecipientAddress, uint256.NewInt(1000))
	ch := openChannel(t, ctx, payerClient, pub)

	claim, err := payer.Pay(2)
	require.NoError(t, err)
	st, err := payeeClient.CloseChannel(ctx, ch.ID, claim)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.WordsRedeemed)
	assert.Equal(t, "400", st.Payout)
	assert.False(t, st.Closed)
	assert.Equal(t, uint64(3), st.Channel.TotalWordCount)

	// an already covered index earns nothing
	_, err = payeeClient.CloseChannel(ctx, ch.ID, claim)
	require.Error(t, err)

	claim, err = payer.Pay(5)
	require.NoError(t, err)
	st, err = payeeClient.CloseChannel(ctx, ch.ID, claim)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.WordsRedeemed)
	assert.Equal(t, "600", st.Payout)
	assert.Equal(t, "0", st.Refund)
	assert.True(t, st.Closed)

	acct, err := payeeClient.GetAccount(ctx, testutil.RecipientAddress)
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance)

	names := make([]string, 0)
	for _, ev := range th.Events.Events() {
		names = append(names, ev.Name())
	}
	assert.Equal(t, []string{"ChannelCreated", "ChannelRedeemed", "ChannelClosed"}, names)
}
