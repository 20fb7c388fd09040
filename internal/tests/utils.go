package tests

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/events"
	"github.com/Layr-Labs/ethword-go/pkg/hub"
	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	"github.com/Layr-Labs/ethword-go/pkg/server"
)

// TestHub is a hub served over a local HTTP listener
type TestHub struct {
	Hub    *hub.Hub
	Events *events.Recorder
	Store  persistence.IChannelPersistence
	URL    string

	httpServer *httptest.Server
}

// HubOptions tunes NewTestHub
type HubOptions struct {
	HashName string
	Policy   channel.Policy
}

// NewTestHub starts a hub over store with funding enabled. The listener is
// closed on test cleanup; the store is left to the caller.
func NewTestHub(t *testing.T, store persistence.IChannelPersistence, opts *HubOptions) *TestHub {
	t.Helper()
	if opts == nil {
		opts = &HubOptions{}
	}
	l := zaptest.NewLogger(t)
	rec := events.NewRecorder()

	h, err := hub.NewHub(&hub.Config{
		Store:    store,
		HashName: opts.HashName,
		Policy:   opts.Policy,
		Sink:     events.Multi{rec, events.NewLogSink(l)},
		Logger:   l,
	})
	require.NoError(t, err)

	srv := server.NewServer(h, &server.Config{AllowFaucet: true, Logger: l})
	ts := httptest.NewServer(srv.GetHandler())
	t.Cleanup(ts.Close)

	return &TestHub{
		Hub:        h,
		Events:     rec,
		Store:      store,
		URL:        ts.URL,
		httpServer: ts,
	}
}

// Close stops the HTTP listener early
func (th *TestHub) Close() {
	th.httpServer.Close()
}
