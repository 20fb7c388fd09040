package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/ledger"
	"github.com/Layr-Labs/ethword-go/pkg/types"
)

/*
Server exposes a payword hub over HTTP.

Channel lifecycle:
  POST /channels
    - Caller (X-Caller-Address) funds the channel and becomes its sender
    - Request: { recipient, deposit, word_count, commitment, variant }
    - Response: the stored channel, including its derived id

  POST /channels/{id}/close
    - Caller must be the recipient
    - Request: { claim: { variant, word, word_count | index, proof } }
    - Pays floor(balance * words / total) to the recipient; a closing
      redemption refunds the remainder to the sender

  POST /channels/{id}/simulate
    - Same request as close, nothing is mutated
    - Response: { valid, reason, settlement }

Queries:
  GET /channels            every channel sorted by id
  GET /channels/{id}       a single channel
  GET /accounts/{address}  spendable balance
  GET /health              store health

Funding (only when AllowFaucet is set):
  POST /accounts/{address}/fund  { amount }

Every response carries an X-Request-ID. Requests beyond the configured rate
are refused with 429.
*/

// CallerHeader names the header carrying the authenticated caller address.
// Authenticating it is the job of whatever fronts the server.
const CallerHeader = "X-Caller-Address"

// RequestIDHeader is set on every response
const RequestIDHeader = "X-Request-ID"

// ChannelService is the hub surface the server needs
type ChannelService interface {
	CreateChannel(ctx context.Context, caller common.Address, params channel.Params) (*types.Channel, error)
	CloseChannel(ctx context.Context, caller common.Address, id common.Hash, claim types.Claim) (*channel.Settlement, error)
	SimulateClose(ctx context.Context, caller common.Address, id common.Hash, claim types.Claim) (*ledger.Simulation, error)
	GetChannel(ctx context.Context, id common.Hash) (*types.Channel, error)
	ListChannels(ctx context.Context) ([]*types.Channel, error)
	FundAccount(ctx context.Context, addr common.Address, amount *uint256.Int) error
	Balance(ctx context.Context, addr common.Address) (*uint256.Int, error)
	HealthCheck() error
}

// Config holds server settings
type Config struct {
	Port int
	// RateLimit in requests per second; 0 disables limiting
	RateLimit   float64
	RateBurst   int
	AllowFaucet bool
	Logger      *zap.Logger
}

// Server handles HTTP requests for the hub
type Server struct {
	service     ChannelService
	logger      *zap.Logger
	allowFaucet bool
	httpServer  *http.Server
}

// NewServer creates a new server instance
func NewServer(service ChannelService, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service:     service,
		logger:      logger,
		allowFaucet: cfg.AllowFaucet,
	}

	mux := http.NewServeMux()

	// Channel endpoints
	mux.HandleFunc("POST /channels", s.handleCreateChannel)
	mux.HandleFunc("GET /channels", s.handleListChannels)
	mux.HandleFunc("GET /channels/{id}", s.handleGetChannel)
	mux.HandleFunc("POST /channels/{id}/close", s.handleCloseChannel)
	mux.HandleFunc("POST /channels/{id}/simulate", s.handleSimulateClose)

	// Account endpoints
	mux.HandleFunc("GET /accounts/{address}", s.handleGetAccount)
	mux.HandleFunc("POST /accounts/{address}/fund", s.handleFundAccount)

	mux.HandleFunc("GET /health", s.handleHealth)

	var handler http.Handler = mux
	handler = withRateLimit(handler, cfg.RateLimit, cfg.RateBurst)
	handler = withRequestLogging(handler, logger)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server immediately
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// Shutdown drains in-flight requests before stopping
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
