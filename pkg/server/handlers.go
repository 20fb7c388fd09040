package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/ethword-go/pkg/bank"
	"github.com/Layr-Labs/ethword-go/pkg/channel"
	"github.com/Layr-Labs/ethword-go/pkg/types"
	"github.com/Layr-Labs/ethword-go/pkg/verifier"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// statusForError maps domain errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, channel.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, channel.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, channel.ErrChannelClosed),
		errors.Is(err, channel.ErrChannelExists):
		return http.StatusConflict
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, channel.ErrInvalidParameters),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrBalanceOverflow),
		errors.Is(err, verifier.ErrZeroWordCount),
		errors.Is(err, verifier.ErrWordCountExceedsAvailable),
		errors.Is(err, verifier.ErrInvalidPreimageChain),
		errors.Is(err, verifier.ErrInvalidMerkleProof),
		errors.Is(err, verifier.ErrVariantMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse request: %w", err)
	}
	return nil
}

func parseCaller(r *http.Request) (common.Address, error) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s header is required", CallerHeader)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s is not a valid address", CallerHeader)
	}
	return common.HexToAddress(raw), nil
}

func parseChannelID(r *http.Request) (common.Hash, error) {
	raw := r.PathValue("id")
	b, err := hexBytes(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid channel id %q", raw)
	}
	return common.BytesToHash(b), nil
}

func parseAddress(r *http.Request) (common.Address, error) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func hexBytes(s string) ([]byte, error) {
	if !has0xPrefix(s) {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func newSettlementResponse(st *channel.Settlement) types.SettlementResponse {
	return types.SettlementResponse{
		ChannelID:     st.ChannelID,
		WordsRedeemed: st.WordsRedeemed,
		Payout:        st.Payout.Dec(),
		Refund:        st.Refund.Dec(),
		Closed:        st.Closed,
		Channel:       types.NewChannelResponse(st.After),
	}
}

// handleCreateChannel handles POST /channels
func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req types.CreateChannelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deposit, err := types.ParseAmount(req.Deposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	variant, err := types.ParseVariant(req.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch, err := s.service.CreateChannel(r.Context(), caller, channel.Params{
		Recipient:  req.Recipient,
		Deposit:    deposit,
		WordCount:  req.WordCount,
		Commitment: req.Commitment,
		Variant:    variant,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, types.NewChannelResponse(ch))
}

// readClaim parses the caller, channel id and claim shared by close and simulate
func readClaim(w http.ResponseWriter, r *http.Request) (common.Address, common.Hash, types.Claim, bool) {
	caller, err := parseCaller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, common.Hash{}, nil, false
	}
	id, err := parseChannelID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, common.Hash{}, nil, false
	}

	var req types.CloseChannelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, common.Hash{}, nil, false
	}
	claim, err := req.Claim.ToClaim()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, common.Hash{}, nil, false
	}
	return caller, id, claim, true
}

// handleCloseChannel handles POST /channels/{id}/close
func (s *Server) handleCloseChannel(w http.ResponseWriter, r *http.Request) {
	caller, id, claim, ok := readClaim(w, r)
	if !ok {
		return
	}

	st, err := s.service.CloseChannel(r.Context(), caller, id, claim)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSettlementResponse(st))
}

// handleSimulateClose handles POST /channels/{id}/simulate
func (s *Server) handleSimulateClose(w http.ResponseWriter, r *http.Request) {
	caller, id, claim, ok := readClaim(w, r)
	if !ok {
		return
	}

	sim, err := s.service.SimulateClose(r.Context(), caller, id, claim)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := types.SimulationResponse{Valid: sim.Valid, Reason: sim.Reason}
	if sim.Settlement != nil {
		st := newSettlementResponse(sim.Settlement)
		resp.Settlement = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetChannel handles GET /channels/{id}
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, err := parseChannelID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch, err := s.service.GetChannel(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewChannelResponse(ch))
}

// handleListChannels handles GET /channels
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.service.ListChannels(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := types.ListChannelsResponse{Channels: make([]types.ChannelResponse, 0, len(channels))}
	for _, ch := range channels {
		resp.Channels = append(resp.Channels, types.NewChannelResponse(ch))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetAccount handles GET /accounts/{address}
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := s.service.Balance(r.Context(), addr)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.AccountResponse{Address: addr, Balance: balance.Dec()})
}

// handleFundAccount handles POST /accounts/{address}/fund
func (s *Server) handleFundAccount(w http.ResponseWriter, r *http.Request) {
	if !s.allowFaucet {
		writeError(w, http.StatusForbidden, "funding is disabled")
		return
	}
	addr, err := parseAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req types.FundAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := types.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.FundAccount(r.Context(), addr, amount); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	balance, err := s.service.Balance(r.Context(), addr)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Sugar().Infow("Funded account", "address", addr.Hex(), "amount", amount.Dec())
	writeJSON(w, http.StatusOK, types.AccountResponse{Address: addr, Balance: balance.Dec()})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
