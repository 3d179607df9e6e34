package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
)

type errorResponse struct {
	Error   string `json:"error"`
	TxHash  string `json:"txHash,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// statusFor maps the chain error taxonomy onto HTTP. A timeout is checked before a revert because a
// cancelled wait wraps both the timeout and the context error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrValidation), errors.Is(err, chain.ErrMetadataDecode):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, chain.ErrConfirmationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, chain.ErrContractRevert):
		return http.StatusConflict
	case errors.Is(err, chain.ErrRPC):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorBody(err error) errorResponse {
	body := errorResponse{Error: err.Error()}
	var txErr *chain.TxError
	if errors.As(err, &txErr) {
		body.TxHash = txErr.Hash.Hex()
		body.Outcome = txErr.Outcome.String()
	}
	return body
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody(err))
}
