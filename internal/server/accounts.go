package server

import (
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"medalchain/internal/chain"
)

const maxAccountBody = 4 << 10

type registerAccountRequest struct {
	DisplayName string `json:"displayName"`
}

func (s *Server) handleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := chain.Normalize(r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAccountBody))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var payload registerAccountRequest
	if err := decodeStrict(body, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	name := strings.TrimSpace(payload.DisplayName)

	if err := s.deps.Accounts.Register(r.Context(), addr, name); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("account registered", zap.Stringer("address", addr), zap.String("displayName", name))

	acct, err := s.deps.Accounts.Get(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := chain.Normalize(r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	acct, err := s.deps.Accounts.Get(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
