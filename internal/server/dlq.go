package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"medalchain/internal/chain"
)

// dlqEntry journals a submission whose outcome the caller could not act on: a revert or a confirmation
// timeout. An operator reconciles it against the chain by TxHash.
type dlqEntry struct {
	Timestamp      string          `json:"timestamp"`
	Route          string          `json:"route"`
	IdempotencyKey string          `json:"idempotencyKey"`
	TxHash         string          `json:"txHash"`
	Outcome        string          `json:"outcome"`
	Payload        json.RawMessage `json:"payload"`
	Error          string          `json:"error"`
}

func (s *Server) writeDLQ(route, key string, payload []byte, txErr *chain.TxError) {
	dir := s.cfg.Service.DLQPath
	if dir == "" {
		return
	}

	entry := dlqEntry{
		Timestamp:      s.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Route:          route,
		IdempotencyKey: key,
		TxHash:         txErr.Hash.Hex(),
		Outcome:        txErr.Outcome.String(),
		Error:          txErr.Error(),
	}
	if json.Valid(payload) {
		entry.Payload = payload
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		s.log.Error("dlq marshal", zap.Error(err))
		return
	}

	s.dlqMu.Lock()
	defer s.dlqMu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error("dlq mkdir", zap.String("dir", dir), zap.Error(err))
		return
	}
	filename := fmt.Sprintf("%d-%s-%s.json", s.clock.Now().UnixNano(), route, txErr.Hash.Hex())
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o600); err != nil {
		s.log.Error("dlq write", zap.String("file", filename), zap.Error(err))
		return
	}
	s.log.Warn("submission journaled to dlq",
		zap.String("route", route),
		zap.String("tx", entry.TxHash),
		zap.String("outcome", entry.Outcome),
	)
	s.updateDLQDepth()
}

func (s *Server) updateDLQDepth() int {
	depth := s.currentDLQDepth()
	s.metrics.SetDLQDepth(depth)
	return depth
}

func (s *Server) currentDLQDepth() int {
	if s.cfg.Service.DLQPath == "" {
		return 0
	}
	entries, err := os.ReadDir(s.cfg.Service.DLQPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("dlq read", zap.Error(err))
		}
		return 0
	}
	return len(entries)
}
