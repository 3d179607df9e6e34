package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"medalchain/internal/chain"
	"medalchain/internal/idempotency"
	"medalchain/internal/medals"
	"medalchain/internal/nft"
)

const (
	routeDistribute = "distribute"
	routeMint       = "mint"

	headerIdempotencyKey = "X-Idempotency-Key"

	defaultPageSize = 20
	maxPageSize     = 100
)

// submitFunc runs a privileged submission and returns the success status and body.
type submitFunc func(ctx context.Context, body []byte) (int, interface{}, error)

// idempotent replays the stored response for a repeated X-Idempotency-Key. Confirmed, reverted and
// timed-out submissions are all recorded so a client retry never produces a second transaction.
func (s *Server) idempotent(route string, submit submitFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
		if key == "" {
			http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		storeKey := route + ":" + key
		if _, busy := s.inflight.LoadOrStore(storeKey, struct{}{}); busy {
			s.metrics.IncRequest(route, "in_progress")
			http.Error(w, "request with this idempotency key is in progress", http.StatusConflict)
			return
		}
		defer s.inflight.Delete(storeKey)

		hash := idempotency.Fingerprint(body)
		existing, err := s.deps.Idempotency.Get(ctx, storeKey)
		if err != nil {
			s.log.Warn("idempotency lookup failed", zap.String("key", storeKey), zap.Error(err))
		}
		if existing != nil {
			if existing.RequestHash != "" && existing.RequestHash != hash {
				s.metrics.IncRequest(route, "key_reused")
				http.Error(w, "idempotency key reused with a different payload", http.StatusUnprocessableEntity)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(existing.StatusCode)
			_, _ = w.Write(existing.Response)
			s.metrics.IncRequest(route, "cached")
			return
		}

		status, resp, err := submit(ctx, body)
		var txErr *chain.TxError
		if err != nil {
			status = statusFor(err)
			resp = errorBody(err)
			if !errors.As(err, &txErr) {
				// Nothing reached the chain; the client may fix the request and reuse the key.
				s.metrics.IncRequest(route, "rejected")
				s.writeError(w, err)
				return
			}
			s.writeDLQ(route, key, body, txErr)
		}

		b, _ := json.Marshal(resp)
		now := s.clock.Now()
		record := idempotency.Record{
			StatusCode:  status,
			Response:    b,
			RequestHash: hash,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.cfg.Service.IdempotencyWindow),
		}
		if err := s.deps.Idempotency.Save(ctx, storeKey, record); err != nil {
			s.log.Error("idempotency save failed", zap.String("key", storeKey), zap.Error(err))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(b)
		if txErr != nil {
			s.metrics.IncRequest(route, txErr.Outcome.String())
			return
		}
		s.metrics.IncRequest(route, "created")
	})
}

type distributeRequest struct {
	To     string `json:"to"`
	Gold   uint64 `json:"gold"`
	Silver uint64 `json:"silver"`
	Bronze uint64 `json:"bronze"`
}

type distributeResponse struct {
	Status string `json:"status"`
	*medals.Distribution
}

func (s *Server) distribute(ctx context.Context, body []byte) (int, interface{}, error) {
	var payload distributeRequest
	if err := decodeStrict(body, &payload); err != nil {
		return 0, nil, err
	}
	to, err := chain.Normalize(payload.To)
	if err != nil {
		return 0, nil, err
	}

	res, err := s.deps.Distributor.Distribute(ctx, to, medals.Award{
		Gold:   payload.Gold,
		Silver: payload.Silver,
		Bronze: payload.Bronze,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, distributeResponse{Status: "confirmed", Distribution: res}, nil
}

type mintRequest struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Either ImagePath (resolved against the configured image server) or a ready ImageMetadata pointer.
	ImagePath     string          `json:"imagePath"`
	ImageType     string          `json:"imageType"`
	ImageMetadata string          `json:"imageMetadata"`
	Attributes    json.RawMessage `json:"attributes"`
}

type mintResponse struct {
	Status string `json:"status"`
	*nft.MintResult
}

func (s *Server) mint(ctx context.Context, body []byte) (int, interface{}, error) {
	var payload mintRequest
	if err := decodeStrict(body, &payload); err != nil {
		return 0, nil, err
	}

	pointer := payload.ImageMetadata
	if pointer == "" {
		p, err := nft.NewBackendServer(payload.ImagePath, payload.ImageType, s.cfg.Service.ImageServerURL)
		if err != nil {
			return 0, nil, err
		}
		if pointer, err = p.Encode(); err != nil {
			return 0, nil, err
		}
	}

	res, err := s.deps.Minter.Mint(ctx, nft.MintRequest{
		Owner:         chain.Address(payload.Owner),
		Name:          payload.Name,
		Description:   payload.Description,
		ImageMetadata: pointer,
		Attributes:    string(payload.Attributes),
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, mintResponse{Status: "confirmed", MintResult: res}, nil
}

func decodeStrict(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json payload: %v", chain.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleUserMedals(w http.ResponseWriter, r *http.Request) {
	addr, err := chain.Normalize(r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	counts, err := s.deps.Medals.UserMedals(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Address chain.Address `json:"address"`
		Medals  interface{}   `json:"medals"`
	}{addr, counts})
}

func (s *Server) handleMedalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Medals.GlobalStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListNFTs(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	size, err := queryInt(r, "size", defaultPageSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	res, err := s.deps.NFTs.QueryAll(r.Context(), page, size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", chain.ErrValidation, name)
	}
	return n, nil
}
