package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"camsync/internal/core/domain"
	"camsync/pkg/circuitbreaker"
	apperrors "camsync/pkg/errors"
	"camsync/pkg/retry"

	"go.uber.org/zap"
)

// HTTPStore is a MetadataStore client for the external session index.
// Requests are retried with exponential backoff behind a circuit breaker so
// a flapping backend neither loses metadata silently nor hangs the caller.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	logger  *zap.SugaredLogger

	retryConfig retry.Config
	breaker     *circuitbreaker.CircuitBreaker
}

// NewHTTPStore creates a client for the index at baseURL.
func NewHTTPStore(baseURL string, timeout time.Duration, retryConfig retry.Config, logger *zap.SugaredLogger) *HTTPStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	store := &HTTPStore{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
		retryConfig: retryConfig,
		breaker:     circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
	store.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("persistence circuit breaker state changed",
			"from", from.String(), "to", to.String())
	})
	return store
}

// CreateSession implements ports.MetadataStore.
func (s *HTTPStore) CreateSession(ctx context.Context) (*domain.SessionRecord, error) {
	return retry.DoWithResult(ctx, s.retryConfig, func() (*domain.SessionRecord, error) {
		var record domain.SessionRecord
		err := s.breaker.Execute(ctx, func() error {
			return s.doJSON(ctx, http.MethodPost, "/sessions", nil, &record)
		})
		if err != nil {
			return nil, err
		}
		return &record, nil
	})
}

// GetSession implements ports.MetadataStore.
func (s *HTTPStore) GetSession(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	return retry.DoWithResult(ctx, s.retryConfig, func() (*domain.SessionRecord, error) {
		var record domain.SessionRecord
		err := s.breaker.Execute(ctx, func() error {
			return s.doJSON(ctx, http.MethodGet, "/sessions/"+string(id), nil, &record)
		})
		if err != nil {
			return nil, err
		}
		return &record, nil
	})
}

// RegisterDevice implements ports.MetadataStore.
func (s *HTTPStore) RegisterDevice(ctx context.Context, sessionID domain.SessionID, participantID domain.ParticipantID, label string) error {
	body := map[string]interface{}{
		"device_id": participantID,
		"label":     label,
	}
	return retry.Do(ctx, s.retryConfig, func() error {
		return s.breaker.Execute(ctx, func() error {
			return s.doJSON(ctx, http.MethodPost, "/sessions/"+string(sessionID)+"/devices", body, nil)
		})
	})
}

// SaveRecordingMetadata implements ports.MetadataStore.
func (s *HTTPStore) SaveRecordingMetadata(ctx context.Context, meta domain.RecordingMetadata) error {
	return retry.Do(ctx, s.retryConfig, func() error {
		return s.breaker.Execute(ctx, func() error {
			return s.doJSON(ctx, http.MethodPost, "/recordings", meta, nil)
		})
	})
}

// doJSON performs one request with a JSON body and decodes a JSON response
// into out when out is non-nil.
func (s *HTTPStore) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return apperrors.NewNotFoundError(path)
		case resp.StatusCode == http.StatusTooManyRequests:
			return apperrors.NewRateLimitError()
		case resp.StatusCode >= 500:
			return apperrors.NewServiceUnavailableError(
				fmt.Sprintf("index returned %d for %s %s", resp.StatusCode, method, path))
		default:
			return fmt.Errorf("unexpected status %d for %s %s", resp.StatusCode, method, path)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
