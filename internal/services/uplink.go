package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leafsync/server/internal/models"
)

// RemoteScanStore uploads cached diagnoses to the remote backend
type RemoteScanStore interface {
	UploadBatch(ctx context.Context, scans []*models.CachedDiagnosis) error
}

// HTTPRemoteStore talks to the hosted scan store over HTTP
type HTTPRemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemoteStore creates a new HTTPRemoteStore with a hard timeout on
// every upload attempt
func NewHTTPRemoteStore(baseURL string, timeout time.Duration) *HTTPRemoteStore {
	return &HTTPRemoteStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type batchUploadRequest struct {
	Scans []*models.CachedDiagnosis `json:"scans"`
}

// UploadBatch posts the whole batch in one request. Any transport error,
// timeout or non-2xx status is reported as ErrRemoteUnavailable so callers
// treat it as transient.
func (s *HTTPRemoteStore) UploadBatch(ctx context.Context, scans []*models.CachedDiagnosis) error {
	body, err := json.Marshal(batchUploadRequest{Scans: scans})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/scans/batch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", models.ErrRemoteUnavailable, resp.StatusCode)
	}

	return nil
}
