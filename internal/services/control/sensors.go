package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// SensorSource answers "what is the latest reading for this field". The
// production implementation talks to the ingest service; tests substitute
// a fake.
type SensorSource interface {
	Latest(ctx context.Context, fieldID string) (*entities.SensorReading, error)
	Range(ctx context.Context, fieldID string, from, to time.Time) ([]entities.SensorReading, error)
}

// HTTPSensorSource queries the ingest service's reading API.
type HTTPSensorSource struct {
	base   string
	client *http.Client
}

func NewHTTPSensorSource(base string, timeout time.Duration) *HTTPSensorSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSensorSource{
		base:   strings.TrimRight(strings.TrimSpace(base), "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSensorSource) Latest(ctx context.Context, fieldID string) (*entities.SensorReading, error) {
	u := fmt.Sprintf("%s/readings/latest?field_id=%s", s.base, url.QueryEscape(fieldID))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, ErrSensorUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: ingest status %d", ErrSensorUnavailable, resp.StatusCode)
	}

	var out entities.SensorReading
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSensorUnavailable, err)
	}
	return &out, nil
}

func (s *HTTPSensorSource) Range(ctx context.Context, fieldID string, from, to time.Time) ([]entities.SensorReading, error) {
	u := fmt.Sprintf("%s/readings/range?field_id=%s&from=%s&to=%s",
		s.base, url.QueryEscape(fieldID),
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: ingest status %d", ErrSensorUnavailable, resp.StatusCode)
	}
	var out []entities.SensorReading
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSensorUnavailable, err)
	}
	return out, nil
}

var _ SensorSource = (*HTTPSensorSource)(nil)
