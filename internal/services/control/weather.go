package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/munbon/awd-control/internal/model/entities"
)

// WeatherClient is the weather oracle: rainfall for a field's location.
// A failing oracle is treated as zero rainfall by callers.
type WeatherClient interface {
	Rainfall(ctx context.Context, lat, lon float64) (*entities.Rainfall, error)
}

type owmDaily struct {
	Dt   int64   `json:"dt"`
	Rain float64 `json:"rain"`
}

type owmResp struct {
	Daily []owmDaily `json:"daily"`
}

// OWMClient reads daily rainfall from the OpenWeatherMap one-call API.
type OWMClient struct {
	apiKey string
	client *http.Client
}

func NewOWMClient(key string) *OWMClient {
	return &OWMClient{apiKey: key, client: &http.Client{Timeout: 8 * time.Second}}
}

func (c *OWMClient) Rainfall(ctx context.Context, lat, lon float64) (*entities.Rainfall, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("missing api key")
	}
	url := fmt.Sprintf("https://api.openweathermap.org/data/3.0/onecall?lat=%f&lon=%f&exclude=current,minutely,hourly,alerts&units=metric&appid=%s", lat, lon, c.apiKey)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("owm status %d: %s", resp.StatusCode, string(b))
	}
	var out owmResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Daily) == 0 {
		return nil, fmt.Errorf("no daily data")
	}

	r := &entities.Rainfall{AmountMm: out.Daily[0].Rain}
	for _, d := range out.Daily[1:] {
		r.ForecastMm = append(r.ForecastMm, d.Rain)
	}
	return r, nil
}

var _ WeatherClient = (*OWMClient)(nil)
