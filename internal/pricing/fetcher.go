package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetcher discovers auto prices from an OpenAI-compatible models endpoint.
//
// The upstream API exposes which models exist but not their prices, so the
// fetch intersects the upstream model list with the built-in rate table.
// Calls are time-bounded by the client timeout; any failure is returned to
// the caller and never affects cost resolution.
type Fetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFetcher constructs a Fetcher for the given endpoint.
func NewFetcher(baseURL, apiKey string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// modelsResponse mirrors the OpenAI /models list body.
type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// FetchAutoPrices returns per-1K rates for every upstream model with a
// known built-in rate.
func (f *Fetcher) FetchAutoPrices(ctx context.Context) (map[string]Rate, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("pricing: fetch: api key is not configured")
	}

	req, errNew := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/models", nil)
	if errNew != nil {
		return nil, fmt.Errorf("pricing: fetch: build request: %w", errNew)
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, errDo := f.httpClient.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("pricing: fetch: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pricing: fetch: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload modelsResponse
	if errDecode := json.NewDecoder(resp.Body).Decode(&payload); errDecode != nil {
		return nil, fmt.Errorf("pricing: fetch: decode response: %w", errDecode)
	}

	rates := make(map[string]Rate)
	for _, model := range payload.Data {
		if rate, ok := FallbackRate(model.ID); ok {
			rates[model.ID] = rate
		}
	}
	return rates, nil
}
