package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient fetches price and market-condition snapshots from the oracle's
// REST endpoint. Used for startup backfill and as a fallback when the
// streamed cache is stale.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a snapshot client for the given oracle base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// priceSnapshot is one entry of the /prices response.
type priceSnapshot struct {
	Asset string  `json:"asset"`
	Price float64 `json:"price"`
	TsMs  int64   `json:"ts"`
}

// conditionsResponse is the /conditions response body.
type conditionsResponse struct {
	Asset       string  `json:"asset"`
	Price       float64 `json:"price"`
	Volatility  float64 `json:"volatility"`
	LendingRate float64 `json:"lending_rate"`
}

// Prices fetches the current spot price for each requested asset.
func (c *HTTPClient) Prices(ctx context.Context, assets []string) (map[string]PriceTick, error) {
	params := url.Values{}
	params.Set("assets", strings.Join(assets, ","))

	var snapshots []priceSnapshot
	if err := c.doGet(ctx, "/prices?"+params.Encode(), &snapshots); err != nil {
		return nil, fmt.Errorf("oracle: get prices: %w", err)
	}

	ticks := make(map[string]PriceTick, len(snapshots))
	for _, s := range snapshots {
		ticks[s.Asset] = PriceTick{Asset: s.Asset, Price: s.Price, TsMs: s.TsMs}
	}
	return ticks, nil
}

// Price fetches the current spot price for a single asset.
func (c *HTTPClient) Price(ctx context.Context, asset string) (PriceTick, error) {
	ticks, err := c.Prices(ctx, []string{asset})
	if err != nil {
		return PriceTick{}, err
	}
	tick, ok := ticks[asset]
	if !ok {
		return PriceTick{}, fmt.Errorf("oracle: get price: no quote for %q", asset)
	}
	return tick, nil
}

// Conditions fetches the market snapshot for an asset.
func (c *HTTPClient) Conditions(ctx context.Context, asset string) (conditionsResponse, error) {
	var resp conditionsResponse
	path := "/conditions/" + url.PathEscape(asset)
	if err := c.doGet(ctx, path, &resp); err != nil {
		return conditionsResponse{}, fmt.Errorf("oracle: get conditions: %w", err)
	}
	return resp, nil
}

// doGet performs a GET request and decodes the JSON response into out.
func (c *HTTPClient) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
