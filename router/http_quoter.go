package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP QUOTER - Venue quoting over a REST aggregator
// ═══════════════════════════════════════════════════════════════════════════════

// HTTPQuoter fetches expected swap output from a quote API
type HTTPQuoter struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPQuoter creates a quoter against the given aggregator base URL
func NewHTTPQuoter(baseURL string) *HTTPQuoter {
	return &HTTPQuoter{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Quote asks one venue for the expected output of a swap
func (q *HTTPQuoter) Quote(ctx context.Context, venue, tokenIn, tokenOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("venue", venue)
	params.Set("tokenIn", tokenIn)
	params.Set("tokenOut", tokenOut)
	params.Set("amountIn", amountIn.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode >= 400 {
		return decimal.Zero, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AmountOut decimal.Decimal `json:"amountOut"`
		Error     string          `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("parse quote: %w", err)
	}
	if result.Error != "" {
		return decimal.Zero, fmt.Errorf("venue error: %s", result.Error)
	}

	return result.AmountOut, nil
}
