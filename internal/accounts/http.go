// Package accounts implements the external account-context provider
// used by the filter stage.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPProvider queries the account-context service over HTTP.
type HTTPProvider struct {
	base   string
	client *http.Client
}

func NewHTTPProvider(base string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{base: base, client: &http.Client{Timeout: timeout}}
}

type contextResponse struct {
	FirstSeenAt time.Time `json:"first_seen_at"`
	Balance     uint64    `json:"balance"`
}

func (p *HTTPProvider) FirstSeenAt(ctx context.Context, wallet string) (time.Time, error) {
	var resp contextResponse
	if err := p.get(ctx, fmt.Sprintf("%s/v1/accounts/%s", p.base, url.PathEscape(wallet)), &resp); err != nil {
		return time.Time{}, err
	}
	return resp.FirstSeenAt, nil
}

func (p *HTTPProvider) BalanceAt(ctx context.Context, wallet string, at time.Time) (uint64, error) {
	u := fmt.Sprintf("%s/v1/accounts/%s/balance?at=%s",
		p.base, url.PathEscape(wallet), url.QueryEscape(strconv.FormatInt(at.UnixMilli(), 10)))
	var resp contextResponse
	if err := p.get(ctx, u, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

func (p *HTTPProvider) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build account lookup request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("account lookup returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode account lookup response: %w", err)
	}
	return nil
}
