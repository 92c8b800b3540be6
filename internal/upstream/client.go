// Package upstream is the HTTP client for the remote trading-account
// API. It does plain single-shot requests: retry policy lives in the
// query cache, which assumes every call here is idempotent-safe.
package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/peter-wins/tradewatch/pkg/equitychart"
)

type Client struct {
	http *resty.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "tradewatch")
	if apiKey != "" {
		c.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &Client{http: c}
}

func (c *Client) Portfolio(ctx context.Context) (Portfolio, error) {
	var out Portfolio
	if err := c.get(ctx, "/v1/account/portfolio", nil, &out); err != nil {
		return Portfolio{}, err
	}
	return out, nil
}

func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var out struct {
		Positions []Position `json:"positions"`
	}
	if err := c.get(ctx, "/v1/account/positions", nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// equitySampleWire keeps the timestamp as the raw string so a
// malformed one surfaces as an explicit error instead of a silently
// zeroed time.
type equitySampleWire struct {
	TS     string          `json:"ts"`
	Equity decimal.Decimal `json:"equity"`
}

// EquityCurve returns raw equity samples, newest last. A sample with
// an unparseable timestamp is a broken upstream contract and fails
// the whole call.
func (c *Client) EquityCurve(ctx context.Context, limit int) ([]equitychart.EquityPoint, error) {
	var out struct {
		Points []equitySampleWire `json:"points"`
	}
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = fmt.Sprint(limit)
	}
	if err := c.get(ctx, "/v1/account/equity", params, &out); err != nil {
		return nil, err
	}
	points := make([]equitychart.EquityPoint, 0, len(out.Points))
	for i, s := range out.Points {
		ts, err := time.Parse(time.RFC3339, s.TS)
		if err != nil {
			return nil, errors.Wrapf(err, "equity point %d: bad timestamp %q", i, s.TS)
		}
		points = append(points, equitychart.EquityPoint{
			Timestamp: ts,
			Value:     s.Equity.InexactFloat64(),
		})
	}
	return points, nil
}

func (c *Client) Decisions(ctx context.Context, limit int) ([]Decision, error) {
	var out struct {
		Decisions []Decision `json:"decisions"`
	}
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = fmt.Sprint(limit)
	}
	if err := c.get(ctx, "/v1/account/decisions", params, &out); err != nil {
		return nil, err
	}
	return out.Decisions, nil
}

// ClosePosition asks the account to market-close the position. The
// caller must invalidate the positions and portfolio cache keys after
// this succeeds.
func (c *Client) ClosePosition(ctx context.Context, positionID string) error {
	if strings.TrimSpace(positionID) == "" {
		return errors.New("position id is required")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		Post("/v1/positions/" + positionID + "/close")
	return wrapResponse(resp, err, "close position "+positionID)
}

// UpdateProtection sets the position's stop-loss/take-profit. Same
// invalidation contract as ClosePosition.
func (c *Client) UpdateProtection(ctx context.Context, positionID string, p Protection) error {
	if strings.TrimSpace(positionID) == "" {
		return errors.New("position id is required")
	}
	if p.StopLoss == nil && p.TakeProfit == nil {
		return errors.New("nothing to update")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(p).
		Put("/v1/positions/" + positionID + "/protection")
	return wrapResponse(resp, err, "update protection "+positionID)
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	r := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		r.SetQueryParams(params)
	}
	if out != nil {
		r.SetResult(out)
	}
	resp, err := r.Get(endpoint)
	return wrapResponse(resp, err, "GET "+endpoint)
}

func wrapResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	if resp.IsError() {
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > 200 {
			body = body[:200]
		}
		return errors.Errorf("%s: %s: %s", op, resp.Status(), body)
	}
	return nil
}
