package tms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/order-intake/internal/httpjson"
)

// CompanyHeader scopes every API call to one TMS company.
const CompanyHeader = "X-com.mcleodsoftware.CompanyID"

// ErrDecode means the API accepted a request but its reply could not be read.
var ErrDecode = errors.New("undecodable API response")

// APIError is a reply from the TMS API other than 200.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

type ClientConfig struct {
	BaseURL   string
	Username  string
	Password  string
	CompanyID string
	Timeout   time.Duration
}

// Client talks to the TMS order API.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, hc *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, logger: logger}
}

// send makes one authenticated call. Any status but 200 comes back as *APIError.
func (c *Client) send(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	raw, status, err := httpjson.Do(ctx, c.http, httpjson.Request{
		Method:   method,
		URL:      endpoint,
		Body:     body,
		Headers:  map[string]string{CompanyHeader: c.cfg.CompanyID},
		Username: c.cfg.Username,
		Password: c.cfg.Password,
	}, c.logger.With("component", "tms"))
	var se *httpjson.StatusError
	switch {
	case errors.As(err, &se):
		return nil, &APIError{Status: se.Status, Body: se.Body}
	case err != nil:
		return nil, err
	case status != http.StatusOK:
		return nil, &APIError{Status: status, Body: string(raw)}
	}
	return raw, nil
}

// CreateOrder calls PUT /orders/create. Only a 200 reply counts as created.
func (c *Client) CreateOrder(ctx context.Context, p *OrderPayload) (*CreatedOrder, error) {
	raw, err := c.send(ctx, http.MethodPut, c.cfg.BaseURL+"/orders/create", p)
	if err != nil {
		return nil, err
	}
	var out CreatedOrder
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		c.logger.Error("tms.create.decode_error", "bol", p.BLNum, "body", string(raw))
		return nil, fmt.Errorf("%w: %s", ErrDecode, string(raw))
	}
	return &out, nil
}

// RateResult is the charge the TMS computed, when it reports one.
type RateResult struct {
	TotalCharge decimal.Decimal
	HasCharge   bool
}

// Autorate calls POST /orders/autorate/{id}.
func (c *Client) Autorate(ctx context.Context, orderID string) (RateResult, error) {
	endpoint := c.cfg.BaseURL + "/orders/autorate/" + url.PathEscape(orderID)
	raw, err := c.send(ctx, http.MethodPost, endpoint, map[string]string{"id": orderID})
	if err != nil {
		return RateResult{}, err
	}
	var body struct {
		TotalCharge *decimal.Decimal `json:"total_charge"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &body) == nil && body.TotalCharge != nil {
		return RateResult{TotalCharge: *body.TotalCharge, HasCharge: true}, nil
	}
	return RateResult{}, nil
}
