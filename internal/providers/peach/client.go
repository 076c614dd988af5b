// Package peach adapts Peach Payments' hosted checkout (OPPWA) API.
package peach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/angelmondragon/vendorlution-backend/internal/providers"
	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/shopspring/decimal"
)

const (
	paymentTypeDebit            = "DB"
	responseBodyReadLimit int64 = 8192
)

var (
	successCode = regexp.MustCompile(`^(000\.000\.|000\.100\.1|000\.[36])`)
	pendingCode = regexp.MustCompile(`^000\.200`)

	errEntityRequired = errors.New("peach entity id and access token are required")
)

type result struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type checkoutResponse struct {
	ID     string `json:"id"`
	Result result `json:"result"`
}

type paymentStatus struct {
	ID                    string `json:"id"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Result                result `json:"result"`
}

// Client creates checkouts and verifies results server to server.
type Client struct {
	cfg        config.PeachConfig
	baseURL    string
	httpClient *http.Client
	logg       *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg config.PeachConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errEntityRequired
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	client := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logg:       logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) Provider() enums.PaymentProvider {
	return enums.ProviderPeach
}

// CreateCheckout registers a debit checkout and returns the widget URL.
func (c *Client) CreateCheckout(ctx context.Context, req providers.CheckoutRequest) (*providers.CheckoutSession, error) {
	if err := money.RequirePositive(req.Amount); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "ZAR"
	}
	form := url.Values{}
	form.Set("entityId", c.cfg.EntityID)
	form.Set("amount", money.Format(req.Amount))
	form.Set("currency", currency)
	form.Set("paymentType", paymentTypeDebit)
	form.Set("merchantTransactionId", req.TransactionReference())
	if c.cfg.NotificationURL != "" {
		form.Set("notificationUrl", c.cfg.NotificationURL)
	}
	if strings.Contains(req.Customer, "@") {
		form.Set("customer.email", req.Customer)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkouts", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build peach checkout request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var decoded checkoutResponse
	if err := c.do(httpReq, &decoded); err != nil {
		return nil, err
	}
	if decoded.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "peach rejected checkout").
			WithDetails(map[string]any{"result_code": decoded.Result.Code, "provider_message": decoded.Result.Description})
	}

	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"provider":              string(enums.ProviderPeach),
		"transaction_reference": req.TransactionReference(),
		"checkout_id":           decoded.ID,
		"amount":                money.Format(req.Amount),
	}), "peach checkout created")

	return &providers.CheckoutSession{
		RedirectURL:       fmt.Sprintf("%s/paymentWidgets.js?checkoutId=%s", c.baseURL, url.QueryEscape(decoded.ID)),
		ProviderReference: decoded.ID,
		Payload: map[string]any{
			"entityId":              c.cfg.EntityID,
			"amount":                form.Get("amount"),
			"currency":              currency,
			"merchantTransactionId": req.TransactionReference(),
		},
	}, nil
}

// FetchStatus reads the authoritative payment result for resourcePath.
func (c *Client) FetchStatus(ctx context.Context, resourcePath string) (*paymentStatus, error) {
	target, err := c.resourceURL(resourcePath)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build peach status request")
	}
	var status paymentStatus
	if err := c.do(httpReq, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "peach request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read peach response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), "peach unavailable")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return pkgerrors.Wrap(pkgerrors.CodeProviderRejected, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), "peach rejected request").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProviderRejected, err, "decode peach response")
	}
	return nil
}

// resourceURL joins a notification's resourcePath onto the API base. Only
// relative paths are followed so a forged notification cannot point us at an
// arbitrary host.
func (c *Client) resourceURL(resourcePath string) (string, error) {
	path := strings.TrimSpace(resourcePath)
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return "", pkgerrors.New(pkgerrors.CodeInvalidSignature, "peach resource path missing or not relative")
	}
	base := c.baseURL
	if strings.HasSuffix(base, "/v1") && strings.HasPrefix(path, "/v1/") {
		path = strings.TrimPrefix(path, "/v1")
	}
	return base + path + "?entityId=" + url.QueryEscape(c.cfg.EntityID), nil
}

// ClassifyResult maps an OPPWA result code onto an outcome.
func ClassifyResult(code string) providers.Outcome {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return providers.OutcomeUnknown
	case successCode.MatchString(code):
		return providers.OutcomeSuccess
	case pendingCode.MatchString(code):
		return providers.OutcomePending
	default:
		return providers.OutcomeFailed
	}
}

func parseAmount(raw string) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &amount
}
