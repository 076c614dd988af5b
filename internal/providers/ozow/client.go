package ozow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/vendorlution-backend/internal/providers"
	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
)

const (
	countryCode                 = "ZA"
	currencyCode                = "ZAR"
	responseBodyReadLimit int64 = 4096
)

var errSiteCodeRequired = errors.New("ozow site code is required")

// PaymentRequest is the PostPaymentRequest body.
type PaymentRequest struct {
	SiteCode             string `json:"siteCode"`
	CountryCode          string `json:"countryCode"`
	CurrencyCode         string `json:"currencyCode"`
	Amount               string `json:"amount"`
	TransactionReference string `json:"transactionReference"`
	BankReference        string `json:"bankReference"`
	Optional1            string `json:"optional1,omitempty"`
	Optional2            string `json:"optional2,omitempty"`
	Optional3            string `json:"optional3,omitempty"`
	Optional4            string `json:"optional4,omitempty"`
	Optional5            string `json:"optional5,omitempty"`
	Customer             string `json:"customer,omitempty"`
	CancelURL            string `json:"cancelUrl"`
	ErrorURL             string `json:"errorUrl"`
	SuccessURL           string `json:"successUrl"`
	NotifyURL            string `json:"notifyUrl"`
	IsTest               bool   `json:"isTest"`
	SelectedBankID       string `json:"selectedBankId,omitempty"`
	AllowVariableAmount  bool   `json:"allowVariableAmount,omitempty"`
	VariableAmountMin    string `json:"variableAmountMin,omitempty"`
	VariableAmountMax    string `json:"variableAmountMax,omitempty"`
	HashCheck            string `json:"hashCheck"`
}

type paymentResponse struct {
	URL              string `json:"url"`
	PaymentRequestID string `json:"paymentRequestId"`
	ErrorMessage     string `json:"errorMessage"`
}

// Client talks to the Ozow payment API and verifies its notifications.
type Client struct {
	cfg           config.OzowConfig
	httpClient    *http.Client
	logg          *logger.Logger
	allowUnsigned bool
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// AllowUnsigned lets notifications through when no private key is
// configured. Only outside production.
func AllowUnsigned(allow bool) Option {
	return func(c *Client) {
		c.allowUnsigned = allow
	}
}

// NewClient builds the Ozow adapter.
func NewClient(cfg config.OzowConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.SiteCode) == "" {
		return nil, errSiteCodeRequired
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	client := &Client{
		cfg:        cfg,
		logg:       logg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) Provider() enums.PaymentProvider {
	return enums.ProviderOzow
}

// BuildPaymentRequest assembles and signs the outbound body.
func (c *Client) BuildPaymentRequest(req providers.CheckoutRequest) PaymentRequest {
	body := PaymentRequest{
		SiteCode:             c.cfg.SiteCode,
		CountryCode:          countryCode,
		CurrencyCode:         currencyCode,
		Amount:               money.Format(req.Amount),
		TransactionReference: req.TransactionReference(),
		BankReference:        req.BankReference,
		Optional1:            req.Optional[0],
		Optional2:            req.Optional[1],
		Optional3:            req.Optional[2],
		Optional4:            req.Optional[3],
		Optional5:            req.Optional[4],
		Customer:             req.Customer,
		CancelURL:            c.cfg.CancelURL,
		ErrorURL:             c.cfg.ErrorURL,
		SuccessURL:           c.cfg.SuccessURL,
		NotifyURL:            c.cfg.NotifyURL,
		IsTest:               c.cfg.IsTest,
	}
	body.HashCheck = RequestHash(body, c.cfg.PrivateKey)
	return body
}

// CreateCheckout posts a payment request and returns the hosted page URL.
func (c *Client) CreateCheckout(ctx context.Context, req providers.CheckoutRequest) (*providers.CheckoutSession, error) {
	if err := money.RequirePositive(req.Amount); err != nil {
		return nil, err
	}
	if cur := strings.ToUpper(strings.TrimSpace(req.Currency)); cur != "" && cur != currencyCode {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "ozow only settles %s", currencyCode)
	}

	body := c.BuildPaymentRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal ozow payment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build ozow payment request")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("ApiKey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "ozow request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read ozow response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), "ozow unavailable")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderRejected, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), "ozow rejected payment request").
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var decoded paymentResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderRejected, err, "decode ozow response")
	}
	if decoded.ErrorMessage != "" || decoded.URL == "" {
		msg := decoded.ErrorMessage
		if msg == "" {
			msg = "missing redirect url"
		}
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "ozow rejected payment request").
			WithDetails(map[string]any{"provider_message": msg})
	}

	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"provider":              string(enums.ProviderOzow),
		"transaction_reference": body.TransactionReference,
		"payment_request_id":    decoded.PaymentRequestID,
		"amount":                body.Amount,
	}), "ozow payment request accepted")

	return &providers.CheckoutSession{
		RedirectURL:       decoded.URL,
		ProviderReference: decoded.PaymentRequestID,
		Payload: map[string]any{
			"siteCode":             body.SiteCode,
			"amount":               body.Amount,
			"transactionReference": body.TransactionReference,
			"bankReference":        body.BankReference,
			"isTest":               body.IsTest,
		},
	}, nil
}
