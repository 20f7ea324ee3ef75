// Package invoicing talks to the downstream invoicing system. The billing
// engine never owns invoices; it raises them here and keeps the returned
// reference. The memory provider backs deployments without a reachable
// invoicing system.
package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/memberbill/memberbill/internal/config"
	domaininvoicing "github.com/memberbill/memberbill/internal/domain/invoicing"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
)

const (
	ProviderMemory = "memory"
	ProviderHTTP   = "http"

	defaultRequestsPerSecond = 25
)

// NewGateway selects the gateway implementation from configuration
func NewGateway(cfg *config.Configuration, log *logger.Logger) (domaininvoicing.Gateway, error) {
	switch cfg.Invoicing.Provider {
	case ProviderHTTP:
		return NewHTTPGateway(&cfg.Invoicing, log), nil
	case ProviderMemory, "":
		return NewMemoryGateway(log), nil
	default:
		return nil, ierr.NewError("unsupported invoicing provider").
			WithHint(fmt.Sprintf("Unknown invoicing provider %q", cfg.Invoicing.Provider)).
			Mark(ierr.ErrConfiguration)
	}
}

// HTTPGateway raises invoices against the invoicing system's REST API.
// Connection errors and 5xx responses retry with backoff; requests are rate
// limited so billing sweeps cannot flood the gateway. Failures that a retry
// could still fix are marked transient.
type HTTPGateway struct {
	cfg     *config.InvoicingConfig
	log     *logger.Logger
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

func NewHTTPGateway(cfg *config.InvoicingConfig, log *logger.Logger) *HTTPGateway {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	client.Logger = nil

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	return &HTTPGateway{
		cfg:     cfg,
		log:     log,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type createInvoiceResponse struct {
	InvoiceRef string `json:"invoice_ref"`
}

// CreateInvoice raises an invoice and returns its external reference
func (g *HTTPGateway) CreateInvoice(ctx context.Context, invoice *domaininvoicing.Invoice) (string, error) {
	if err := invoice.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(invoice)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to encode invoice").
			Mark(ierr.ErrSystem)
	}

	status, payload, err := g.send(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/invoices", body)
	if err != nil {
		return "", err
	}

	if status != http.StatusOK && status != http.StatusCreated {
		g.log.Errorw("invoicing gateway rejected invoice",
			"status", status,
			"body", string(payload),
			"billing_cycle_id", invoice.BillingCycleID)
		return "", g.classify("create invoice", status)
	}

	var resp createInvoiceResponse
	if err := json.Unmarshal(payload, &resp); err != nil || resp.InvoiceRef == "" {
		return "", ierr.NewError("invoicing gateway returned no invoice reference").
			WithHint("The invoicing system response could not be decoded").
			Mark(ierr.ErrHTTPClient)
	}

	return resp.InvoiceRef, nil
}

// CancelInvoice voids a previously raised invoice
func (g *HTTPGateway) CancelInvoice(ctx context.Context, invoiceRef string) error {
	url := fmt.Sprintf("%s/v1/invoices/%s/void", g.cfg.BaseURL, invoiceRef)

	status, payload, err := g.send(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	if status != http.StatusOK && status != http.StatusNoContent {
		g.log.Errorw("invoicing gateway rejected void",
			"status", status,
			"body", string(payload),
			"invoice_ref", invoiceRef)
		return g.classify("cancel invoice", status)
	}

	return nil
}

func (g *HTTPGateway) send(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, nil, ierr.WithError(err).
			WithHint("Invoicing request cancelled while rate limited").
			Mark(ierr.ErrTransient)
	}

	var rawBody io.Reader
	if body != nil {
		rawBody = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, rawBody)
	if err != nil {
		return 0, nil, ierr.WithError(err).
			WithHint("Failed to build invoicing request").
			Mark(ierr.ErrSystem)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("x-api-key", g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// Retries are exhausted at this point
		return 0, nil, ierr.WithError(err).
			WithHint("The invoicing system did not respond").
			Mark(ierr.ErrTransient)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, ierr.WithError(err).
			WithHint("Failed to read invoicing response").
			Mark(ierr.ErrTransient)
	}

	return resp.StatusCode, payload, nil
}

func (g *HTTPGateway) classify(op string, status int) error {
	e := ierr.NewError("invoicing gateway rejected " + op).
		WithHint(fmt.Sprintf("The invoicing system returned status %d", status)).
		WithReportableDetails(map[string]any{
			"status": status,
		})

	switch {
	case status == http.StatusNotFound:
		return e.Mark(ierr.ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return e.Mark(ierr.ErrConfiguration)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return e.Mark(ierr.ErrValidation)
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return e.Mark(ierr.ErrTransient)
	default:
		return e.Mark(ierr.ErrHTTPClient)
	}
}
