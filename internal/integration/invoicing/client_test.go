package invoicing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/config"
	domaininvoicing "github.com/memberbill/memberbill/internal/domain/invoicing"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/types"
)

func testInvoice() *domaininvoicing.Invoice {
	return &domaininvoicing.Invoice{
		SubscriberID:   "mem_01",
		SubscriptionID: "subs_01",
		BillingCycleID: "bc_01",
		Currency:       "usd",
		DueDate:        time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Lines: []domaininvoicing.InvoiceLine{
			{
				Kind:        types.InvoiceLineKindSubscription,
				Description: "Annual membership",
				Quantity:    decimal.NewFromInt(1),
				UnitAmount:  decimal.NewFromInt(80),
				Amount:      decimal.NewFromInt(80),
			},
		},
	}
}

func testGateway(t *testing.T, baseURL string, retryMax int) *HTTPGateway {
	t.Helper()

	log, err := logger.NewLogger(config.GetDefaultConfig())
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	g := NewHTTPGateway(&config.InvoicingConfig{
		Provider:          ProviderHTTP,
		BaseURL:           baseURL,
		APIKey:            "test-key",
		TimeoutSeconds:    5,
		RetryMax:          retryMax,
		RequestsPerSecond: 1000,
	}, log)

	// Keep retry backoff out of test runtime
	g.client.RetryWaitMin = time.Millisecond
	g.client.RetryWaitMax = 5 * time.Millisecond
	return g
}

func TestHTTPGatewayCreateInvoice(t *testing.T) {
	var gotPath, gotKey string
	var gotInvoice domaininvoicing.Invoice

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotInvoice); err != nil {
			t.Errorf("failed to decode invoice body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"invoice_ref": "inv_ext_123"})
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL, 0)

	ref, err := g.CreateInvoice(context.Background(), testInvoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "inv_ext_123" {
		t.Errorf("got ref %q, want inv_ext_123", ref)
	}
	if gotPath != "POST /v1/invoices" {
		t.Errorf("got request %q, want POST /v1/invoices", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header not sent, got %q", gotKey)
	}
	if gotInvoice.BillingCycleID != "bc_01" {
		t.Errorf("invoice body lost billing cycle id, got %q", gotInvoice.BillingCycleID)
	}
}

func TestHTTPGatewayCreateInvoiceStatusClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"unprocessable is permanent", http.StatusUnprocessableEntity, ierr.IsValidation},
		{"bad request is permanent", http.StatusBadRequest, ierr.IsValidation},
		{"unauthorized is a configuration fault", http.StatusUnauthorized, ierr.IsConfiguration},
		{"server error is transient", http.StatusServiceUnavailable, ierr.IsTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			g := testGateway(t, srv.URL, 0)

			_, err := g.CreateInvoice(context.Background(), testInvoice())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tt.check(err) {
				t.Errorf("error class mismatch for status %d: %v", tt.status, err)
			}
		})
	}
}

func TestHTTPGatewayRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"invoice_ref": "inv_ext_retry"})
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL, 3)

	ref, err := g.CreateInvoice(context.Background(), testInvoice())
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if ref != "inv_ext_retry" {
		t.Errorf("got ref %q, want inv_ext_retry", ref)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("got %d attempts, want 3", got)
	}
}

func TestHTTPGatewayCancelInvoice(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		if r.URL.Path == "/v1/invoices/inv_missing/void" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	g := testGateway(t, srv.URL, 0)

	if err := g.CancelInvoice(context.Background(), "inv_ext_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "POST /v1/invoices/inv_ext_123/void" {
		t.Errorf("got request %q", gotPath)
	}

	err := g.CancelInvoice(context.Background(), "inv_missing")
	if !ierr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemoryGateway(t *testing.T) {
	log, err := logger.NewLogger(config.GetDefaultConfig())
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	g := NewMemoryGateway(log)

	ref, err := g.CreateInvoice(context.Background(), testInvoice())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref == "" {
		t.Fatal("expected a non-empty invoice reference")
	}

	if err := g.CancelInvoice(context.Background(), ref); err != nil {
		t.Errorf("unexpected cancel error: %v", err)
	}
	if err := g.CancelInvoice(context.Background(), "inv_unknown"); !ierr.IsNotFound(err) {
		t.Errorf("expected not found for unknown ref, got %v", err)
	}

	if _, err := g.CreateInvoice(context.Background(), &domaininvoicing.Invoice{}); !ierr.IsValidation(err) {
		t.Errorf("expected validation error for empty invoice, got %v", err)
	}
}
