package invoice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
)

func testConfig() config.InvoiceConfig {
	return config.InvoiceConfig{
		BaseURL:     "http://invoices.test",
		APIKey:      "inv-key",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
	}
}

func testParams() GenerateParams {
	return GenerateParams{
		InvoiceNumber: "INV-20260314-8C21D4",
		OrderNumber:   "KC-20260314-4F9A21",
		CustomerName:  "Adaeze Okafor",
		CustomerEmail: "adaeze@example.com",
		Currency:      "NGN",
		Lines: []Line{
			{
				Name:      "Bluetooth Speaker",
				Quantity:  2,
				UnitPrice: decimal.NewFromFloat(15000),
				LineTotal: decimal.NewFromFloat(30000),
			},
		},
		Subtotal: decimal.NewFromFloat(30000),
		Total:    decimal.NewFromFloat(30000),
		IssuedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(config.InvoiceConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewClient(config.InvoiceConfig{BaseURL: "http://invoices.test"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestGenerateSuccess(t *testing.T) {
	const expectedURL = "http://invoices.test/v1/invoices"
	respBody := `{"pdf_url":"https://cdn.test/INV-20260314-8C21D4.pdf","image_url":"https://cdn.test/INV-20260314-8C21D4.png","qr_code_url":"https://cdn.test/INV-20260314-8C21D4-qr.png"}`

	var capturedURL string
	var capturedAuth string

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedAuth = req.Header.Get("Authorization")

		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		if payload["invoice_number"] != "INV-20260314-8C21D4" {
			t.Fatalf("unexpected invoice number %q", payload["invoice_number"])
		}
		if payload["order_number"] != "KC-20260314-4F9A21" {
			t.Fatalf("unexpected order number %q", payload["order_number"])
		}

		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Generate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedAuth != "Bearer inv-key" {
		t.Fatalf("unexpected auth header %q", capturedAuth)
	}
	if result.PDFURL != "https://cdn.test/INV-20260314-8C21D4.pdf" {
		t.Fatalf("unexpected pdf url %q", result.PDFURL)
	}
	if result.ImageURL != "https://cdn.test/INV-20260314-8C21D4.png" {
		t.Fatalf("unexpected image url %q", result.ImageURL)
	}
	if result.QRCodeURL != "https://cdn.test/INV-20260314-8C21D4-qr.png" {
		t.Fatalf("unexpected qr code url %q", result.QRCodeURL)
	}
}

func TestGenerateRetriesTransientFailure(t *testing.T) {
	attempts := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       io.NopCloser(strings.NewReader(`{"error":"rendering backlog"}`)),
				Header:     http.Header{},
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"pdf_url":"https://cdn.test/doc.pdf"}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	result, err := client.Generate(context.Background(), testParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if result.PDFURL != "https://cdn.test/doc.pdf" {
		t.Fatalf("unexpected pdf url %q", result.PDFURL)
	}
}

func TestGenerateDoesNotRetryRejection(t *testing.T) {
	attempts := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		attempts++
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Body:       io.NopCloser(strings.NewReader(`{"error":"unknown currency"}`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Generate(context.Background(), testParams())
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateValidatesParams(t *testing.T) {
	called := false
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		called = true
		return nil, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	params := testParams()
	params.InvoiceNumber = ""
	if _, err := client.Generate(context.Background(), params); err == nil {
		t.Fatal("expected validation error")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	params = testParams()
	params.Lines = nil
	if _, err := client.Generate(context.Background(), params); err == nil {
		t.Fatal("expected validation error")
	}

	if called {
		t.Fatal("no request should be sent for invalid params")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
