package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-intake/internal/config"
	"invoice-intake/internal/ingestion"
)

type stubClient struct {
	payloads []ingestion.SourceInvoicePayload
	err      error
}

func (c *stubClient) FetchNewInvoices(ctx context.Context) ([]ingestion.SourceInvoicePayload, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.payloads, nil
}

func TestAdapter_PassesPayloadsThrough(t *testing.T) {
	payloads := []ingestion.SourceInvoicePayload{{SourceID: "msg-1"}}
	adapter := NewAdapter("ap-email", &stubClient{payloads: payloads})

	got, err := adapter.FetchNewInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payloads, got)
}

func TestAdapter_NormalizesErrors(t *testing.T) {
	adapter := NewAdapter("accounting", &stubClient{err: errors.New("tls handshake failed")})

	_, err := adapter.FetchNewInvoices(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.Contains(t, err.Error(), "accounting")
	assert.Contains(t, err.Error(), "tls handshake failed")
}

func TestAPEmailClient_FetchNewInvoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/inbox/invoices", r.URL.Path)
		assert.Equal(t, "new", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"message_id": "msg-1",
				"invoice_number": "INV-001",
				"supplier": "Contoso",
				"amount": 125.0,
				"invoice_date": "2026-02-01T00:00:00Z",
				"attachment_hash": "sha-1",
				"received_at": "2026-03-01T09:00:00Z"
			}
		]`))
	}))
	defer server.Close()

	client := NewAPEmailClient(config.SourceConfig{BaseURL: server.URL, APIToken: "token-1"})

	payloads, err := client.FetchNewInvoices(context.Background())
	require.NoError(t, err)

	require.Len(t, payloads, 1)
	payload := payloads[0]
	assert.Equal(t, "msg-1", payload.SourceID)
	assert.Equal(t, "INV-001", payload.Metadata.InvoiceNumber)
	assert.Equal(t, "Contoso", payload.Metadata.Supplier)
	assert.Equal(t, 125.0, payload.Metadata.Amount)
	assert.True(t, payload.Metadata.InvoiceDate.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "sha-1", payload.FileHash)
}

func TestAPEmailClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewAPEmailClient(config.SourceConfig{BaseURL: server.URL})

	_, err := client.FetchNewInvoices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestAccountingClient_FetchNewInvoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/invoices", r.URL.Path)
		assert.Equal(t, "pending", r.URL.Query().Get("state"))
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"document_id": "doc-7",
				"number": "INV-001",
				"vendor_name": "Contoso",
				"gross_amount": 125.0,
				"document_date": "2026-02-01T00:00:00Z",
				"file_digest": "sha-1",
				"posted_at": "2026-03-01T10:00:00Z"
			}
		]`))
	}))
	defer server.Close()

	client := NewAccountingClient(config.SourceConfig{BaseURL: server.URL, APIToken: "key-1"})

	payloads, err := client.FetchNewInvoices(context.Background())
	require.NoError(t, err)

	require.Len(t, payloads, 1)
	payload := payloads[0]
	assert.Equal(t, "doc-7", payload.SourceID)
	assert.Equal(t, "Contoso", payload.Metadata.Supplier)
	assert.Equal(t, "sha-1", payload.FileHash)
}

func TestAccountingClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	client := NewAccountingClient(config.SourceConfig{BaseURL: server.URL})

	_, err := client.FetchNewInvoices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
