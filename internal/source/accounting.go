package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"invoice-intake/internal/config"
	"invoice-intake/internal/constants"
	"invoice-intake/internal/ingestion"
)

// AccountingClient pulls pending invoice documents from the accounting
// system API.
type AccountingClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

func NewAccountingClient(cfg config.SourceConfig) *AccountingClient {
	timeout := constants.DefaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &AccountingClient{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type accountingDocument struct {
	DocumentID   string    `json:"document_id"`
	Number       string    `json:"number"`
	VendorName   string    `json:"vendor_name"`
	GrossAmount  float64   `json:"gross_amount"`
	DocumentDate time.Time `json:"document_date"`
	FileDigest   string    `json:"file_digest"`
	PostedAt     time.Time `json:"posted_at"`
}

func (c *AccountingClient) FetchNewInvoices(ctx context.Context) ([]ingestion.SourceInvoicePayload, error) {
	url := c.baseURL + "/api/v2/invoices?state=pending"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiToken != "" {
		req.Header.Set("X-Api-Key", c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("accounting api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("accounting api returned status: %d", resp.StatusCode)
	}

	var docs []accountingDocument
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to decode accounting response: %w", err)
	}

	payloads := make([]ingestion.SourceInvoicePayload, 0, len(docs))
	for _, doc := range docs {
		payloads = append(payloads, ingestion.SourceInvoicePayload{
			SourceID: doc.DocumentID,
			Metadata: ingestion.InvoiceMetadata{
				InvoiceNumber: doc.Number,
				Supplier:      doc.VendorName,
				Amount:        doc.GrossAmount,
				InvoiceDate:   doc.DocumentDate,
			},
			FileHash:   doc.FileDigest,
			ReceivedAt: doc.PostedAt,
		})
	}

	return payloads, nil
}
