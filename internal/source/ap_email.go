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

// APEmailClient pulls parsed invoices from the AP mailbox gateway. The
// gateway has already done the email/attachment parsing; this client only
// maps its JSON feed onto source payloads.
type APEmailClient struct {
	baseURL  string
	apiToken string
	client   *http.Client
}

func NewAPEmailClient(cfg config.SourceConfig) *APEmailClient {
	timeout := constants.DefaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &APEmailClient{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type apEmailInvoice struct {
	MessageID      string    `json:"message_id"`
	InvoiceNumber  string    `json:"invoice_number"`
	Supplier       string    `json:"supplier"`
	Amount         float64   `json:"amount"`
	InvoiceDate    time.Time `json:"invoice_date"`
	AttachmentHash string    `json:"attachment_hash"`
	ReceivedAt     time.Time `json:"received_at"`
}

func (c *APEmailClient) FetchNewInvoices(ctx context.Context) ([]ingestion.SourceInvoicePayload, error) {
	url := c.baseURL + "/v1/inbox/invoices?status=new"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mailbox gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mailbox gateway returned status: %d", resp.StatusCode)
	}

	var items []apEmailInvoice
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode mailbox response: %w", err)
	}

	payloads := make([]ingestion.SourceInvoicePayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, ingestion.SourceInvoicePayload{
			SourceID: item.MessageID,
			Metadata: ingestion.InvoiceMetadata{
				InvoiceNumber: item.InvoiceNumber,
				Supplier:      item.Supplier,
				Amount:        item.Amount,
				InvoiceDate:   item.InvoiceDate,
			},
			FileHash:   item.AttachmentHash,
			ReceivedAt: item.ReceivedAt,
		})
	}

	return payloads, nil
}
