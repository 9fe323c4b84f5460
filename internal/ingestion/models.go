package ingestion

import (
	"fmt"
	"time"

	"invoice-intake/internal/constants"
)

// Source identifies the upstream origin of an invoice sighting. The string
// values are the canonical wire representation and must round-trip exactly
// through any serialization boundary.
type Source string

const (
	SourceAPEmail          Source = "AP email"
	SourceAccountingSystem Source = "Accounting system"
)

func (s Source) Valid() bool {
	return s == SourceAPEmail || s == SourceAccountingSystem
}

func ParseSource(value string) (Source, error) {
	s := Source(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown ingestion source %q", value)
	}
	return s, nil
}

// InvoiceMetadata is the invoice identity captured from a source payload.
// Empty strings are legal; they push dedupe onto the file-hash fallback.
type InvoiceMetadata struct {
	InvoiceNumber string    `json:"invoice_number"`
	Supplier      string    `json:"supplier"`
	Amount        float64   `json:"amount"`
	InvoiceDate   time.Time `json:"invoice_date"`
}

// SourceInvoicePayload is one newly available invoice as returned by a
// source fetcher. It is never persisted directly.
type SourceInvoicePayload struct {
	SourceID   string          `json:"source_id"`
	Metadata   InvoiceMetadata `json:"metadata"`
	FileHash   string          `json:"file_hash,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// HistoryEntry is one audit record of a single sighting. Entries are
// append-only.
type HistoryEntry struct {
	Source     Source    `json:"source"`
	IngestedAt time.Time `json:"ingested_at"`
	Status     string    `json:"status"`
}

// IngestedInvoice is the stored intake record for one dedupe key. Metadata
// and file hash are fixed at creation; only the history grows.
type IngestedInvoice struct {
	DedupeKey string          `json:"dedupe_key"`
	Metadata  InvoiceMetadata `json:"metadata"`
	FileHash  string          `json:"file_hash,omitempty"`
	History   []HistoryEntry  `json:"history"`
}

func (inv *IngestedInvoice) RecordEvent(source Source, ingestedAt time.Time, status string) {
	inv.History = append(inv.History, HistoryEntry{
		Source:     source,
		IngestedAt: ingestedAt,
		Status:     status,
	})
}

// LastSeenAt returns the newest history timestamp. History is appended in
// processing order, so the maximum is scanned rather than assumed last.
func (inv *IngestedInvoice) LastSeenAt() time.Time {
	var newest time.Time
	for _, entry := range inv.History {
		if entry.IngestedAt.After(newest) {
			newest = entry.IngestedAt
		}
	}
	return newest
}

// SeenFrom reports whether any history entry originated from the given source.
func (inv *IngestedInvoice) SeenFrom(source Source) bool {
	for _, entry := range inv.History {
		if entry.Source == source {
			return true
		}
	}
	return false
}

// FailureEvent describes one failed sync round for a source.
type FailureEvent struct {
	Source     Source    `json:"source"`
	ErrorType  string    `json:"error_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

func StatusIngested(sourceID string) string {
	return fmt.Sprintf("%s:%s", constants.StatusPrefixIngested, sourceID)
}

func StatusDuplicateSeen(sourceID string) string {
	return fmt.Sprintf("%s:%s", constants.StatusPrefixDuplicateSeen, sourceID)
}
