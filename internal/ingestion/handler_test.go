package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-intake/internal/constants"
	"invoice-intake/internal/logger"
)

func setupRouter(t *testing.T, opts ...ServiceOption) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := NewService(NewMemoryRepository(), NewMemoryAlertSink(), logger.NopLogger(), opts...)
	handler := NewHandler(svc, logger.NopLogger())

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, svc
}

func doRequest(router *gin.Engine, method, path string, body []byte, scopes string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if scopes != "" {
		req.Header.Set("X-User-Id", "user-1")
		req.Header.Set("X-Scopes", scopes)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) ApiResponse {
	t.Helper()
	var response ApiResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func TestListIntake_RequiresIdentity(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doRequest(router, http.MethodGet, "/api/v1/invoices/intake", nil, "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestListIntake_RequiresAnalystScope(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doRequest(router, http.MethodGet, "/api/v1/invoices/intake", nil, constants.ScopeFinanceOps)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestListIntake_ReturnsQueue(t *testing.T) {
	router, svc := setupRouter(t)
	processedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.IngestAPEmailInvoice(context.Background(), "msg-1", testMetadata(), "sha-1", processedAt)
	require.NoError(t, err)

	recorder := doRequest(router, http.MethodGet, "/api/v1/invoices/intake", nil, constants.ScopeFinanceAnalyst)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Success bool                 `json:"success"`
		Data    []IntakeItemResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))

	assert.True(t, response.Success)
	require.Len(t, response.Data, 1)
	item := response.Data[0]
	assert.Equal(t, "inv-001|contoso|2026-02-01|125.00", item.DedupeKey)
	assert.Equal(t, "INV-001", item.InvoiceNumber)
	require.NotNil(t, item.FileHash)
	assert.Equal(t, "sha-1", *item.FileHash)
	require.Len(t, item.History, 1)
	assert.Equal(t, "AP email", item.History[0].Source)
	assert.Equal(t, "ingested:msg-1", item.History[0].Status)
}

func TestListIntake_SourceFilter(t *testing.T) {
	router, svc := setupRouter(t)
	ctx := context.Background()
	processedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.IngestAPEmailInvoice(ctx, "msg-1", testMetadata(), "", processedAt)
	require.NoError(t, err)

	other := testMetadata()
	other.InvoiceNumber = "INV-002"
	_, err = svc.IngestAccountingInvoice(ctx, "doc-1", other, "", processedAt.Add(time.Minute))
	require.NoError(t, err)

	recorder := doRequest(router, http.MethodGet, "/api/v1/invoices/intake?source=Accounting+system", nil, constants.ScopeFinanceAnalyst)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Data []IntakeItemResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Len(t, response.Data, 1)
	assert.Equal(t, "INV-002", response.Data[0].InvoiceNumber)
}

func TestListIntake_UnknownSource(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doRequest(router, http.MethodGet, "/api/v1/invoices/intake?source=Fax", nil, constants.ScopeFinanceAnalyst)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	response := decodeResponse(t, recorder)
	assert.False(t, response.Success)
	assert.Equal(t, "VALIDATION_ERROR", response.ErrorCode)
}

func TestListIntake_InvalidSort(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doRequest(router, http.MethodGet, "/api/v1/invoices/intake?sort=sideways", nil, constants.ScopeFinanceAnalyst)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSyncAPEmail_TriggersRound(t *testing.T) {
	fetcher := &stubFetcher{payloads: []SourceInvoicePayload{payloadFor("msg-1", testMetadata())}}
	router, _ := setupRouter(t, WithAPEmailSource(fetcher))

	recorder := doRequest(router, http.MethodPost, "/api/v1/ingestion/sync/ap-email", nil, constants.ScopeFinanceOps)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, fetcher.calls)

	var response struct {
		Success bool                 `json:"success"`
		Data    []IntakeItemResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.True(t, response.Success)
	require.Len(t, response.Data, 1)
	assert.Equal(t, "inv-001|contoso|2026-02-01|125.00", response.Data[0].DedupeKey)
}

func TestSyncAPEmail_RequiresOpsScope(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doRequest(router, http.MethodPost, "/api/v1/ingestion/sync/ap-email", nil, constants.ScopeFinanceAnalyst)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestSyncAccounting_NotConfigured(t *testing.T) {
	router, _ := setupRouter(t)

	recorder := doRequest(router, http.MethodPost, "/api/v1/ingestion/sync/accounting", nil, constants.ScopeFinanceOps)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	response := decodeResponse(t, recorder)
	assert.False(t, response.Success)
	assert.Equal(t, "SERVICE_UNAVAILABLE", response.ErrorCode)
}

func TestSyncAccounting_FetchFailureStillSucceeds(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("connection refused")}
	router, _ := setupRouter(t, WithAccountingSource(fetcher))

	recorder := doRequest(router, http.MethodPost, "/api/v1/ingestion/sync/accounting", nil, constants.ScopeFinanceOps)
	require.Equal(t, http.StatusOK, recorder.Code)

	statusRecorder := doRequest(router, http.MethodGet, "/api/v1/ingestion/status", nil, constants.ScopeFinanceOps)
	require.Equal(t, http.StatusOK, statusRecorder.Code)

	var status struct {
		Data []FailureResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(statusRecorder.Body.Bytes(), &status))
	require.Len(t, status.Data, 1)
	assert.Equal(t, "Accounting system", status.Data[0].Source)
	assert.Equal(t, constants.ErrorTypeFetchFailed, status.Data[0].ErrorType)
}

func TestRecordFailure(t *testing.T) {
	router, svc := setupRouter(t)
	occurredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	body, err := json.Marshal(RecordFailureRequest{
		Source:     "AP email",
		ErrorType:  constants.ErrorTypeIntegrationUnavailable,
		OccurredAt: &occurredAt,
	})
	require.NoError(t, err)

	recorder := doRequest(router, http.MethodPost, "/api/v1/ingestion/failures", body, constants.ScopeFinanceOps)
	require.Equal(t, http.StatusCreated, recorder.Code)

	failures, err := svc.ListIngestionFailures(context.Background())
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, SourceAPEmail, failures[0].Source)
	assert.Equal(t, constants.ErrorTypeIntegrationUnavailable, failures[0].ErrorType)
	assert.True(t, failures[0].OccurredAt.Equal(occurredAt))
}

func TestRecordFailure_UnknownSource(t *testing.T) {
	router, _ := setupRouter(t)

	body := []byte(`{"source":"Fax","error_type":"fetch_failed"}`)
	recorder := doRequest(router, http.MethodPost, "/api/v1/ingestion/failures", body, constants.ScopeFinanceOps)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRecordFailure_MissingFields(t *testing.T) {
	router, _ := setupRouter(t)

	body := []byte(`{"source":"AP email"}`)
	recorder := doRequest(router, http.MethodPost, "/api/v1/ingestion/failures", body, constants.ScopeFinanceOps)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
