package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	ScopeFinanceAnalyst = "finance_analyst"
	ScopeFinanceOps     = "finance_ops"
)

const (
	ErrorTypeFetchFailed            = "fetch_failed"
	ErrorTypeIntegrationUnavailable = "integration_unavailable"
)

const (
	StatusPrefixIngested      = "ingested"
	StatusPrefixDuplicateSeen = "duplicate_seen"
)

const (
	DefaultAlertTopic = "ingestion_failures"
)
