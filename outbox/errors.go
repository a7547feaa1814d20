package outbox

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox batch size must be positive")
	// ErrEventTypeRequired is returned when Entry.EventType is empty.
	ErrEventTypeRequired = errors.New("outbox event type is required")
	// ErrPayloadRequired is returned when Entry.Payload is empty.
	ErrPayloadRequired = errors.New("outbox payload is required")
	// ErrInvalidPayload is returned when a payload is not valid JSON.
	ErrInvalidPayload = errors.New("outbox payload must be valid JSON")
	// ErrDispatchPanic indicates a dispatcher panic that was recovered and recorded as a failure.
	ErrDispatchPanic = errors.New("outbox dispatcher panic")
	// ErrWorkerPanic indicates a relay worker panic.
	ErrWorkerPanic = errors.New("outbox worker panic")
	// ErrQuerierRequired is returned when a store method is called with a nil querier.
	ErrQuerierRequired = errors.New("outbox: querier is required")
	// ErrDialectRequired is returned when the store dialect is unknown.
	ErrDialectRequired = errors.New("outbox: a known dialect is required")
	// ErrHandleRequired is returned when a consumer is built without a handle.
	ErrHandleRequired = errors.New("outbox: handle is required")
	// ErrDispatcherRequired is returned when a consumer is built without a dispatcher.
	ErrDispatcherRequired = errors.New("outbox: dispatcher is required")
	// ErrStoreRequired is returned when a consumer or maintainer is built without a store.
	ErrStoreRequired = errors.New("outbox: store is required")
	// ErrCleanupLimitInvalid is returned when the cleanup row limit is not positive.
	ErrCleanupLimitInvalid = errors.New("outbox: cleanup limit must be positive")
	// ErrCleanupRetentionInvalid is returned when the cleanup retention is negative.
	ErrCleanupRetentionInvalid = errors.New("outbox: cleanup retention must be non-negative")
)
