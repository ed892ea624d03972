package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a sync error for retry and propagation decisions
type Kind string

const (
	KindTransient  Kind = "TRANSIENT"
	KindCredential Kind = "CREDENTIAL"
	KindValidation Kind = "VALIDATION"
	KindStore      Kind = "STORE"
	KindNotFound   Kind = "NOT_FOUND"
	KindInternal   Kind = "INTERNAL"
)

// SyncError is the application error carried through the sync engine.
// Entity and Op tag every error with where it happened, regardless of
// whether the retry policy ultimately swallows it.
type SyncError struct {
	Kind      Kind
	Entity    string
	Op        string
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *SyncError) Error() string {
	prefix := string(e.Kind)
	if e.Entity != "" {
		prefix = fmt.Sprintf("%s [%s/%s]", e.Kind, e.Entity, e.Op)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// New creates a new SyncError
func New(kind Kind, message string, cause error) *SyncError {
	return &SyncError{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// WithContext returns a copy of the error tagged with entity and operation.
// Non-SyncError causes are wrapped as internal errors.
func WithContext(err error, entity, op string) *SyncError {
	var se *SyncError
	if errors.As(err, &se) {
		tagged := *se
		tagged.Entity = entity
		tagged.Op = op
		return &tagged
	}
	return &SyncError{
		Kind:      KindInternal,
		Entity:    entity,
		Op:        op,
		Message:   err.Error(),
		Cause:     err,
		Timestamp: time.Now(),
	}
}

func is(err error, kind Kind) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsTransient checks if the error is retryable with backoff
func IsTransient(err error) bool { return is(err, KindTransient) }

// IsCredential checks if the error indicates an expired or invalid credential
func IsCredential(err error) bool { return is(err, KindCredential) }

// IsValidation checks if the error is a permanent request rejection
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsStore checks if the error came from the relational store
func IsStore(err error) bool { return is(err, KindStore) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// NewTransientError creates a retryable external-platform error
func NewTransientError(message string, cause error) *SyncError {
	return New(KindTransient, message, cause)
}

// NewCredentialError creates a credential rejection error
func NewCredentialError(message string, cause error) *SyncError {
	return New(KindCredential, message, cause)
}

// NewValidationError creates a permanent request rejection error
func NewValidationError(message string, cause error) *SyncError {
	return New(KindValidation, message, cause)
}

// NewStoreError creates a relational-store error
func NewStoreError(message string, cause error) *SyncError {
	return New(KindStore, message, cause)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string, cause error) *SyncError {
	return New(KindNotFound, message, cause)
}

// SyncInProgressError signals that a run is already executing for the
// same tenant and entity type. It is a skip condition, not a failure.
type SyncInProgressError struct {
	TenantID string
	Entity   string
}

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("sync already in progress for %s/%s", e.TenantID, e.Entity)
}

// NewSyncInProgressError creates a new SyncInProgressError
func NewSyncInProgressError(tenantID, entity string) error {
	return &SyncInProgressError{TenantID: tenantID, Entity: entity}
}

// IsSyncInProgress checks if the error is a sync-in-progress skip condition
func IsSyncInProgress(err error) bool {
	var e *SyncInProgressError
	return errors.As(err, &e)
}
