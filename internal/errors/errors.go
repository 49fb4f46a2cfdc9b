package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
)

// ErrorType represents different categories of lifecycle errors
type ErrorType string

const (
	// ErrorTypeValidation represents bad arguments, unknown target versions, malformed filters
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	// ErrorTypeNotFound represents missing tables, manifests or backups
	ErrorTypeNotFound ErrorType = "NOT_FOUND_ERROR"
	// ErrorTypeConflict represents duplicate migration versions and restore key collisions
	ErrorTypeConflict ErrorType = "CONFLICT_ERROR"
	// ErrorTypeTransientStore represents collaborator calls that failed but may succeed on retry
	ErrorTypeTransientStore ErrorType = "TRANSIENT_STORE_ERROR"
	// ErrorTypeIntegrity represents failed verification checks and corrupted artifacts
	ErrorTypeIntegrity ErrorType = "INTEGRITY_ERROR"
	// ErrorTypeStorage represents non-retryable store or blob failures
	ErrorTypeStorage ErrorType = "STORAGE_ERROR"
	// ErrorTypeUnknown represents unclassified errors
	ErrorTypeUnknown ErrorType = "UNKNOWN_ERROR"
)

// LifecycleError represents an error raised by the database lifecycle subsystem
type LifecycleError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *LifecycleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *LifecycleError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *LifecycleError) WithContext(key string, value interface{}) *LifecycleError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewLifecycleError creates a new LifecycleError
func NewLifecycleError(errorType ErrorType, message string, cause error) *LifecycleError {
	return &LifecycleError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Common error constructors
func NewValidationError(message string, cause error) *LifecycleError {
	return NewLifecycleError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *LifecycleError {
	return NewLifecycleError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *LifecycleError {
	return NewLifecycleError(ErrorTypeConflict, message, cause)
}

func NewTransientStoreError(message string, cause error) *LifecycleError {
	return NewLifecycleError(ErrorTypeTransientStore, message, cause)
}

func NewIntegrityError(message string, cause error) *LifecycleError {
	return NewLifecycleError(ErrorTypeIntegrity, message, cause)
}

func NewStorageError(message string, cause error) *LifecycleError {
	return NewLifecycleError(ErrorTypeStorage, message, cause)
}

// MigrationFailure reports the migration unit that halted a batch.
// Progress recorded before the failing unit stays recorded.
type MigrationFailure struct {
	Version string `json:"version"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *MigrationFailure) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Version, e.Cause)
}

// Unwrap returns the underlying cause error
func (e *MigrationFailure) Unwrap() error {
	return e.Cause
}

// NewMigrationFailure creates a new MigrationFailure
func NewMigrationFailure(version string, cause error) *MigrationFailure {
	return &MigrationFailure{
		Version: version,
		Cause:   cause,
	}
}

// ValidationError represents a single field-level validation problem
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ErrorClassifier classifies raw collaborator errors into the lifecycle taxonomy
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns a LifecycleError with appropriate classification
func (ec *ErrorClassifier) ClassifyError(err error) *LifecycleError {
	if err == nil {
		return nil
	}

	var lcErr *LifecycleError
	if errors.As(err, &lcErr) {
		return lcErr
	}

	if awsErr := ec.classifyAWSError(err); awsErr != nil {
		return awsErr
	}

	if netErr := ec.classifyNetworkError(err); netErr != nil {
		return netErr
	}

	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	return NewLifecycleError(ErrorTypeUnknown, "an unexpected error occurred", err)
}

// classifyAWSError classifies aws-sdk errors by their service error code
func (ec *ErrorClassifier) classifyAWSError(err error) *LifecycleError {
	var awsErr awserr.Error
	if !errors.As(err, &awsErr) {
		return nil
	}

	switch awsErr.Code() {
	case "ProvisionedThroughputExceededException",
		"ThrottlingException",
		"RequestLimitExceeded",
		"LimitExceededException",
		"InternalServerError",
		"ServiceUnavailable",
		"SlowDown",
		"TransactionConflictException":
		return NewTransientStoreError("store call was throttled or failed transiently", err).
			WithContext("aws_error_code", awsErr.Code())
	case "ConditionalCheckFailedException":
		return NewConflictError("item already exists", err).
			WithContext("aws_error_code", awsErr.Code())
	case "ResourceNotFoundException", "NoSuchKey", "NoSuchBucket", "NotFound":
		return NewNotFoundError("store resource does not exist", err).
			WithContext("aws_error_code", awsErr.Code())
	case "ResourceInUseException":
		return NewConflictError("store resource is busy with another change", err).
			WithContext("aws_error_code", awsErr.Code())
	case "AccessDenied", "AccessDeniedException":
		return NewStorageError("access to store resource was denied", err).
			WithContext("aws_error_code", awsErr.Code())
	default:
		return NewStorageError(fmt.Sprintf("store call failed: %s", awsErr.Code()), err).
			WithContext("aws_error_code", awsErr.Code())
	}
}

// classifyNetworkError classifies network-related errors
func (ec *ErrorClassifier) classifyNetworkError(err error) *LifecycleError {
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewTransientStoreError("network operation timed out", err)
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewTransientStoreError("network I/O error", err)
	}

	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *LifecycleError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientStoreError("operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewStorageError("operation was canceled", err)
	}

	return nil
}

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryHandler retries operations that fail with transient store errors
type RetryHandler struct {
	config     RetryConfig
	classifier *ErrorClassifier
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(config RetryConfig) *RetryHandler {
	return &RetryHandler{
		config:     config,
		classifier: NewErrorClassifier(),
	}
}

// NewDefaultRetryHandler creates a retry handler with default configuration
func NewDefaultRetryHandler() *RetryHandler {
	return NewRetryHandler(DefaultRetryConfig())
}

// Retry executes operation, retrying while it fails with a retryable error
func (rh *RetryHandler) Retry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= rh.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return NewStorageError("operation canceled", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		classified := rh.classifier.ClassifyError(err)

		if !IsRetryable(classified) {
			return classified
		}

		if attempt == rh.config.MaxAttempts {
			break
		}

		delay := rh.calculateDelay(attempt)

		select {
		case <-ctx.Done():
			return NewStorageError("operation canceled during retry", ctx.Err())
		case <-time.After(delay):
		}
	}

	return rh.classifier.ClassifyError(lastErr).
		WithContext("attempts", rh.config.MaxAttempts)
}

// calculateDelay calculates the delay for a given attempt using exponential backoff
func (rh *RetryHandler) calculateDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= rh.config.Multiplier
	}

	delay := time.Duration(float64(rh.config.BaseDelay) * multiplier)

	if delay > rh.config.MaxDelay {
		delay = rh.config.MaxDelay
	}

	return delay
}

// GetErrorType returns the lifecycle error type of an error
func GetErrorType(err error) ErrorType {
	var lcErr *LifecycleError
	if errors.As(err, &lcErr) {
		return lcErr.Type
	}
	var vErrs ValidationErrors
	if errors.As(err, &vErrs) {
		return ErrorTypeValidation
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return ErrorTypeValidation
	}
	return ErrorTypeUnknown
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsTransient reports whether err is a transient store error
func IsTransient(err error) bool {
	return GetErrorType(err) == ErrorTypeTransientStore
}

// IsIntegrity reports whether err is an integrity error
func IsIntegrity(err error) bool {
	return GetErrorType(err) == ErrorTypeIntegrity
}

// IsMigrationFailure reports whether err carries a halted migration version
func IsMigrationFailure(err error) bool {
	var mf *MigrationFailure
	return errors.As(err, &mf)
}

// IsRetryable determines if an error is worth retrying
func IsRetryable(err error) bool {
	return GetErrorType(err) == ErrorTypeTransientStore
}

// IsPermanent determines if an error is permanent and should not be retried
func IsPermanent(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeConflict, ErrorTypeIntegrity:
		return true
	default:
		return false
	}
}

// WrapError wraps an existing error with additional context, preserving its classification
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var lcErr *LifecycleError
	if errors.As(err, &lcErr) {
		return NewLifecycleError(lcErr.Type, message, err)
	}

	classifier := NewErrorClassifier()
	classified := classifier.ClassifyError(err)
	classified.Message = message
	return classified
}
