package governance

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRegistrySealed is returned when a policy is registered after the
// registration phase has ended.
var ErrRegistrySealed = errors.New("policy registry is sealed")

// DuplicateNameError is returned when a policy name is registered twice.
type DuplicateNameError struct {
	Name string
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("policy %q is already registered", e.Name)
}

// NewDuplicateNameError creates a new DuplicateNameError.
func NewDuplicateNameError(name string) *DuplicateNameError {
	return &DuplicateNameError{Name: name}
}

// DuplicatePriorityError is returned when a priority is already held by
// another policy.
type DuplicatePriorityError struct {
	Priority int
	Existing string // Policy that holds the priority
	Rejected string // Policy whose registration failed
}

// Error implements the error interface.
func (e *DuplicatePriorityError) Error() string {
	return fmt.Sprintf("priority %d is already held by policy %q (rejected %q)", e.Priority, e.Existing, e.Rejected)
}

// NewDuplicatePriorityError creates a new DuplicatePriorityError.
func NewDuplicatePriorityError(priority int, existing, rejected string) *DuplicatePriorityError {
	return &DuplicatePriorityError{
		Priority: priority,
		Existing: existing,
		Rejected: rejected,
	}
}

// NotFoundError is returned when a policy lookup fails.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy %q not found", e.Name)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(name string) *NotFoundError {
	return &NotFoundError{Name: name}
}

// UnclassifiableContextError is returned when no registered policy applies
// to a request.
type UnclassifiableContextError struct {
	RequestID string
	Tags      TagSet
}

// Error implements the error interface.
func (e *UnclassifiableContextError) Error() string {
	return fmt.Sprintf("context could not be classified [request_id=%s, tags=[%s]]", e.RequestID, strings.Join(e.Tags, ", "))
}

// NewUnclassifiableContextError creates a new UnclassifiableContextError.
func NewUnclassifiableContextError(requestID string, tags TagSet) *UnclassifiableContextError {
	return &UnclassifiableContextError{RequestID: requestID, Tags: tags}
}

// AuditFailureError is returned by the governance facade when a decision
// could not be recorded. The decision is withheld.
type AuditFailureError struct {
	RequestID string
	Cause     error
}

// Error implements the error interface.
func (e *AuditFailureError) Error() string {
	return fmt.Sprintf("audit append failed [request_id=%s]: %v", e.RequestID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *AuditFailureError) Unwrap() error {
	return e.Cause
}

// NewAuditFailureError creates a new AuditFailureError.
func NewAuditFailureError(requestID string, cause error) *AuditFailureError {
	return &AuditFailureError{RequestID: requestID, Cause: cause}
}

// InvalidPolicyError is returned when a policy cannot be registered because
// it is nil or unnamed.
type InvalidPolicyError struct {
	Message string
}

// Error implements the error interface.
func (e *InvalidPolicyError) Error() string {
	return "invalid policy: " + e.Message
}
