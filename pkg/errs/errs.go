// Package errs defines the error taxonomy shared by matching, pairing and
// delivery. Callers test for a class with errors.Is and recover details with
// errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStorage             = errors.New("storage error")
	ErrDelivery            = errors.New("delivery error")
)

// Constraint rules reported by ConstraintError.
const (
	RuleQuotaExceeded        = "quota_exceeded"
	RuleDuplicatePair        = "duplicate_pair"
	RuleSelfPair             = "self_pair"
	RuleRegistrationInactive = "registration_inactive"
	RuleAlreadyRegistered    = "already_registered"
	RuleNotParticipant       = "not_participant"
	RulePairCancelled        = "pair_cancelled"
	RuleNotOffered           = "not_offered"
	RuleInvalidInput         = "invalid_input"
)

type ConstraintError struct {
	Rule   string
	Detail string
}

func (e *ConstraintError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("constraint violation: %s", e.Rule)
	}
	return fmt.Sprintf("constraint violation: %s: %s", e.Rule, e.Detail)
}

func (e *ConstraintError) Unwrap() error {
	return ErrConstraintViolation
}

func Constraint(rule, detail string) error {
	return &ConstraintError{Rule: rule, Detail: detail}
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// Storage wraps a persistence failure. A nil err yields nil so call sites can
// wrap unconditionally.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

type DeliveryError struct {
	MessageID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of message %s: %v", e.MessageID, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDelivery, e.Err}
}

func Delivery(messageID string, err error) error {
	if err == nil {
		return nil
	}
	return &DeliveryError{MessageID: messageID, Err: err}
}

// RuleOf returns the violated rule, or "" when err is not a constraint error.
func RuleOf(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Rule
	}
	return ""
}
