package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound                   = errors.New("not found")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInvalidQuantity            = errors.New("quantity must be positive")
	ErrAlreadyDecided             = errors.New("request already decided")
	ErrInvalidTransition          = errors.New("invalid state transition")
	ErrConcurrentModification     = errors.New("concurrent modification detected")
	ErrNotRequester               = errors.New("only the requester may cancel")
	ErrReasonRequired             = errors.New("rejection reason required")
	ErrHierarchyViolation         = errors.New("fulfiller is not upstream of requester")
	ErrAccountHasStock            = errors.New("account still holds stock")
	ErrAccountInUse               = errors.New("account is referenced by requests or orders")
	ErrAccountInactive            = errors.New("account inactive")
	ErrProductInactive            = errors.New("product inactive")
	ErrAlreadyRestocked           = errors.New("order already restocked")
	ErrExternalServiceUnavailable = errors.New("external service unavailable")
	ErrPartialBatchFailure        = errors.New("partial batch failure")
	ErrInvalidInput               = errors.New("invalid input")
)

// InsufficientStockError carries the shortage for one (account, product)
type InsufficientStockError struct {
	AccountID string
	ProductID string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: account=%s product=%s available=%d requested=%d",
		e.AccountID, e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ExternalError wraps a courier or POS failure. The remote outcome is unknown.
type ExternalError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalError) Unwrap() []error {
	return []error{ErrExternalServiceUnavailable, e.Err}
}

// BatchFailure is one failed member of a bulk operation
type BatchFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// BatchResult reports per-member outcomes of a bulk operation
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`
}

// PartialBatchError is returned alongside a BatchResult when some members failed
type PartialBatchError struct {
	Result *BatchResult
}

func (e *PartialBatchError) Error() string {
	keys := make([]string, 0, len(e.Result.Failed))
	for _, f := range e.Result.Failed {
		keys = append(keys, f.Key)
	}
	return fmt.Sprintf("partial batch failure: %d succeeded, %d failed (%s)",
		len(e.Result.Succeeded), len(e.Result.Failed), strings.Join(keys, ", "))
}

func (e *PartialBatchError) Unwrap() error {
	return ErrPartialBatchFailure
}

// IsClientError reports errors caused by the caller's input or the current state
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrHierarchyViolation) ||
		errors.Is(err, ErrProductInactive) ||
		errors.Is(err, ErrAccountInactive)
}

// IsConflict reports errors caused by the entity's current state
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrAccountHasStock) ||
		errors.Is(err, ErrAccountInUse) ||
		errors.Is(err, ErrAlreadyRestocked)
}
