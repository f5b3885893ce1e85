package aggregator

import (
	"fmt"
	"strings"
)

// EntityError is the extension failure of one entity.
type EntityError struct {
	ID  int
	Err error
}

// Error implements the error interface.
func (e EntityError) Error() string {
	return fmt.Sprintf("%d: %v", e.ID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e EntityError) Unwrap() error {
	return e.Err
}

// BatchError lists the entities of a batch whose extension failed. The
// other entities of the batch were extended and merged.
type BatchError struct {
	Kind     string
	Total    int
	Failures []EntityError
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, fmt.Sprint(f.ID))
	}
	return fmt.Sprintf("extend %s: %d of %d failed (%s): %v",
		e.Kind, len(e.Failures), e.Total, strings.Join(ids, ", "), e.Failures[0].Err)
}

// Unwrap exposes every failure to errors.Is/As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// First returns the first failure in batch order.
func (e *BatchError) First() error {
	return e.Failures[0].Err
}

// AllFailed reports whether no entity of the batch succeeded.
func (e *BatchError) AllFailed() bool {
	return len(e.Failures) == e.Total
}
