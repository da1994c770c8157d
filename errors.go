package strata

import (
	"fmt"
)

// DecodeError reports a payload that could not be decoded into the caller's
// type. Plain reads never return it: a corrupt entry is dropped and read as
// a miss, surfacing through logs and the SelfHeal hook. GetOrSet returns it
// when a freshly fetched value cannot round-trip into dest.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BatchError aggregates per-key failures of a batch operation. The batch is
// not atomic: Failed < Total means the remaining keys were applied.
type BatchError struct {
	Op     string
	Failed int
	Total  int
	Errs   []error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d/%d keys failed", e.Op, e.Failed, e.Total)
}

func (e *BatchError) Unwrap() []error { return e.Errs }
