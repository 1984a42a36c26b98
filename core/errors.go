// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
)

// package errors
var (
	ErrUnsupportedTransition = errors.New("unsupported layout transition")
	ErrUnsupported           = errors.New("unsupported operation")
	ErrDuplicate             = errors.New("resource is already present")
	ErrNotFound              = errors.New("resource is not present")
	ErrInvalidRange          = errors.New("subresource range out of bounds")
	ErrTimeout               = errors.New("wait timed out")
	ErrTimelineInPresent     = errors.New("present cannot wait on a timeline semaphore")
	ErrNoMemoryType          = errors.New("suitable memory type not found")
	ErrNoQueueFamily         = errors.New("no queue family with the requested capabilities")

	// ErrInvariant is wrapped by every InvariantError.
	ErrInvariant = errors.New("invariant violated")
)

// InvariantError reports a programming error: the caller broke a rule
// that correct code never breaks, such as over-subscribing a pool.
// These are not meant to be recovered from.
type InvariantError struct {
	Op     string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s(): %s", e.Op, e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// invariant logs and returns an InvariantError.
func (d *Device) invariant(op, format string, args ...interface{}) error {
	err := &InvariantError{Op: op, Reason: fmt.Sprintf(format, args...)}
	d.log.WithField("op", op).Error(err.Reason)
	return err
}
