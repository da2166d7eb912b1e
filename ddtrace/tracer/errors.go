// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import "fmt"

// BufferFull is returned by Put when accepting the item would push the
// buffer's logical size past its configured maximum. It is transient:
// the caller is expected to Flush and retry the same item.
type BufferFull struct {
	// Delta is the number of bytes the item would have added.
	Delta int
}

func (e *BufferFull) Error() string {
	return fmt.Sprintf("buffer full: item of %d bytes does not fit", e.Delta)
}

// BufferItemTooLarge is returned by Put when a single item's encoded
// size exceeds the buffer's configured max item size. It is permanent
// for that item; the caller must drop it rather than retry.
type BufferItemTooLarge struct {
	// Delta is the item's encoded size.
	Delta int
}

func (e *BufferItemTooLarge) Error() string {
	return fmt.Sprintf("item too large: %d bytes exceeds the configured max item size", e.Delta)
}

// AllocationFailed is returned by encoder constructors when the
// requested buffer limits cannot be honored.
type AllocationFailed struct {
	Reason string
}

func (e *AllocationFailed) Error() string {
	return fmt.Sprintf("buffer allocation failed: %s", e.Reason)
}

// NumericOverflow is returned when a numeric value cannot be represented
// in any of msgpack's 64-bit integer or float encodings.
type NumericOverflow struct {
	Value interface{}
}

func (e *NumericOverflow) Error() string {
	return fmt.Sprintf("numeric value %v overflows the 64-bit encodings msgpack supports", e.Value)
}

// UnhandledType is returned when a value does not match any of the
// dispatch cases the packer knows how to encode.
type UnhandledType struct {
	Value interface{}
}

func (e *UnhandledType) Error() string {
	return fmt.Sprintf("unhandled type for value %v (%T)", e.Value, e.Value)
}

// EncodingError wraps an unexpected failure from the primitive packing
// layer. It should not occur with a correctly sized buffer; its
// appearance indicates a programming error upstream.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
