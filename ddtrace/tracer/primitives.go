// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import "github.com/tinylib/msgp/msgp"

// arrayPrefixSize returns the width, in bytes, of the msgpack array
// header needed to encode an array of n elements: a fixarray header
// fits in the leading byte for n<16, array16 for n<2^16, array32
// otherwise. BufferedEncoder uses this to compute the logical Size() of
// a buffer before the header is actually written.
func arrayPrefixSize(n int) int {
	switch {
	case n < 16:
		return 1
	case n < 1<<16:
		return 3
	default:
		return 5
	}
}

// appendArrayHeader appends a msgpack array header for n elements.
func appendArrayHeader(dst []byte, n int) []byte {
	return msgp.AppendArrayHeader(dst, uint32(n))
}

// appendNumber dispatches a Number onto dst using the msgpack encoding
// matching its kind: signed for numberInt, unsigned for numberUint,
// 64-bit float for floats, nil for absent values. The choice between
// signed and unsigned by sign is made earlier, by NumberFrom.
func appendNumber(dst []byte, n Number) ([]byte, error) {
	switch n.kind {
	case numberNil:
		return msgp.AppendNil(dst), nil
	case numberInt:
		return msgp.AppendInt64(dst, n.i), nil
	case numberUint:
		return msgp.AppendUint64(dst, n.u), nil
	case numberFloat:
		return msgp.AppendFloat64(dst, n.f), nil
	default:
		return dst, &UnhandledType{Value: n}
	}
}

// appendOptionalString appends s as a msgpack str, or nil when s is
// absent. Used for the nullable text fields on a span (service,
// resource, name, span type).
func appendOptionalString(dst []byte, s *string) []byte {
	if s == nil {
		return msgp.AppendNil(dst)
	}
	return msgp.AppendString(dst, *s)
}
