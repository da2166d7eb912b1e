// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import "math/big"

// numberKind tags which arm of Number is populated. Resolving the
// dynamic type of a metric value happens once, at the call site that
// builds a Number (NumberFrom); the packer itself only ever switches on
// this tag, never on a Go interface's dynamic type.
type numberKind uint8

const (
	numberNil numberKind = iota
	numberInt
	numberUint
	numberFloat
)

// Number is a closed sum type over the numeric encodings msgpack
// supports: a signed 64-bit integer, an unsigned 64-bit integer, a
// 64-bit float, or nil. Metrics values arrive from upstream as one of
// these; Number pins the choice down so pack_number never needs runtime
// type dispatch (see spec §9).
type Number struct {
	kind numberKind
	i    int64
	u    uint64
	f    float64
}

// NumberNil returns the absent/nil number.
func NumberNil() Number { return Number{kind: numberNil} }

// NumberInt64 wraps a signed integer.
func NumberInt64(v int64) Number { return Number{kind: numberInt, i: v} }

// NumberUint64 wraps an unsigned integer.
func NumberUint64(v uint64) Number { return Number{kind: numberUint, u: v} }

// NumberFloat64 wraps a 64-bit float.
func NumberFloat64(v float64) Number { return Number{kind: numberFloat, f: v} }

// NumberFrom resolves an arbitrary Go numeric value into a Number,
// picking the signed/unsigned encoding by sign as spec §4.1 prescribes
// and rejecting values that don't fit in 64 bits.
func NumberFrom(v interface{}) (Number, error) {
	switch n := v.(type) {
	case nil:
		return NumberNil(), nil
	case int:
		return numberFromInt64(int64(n))
	case int8:
		return NumberInt64(int64(n)), nil
	case int16:
		return NumberInt64(int64(n)), nil
	case int32:
		return NumberInt64(int64(n)), nil
	case int64:
		return numberFromInt64(n)
	case uint:
		return numberFromUint64(uint64(n))
	case uint8:
		return NumberUint64(uint64(n)), nil
	case uint16:
		return NumberUint64(uint64(n)), nil
	case uint32:
		return NumberUint64(uint64(n)), nil
	case uint64:
		return numberFromUint64(n)
	case float32:
		return NumberFloat64(float64(n)), nil
	case float64:
		return NumberFloat64(n), nil
	case *big.Int:
		if !n.IsInt64() && !n.IsUint64() {
			return Number{}, &NumericOverflow{Value: n.String()}
		}
		if n.Sign() < 0 {
			return NumberInt64(n.Int64()), nil
		}
		return NumberUint64(n.Uint64()), nil
	default:
		return Number{}, &UnhandledType{Value: v}
	}
}

func numberFromInt64(v int64) (Number, error) {
	if v >= 0 {
		return NumberUint64(uint64(v)), nil
	}
	return NumberInt64(v), nil
}

func numberFromUint64(v uint64) (Number, error) {
	return NumberUint64(v), nil
}
