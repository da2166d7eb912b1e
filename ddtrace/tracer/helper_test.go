// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
)

// decodeIntf decodes one msgpack-encoded value into a generic Go tree:
// []interface{} for arrays, map[interface{}]interface{} for maps (V05
// uses integer keys for its interned meta/metrics maps, which the
// library's own ReadIntf — built around string-keyed maps — can't
// represent), and the matching scalar type otherwise. It exists purely
// so tests can assert on wire structure without a fixed schema.
func decodeIntf(t *testing.T, data []byte) interface{} {
	t.Helper()
	r := msgp.NewReader(bytes.NewReader(data))
	v, err := decodeAny(r)
	require.NoError(t, err)
	return v
}

func decodeAny(r *msgp.Reader) (interface{}, error) {
	typ, err := r.NextType()
	if err != nil {
		return nil, err
	}
	switch typ {
	case msgp.ArrayType:
		n, err := r.ReadArrayHeader()
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, n)
		for i := range out {
			out[i], err = decodeAny(r)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case msgp.MapType:
		n, err := r.ReadMapHeader()
		if err != nil {
			return nil, err
		}
		out := make(map[interface{}]interface{}, n)
		for i := uint32(0); i < n; i++ {
			k, err := decodeAny(r)
			if err != nil {
				return nil, err
			}
			v, err := decodeAny(r)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case msgp.NilType:
		return nil, r.ReadNil()
	case msgp.BoolType:
		return r.ReadBool()
	case msgp.StrType:
		return r.ReadString()
	case msgp.BinType:
		return r.ReadBytes(nil)
	case msgp.Float32Type:
		return r.ReadFloat32()
	case msgp.Float64Type:
		return r.ReadFloat64()
	case msgp.IntType:
		return r.ReadInt64()
	case msgp.UintType:
		return r.ReadUint64()
	default:
		return r.ReadIntf()
	}
}

func str(s string) *string { return &s }
