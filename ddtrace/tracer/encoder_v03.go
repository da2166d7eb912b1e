// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import "github.com/tinylib/msgp/msgp"

// v03ReservedPrefix is the 5-byte reservation for a 32-bit-length
// array32 header over the top-level trace array (spec §3).
const v03ReservedPrefix = 5

// MsgpackEncoderV03 encodes traces as the self-describing V03 dialect:
// a msgpack array of traces, each trace a msgpack array of spans, each
// span a msgpack map keyed by literal field names (spec §4.4).
type MsgpackEncoderV03 struct {
	buf *buffer
}

// NewMsgpackEncoderV03 constructs a V03 encoder with the given limits.
func NewMsgpackEncoderV03(opts ...EncoderOption) (*MsgpackEncoderV03, error) {
	cfg := defaultEncoderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	b, err := newBuffer(cfg.maxSize, cfg.maxItemSize, v03ReservedPrefix)
	if err != nil {
		return nil, err
	}
	return &MsgpackEncoderV03{buf: b}, nil
}

// Put appends one trace as a msgpack array of span maps.
func (e *MsgpackEncoderV03) Put(trace Trace) error {
	origin := trace.Origin()
	return e.buf.put(func(dst []byte) ([]byte, error) {
		dst = appendArrayHeader(dst, len(trace))
		var err error
		for _, span := range trace {
			dst, err = packSpanV03(dst, span, origin)
			if err != nil {
				return dst, err
			}
		}
		return dst, nil
	})
}

// Flush is identical to the base BufferedEncoder.encode(): patch the
// prefix, snapshot, and reset (spec §4.4).
func (e *MsgpackEncoderV03) Flush() []byte {
	return e.buf.encode()
}

// Size returns the encoder's current logical payload size.
func (e *MsgpackEncoderV03) Size() int { return e.buf.size() }

// Len returns the number of traces accepted since the last Flush.
func (e *MsgpackEncoderV03) Len() int { return e.buf.len() }

// ContentType returns "application/msgpack".
func (e *MsgpackEncoderV03) ContentType() string { return contentTypeMsgpack }

// packSpanV03 writes one span as a msgpack map with the field order
// spec §4.4 fixes: trace_id, parent_id, span_id, service, resource,
// name, error, start, duration always, then type, meta, metrics when
// present.
func packSpanV03(dst []byte, span *Span, origin *string) ([]byte, error) {
	hasType := span.Type != nil
	hasMeta := len(span.Meta) > 0 || origin != nil
	hasMetrics := len(span.Metrics) > 0

	n := 9
	if hasType {
		n++
	}
	if hasMeta {
		n++
	}
	if hasMetrics {
		n++
	}

	dst = msgp.AppendMapHeader(dst, uint32(n))

	dst = msgp.AppendString(dst, "trace_id")
	dst = msgp.AppendUint64(dst, span.TraceID)
	dst = msgp.AppendString(dst, "parent_id")
	dst = msgp.AppendUint64(dst, span.ParentID)
	dst = msgp.AppendString(dst, "span_id")
	dst = msgp.AppendUint64(dst, span.SpanID)
	dst = msgp.AppendString(dst, "service")
	dst = appendOptionalString(dst, span.Service)
	dst = msgp.AppendString(dst, "resource")
	dst = appendOptionalString(dst, span.Resource)
	dst = msgp.AppendString(dst, "name")
	dst = appendOptionalString(dst, span.Name)
	dst = msgp.AppendString(dst, "error")
	dst = msgp.AppendInt64(dst, errorFlag(span.Error))
	dst = msgp.AppendString(dst, "start")
	dst = msgp.AppendInt64(dst, span.Start)
	dst = msgp.AppendString(dst, "duration")
	dst = msgp.AppendInt64(dst, span.Duration)

	if hasType {
		dst = msgp.AppendString(dst, "type")
		dst = appendOptionalString(dst, span.Type)
	}
	if hasMeta {
		metaLen := len(span.Meta)
		if origin != nil {
			metaLen++
		}
		dst = msgp.AppendString(dst, "meta")
		dst = msgp.AppendMapHeader(dst, uint32(metaLen))
		for _, kv := range span.Meta {
			dst = msgp.AppendString(dst, kv.Key)
			dst = msgp.AppendString(dst, kv.Value)
		}
		if origin != nil {
			dst = msgp.AppendString(dst, originMetaKey)
			dst = msgp.AppendString(dst, *origin)
		}
	}
	if hasMetrics {
		dst = msgp.AppendString(dst, "metrics")
		dst = msgp.AppendMapHeader(dst, uint32(len(span.Metrics)))
		var err error
		for _, kv := range span.Metrics {
			dst = msgp.AppendString(dst, kv.Key)
			dst, err = appendNumber(dst, kv.Value)
			if err != nil {
				return dst, err
			}
		}
	}
	return dst, nil
}

// errorFlag maps a span's error bit to the wire integer it's written
// as (spec §4.4: "error is written as an integer (0 or 1)").
func errorFlag(hasError bool) int64 {
	if hasError {
		return 1
	}
	return 0
}
