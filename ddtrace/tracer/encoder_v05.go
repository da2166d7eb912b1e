// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import "github.com/tinylib/msgp/msgp"

// v05ReservedPrefix is the payload buffer's own reserved prefix for the
// traces-array header; the string table carries its own larger
// reservation (stringTableReservedPrefix) for the outer 2-element array.
const v05ReservedPrefix = 5

// MsgpackEncoderV05 encodes traces as the dictionary-compressed V05
// dialect: every string on a span is replaced by its id in a shared
// interned string table, and at flush time the string table and the
// span payload are combined into a top-level 2-element array
// (spec §4.5).
type MsgpackEncoderV05 struct {
	payload *buffer
	strings *msgpackStringTable
}

// NewMsgpackEncoderV05 constructs a V05 encoder with the given limits.
func NewMsgpackEncoderV05(opts ...EncoderOption) (*MsgpackEncoderV05, error) {
	cfg := defaultEncoderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	b, err := newBuffer(cfg.maxSize, cfg.maxItemSize, v05ReservedPrefix)
	if err != nil {
		return nil, err
	}
	return &MsgpackEncoderV05{
		payload: b,
		strings: newMsgpackStringTable(),
	}, nil
}

// Put appends one trace as a msgpack array of 12-field positional span
// arrays. It is transactional across both the payload buffer and the
// string table: if packing fails partway, any strings interned by this
// call are rolled back along with the payload bytes (spec §4.5).
func (e *MsgpackEncoderV05) Put(trace Trace) error {
	origin := trace.Origin()
	sp := e.strings.savepoint()
	stringsBefore := e.strings.size()
	err := e.payload.put(func(dst []byte) ([]byte, error) {
		start := len(dst)
		dst = appendArrayHeader(dst, len(trace))
		var perr error
		for _, span := range trace {
			dst, perr = e.packSpan(dst, span, origin)
			if perr != nil {
				return dst, perr
			}
		}
		// The string table counts toward Size, so the max-size check
		// covers the strings this trace interned as well as its payload.
		stringsSize := e.strings.size()
		total := len(dst) + arrayPrefixSize(e.payload.count+1) - e.payload.reservedPrefix + stringsSize
		if total > e.payload.maxSize {
			return dst, &BufferFull{Delta: len(dst) - start + stringsSize - stringsBefore}
		}
		return dst, nil
	})
	if err != nil {
		e.strings.rollback(sp)
		return err
	}
	return nil
}

// Flush copies the payload bytes onto the string table's buffer, then
// lets the string table patch both array headers into its reserved
// prefix and return the composite bytes (spec §4.5).
func (e *MsgpackEncoderV05) Flush() []byte {
	e.payload.mu.Lock()
	if e.payload.count == 0 {
		e.payload.mu.Unlock()
		return nil
	}
	patched := e.payload.patchedBytes()
	e.strings.appendRaw(patched)
	e.payload.reset()
	e.payload.mu.Unlock()

	return e.strings.flush()
}

// Size is the payload's size plus the string table's size (spec §4.5).
func (e *MsgpackEncoderV05) Size() int {
	return e.payload.size() + e.strings.size()
}

// Len returns the number of traces accepted since the last Flush.
func (e *MsgpackEncoderV05) Len() int { return e.payload.len() }

// ContentType returns "application/msgpack".
func (e *MsgpackEncoderV05) ContentType() string { return contentTypeMsgpack }

// packSpan writes one span as the 12-element positional array spec
// §4.5 fixes, interning every string field through the shared table.
func (e *MsgpackEncoderV05) packSpan(dst []byte, span *Span, origin *string) ([]byte, error) {
	dst = appendArrayHeader(dst, 12)

	dst = msgp.AppendUint64(dst, uint64(e.strings.Index(span.Service)))
	dst = msgp.AppendUint64(dst, uint64(e.strings.Index(span.Name)))
	dst = msgp.AppendUint64(dst, uint64(e.strings.Index(span.Resource)))
	dst = msgp.AppendUint64(dst, span.TraceID)
	dst = msgp.AppendUint64(dst, span.SpanID)
	dst = msgp.AppendUint64(dst, span.ParentID)
	dst = msgp.AppendInt64(dst, span.Start)
	dst = msgp.AppendInt64(dst, span.Duration)
	dst = msgp.AppendInt32(dst, int32(errorFlag(span.Error)))

	metaLen := len(span.Meta)
	if origin != nil {
		metaLen++
	}
	dst = msgp.AppendMapHeader(dst, uint32(metaLen))
	for _, kv := range span.Meta {
		dst = msgp.AppendUint64(dst, uint64(e.strings.IndexString(kv.Key)))
		dst = msgp.AppendUint64(dst, uint64(e.strings.IndexString(kv.Value)))
	}
	if origin != nil {
		dst = msgp.AppendUint64(dst, uint64(e.strings.IndexString(originMetaKey)))
		dst = msgp.AppendUint64(dst, uint64(e.strings.IndexString(*origin)))
	}

	dst = msgp.AppendMapHeader(dst, uint32(len(span.Metrics)))
	var err error
	for _, kv := range span.Metrics {
		dst = msgp.AppendUint64(dst, uint64(e.strings.IndexString(kv.Key)))
		dst, err = appendNumber(dst, kv.Value)
		if err != nil {
			return dst, err
		}
	}

	dst = msgp.AppendUint64(dst, uint64(e.strings.Index(span.Type)))
	return dst, nil
}
