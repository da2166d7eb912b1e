// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

// contentTypeMsgpack is the content type both trace dialects advertise
// (spec §6).
const contentTypeMsgpack = "application/msgpack"

// Default buffer limits. These mirror the historical defaults the real
// tracer shipped: a 5 MiB payload cap, with a single item never allowed
// to exceed half of it.
const (
	defaultMaxSize     = 5 << 20
	defaultMaxItemSize = defaultMaxSize / 2
)

// Encoder is the contract both trace dialects satisfy, letting a
// Transport collaborator pick a dialect at startup without caring which
// one it got (spec §9: "each concrete encoder is picked once at
// startup").
type Encoder interface {
	// Put appends one trace. On failure the encoder's Size/Len are
	// unchanged and the trace is not present in the next Flush.
	Put(trace Trace) error
	// Flush drains accepted traces into a wire-ready payload, or
	// returns nil if none were accepted since the last Flush.
	Flush() []byte
	// Size is the current logical payload size in bytes, including
	// the not-yet-written array header.
	Size() int
	// Len is the number of traces accepted since the last Flush.
	Len() int
	// ContentType is the MIME type to advertise for Flush's output.
	ContentType() string
}

// encoderConfig collects the tunable limits shared by both dialects.
type encoderConfig struct {
	maxSize     int
	maxItemSize int
}

func defaultEncoderConfig() encoderConfig {
	return encoderConfig{maxSize: defaultMaxSize, maxItemSize: defaultMaxItemSize}
}

// EncoderOption configures a trace encoder at construction time.
type EncoderOption func(*encoderConfig)

// WithMaxSize caps the encoder's total logical payload size in bytes.
func WithMaxSize(n int) EncoderOption {
	return func(c *encoderConfig) { c.maxSize = n }
}

// WithMaxItemSize caps the encoded size of any single trace.
func WithMaxItemSize(n int) EncoderOption {
	return func(c *encoderConfig) { c.maxItemSize = n }
}
