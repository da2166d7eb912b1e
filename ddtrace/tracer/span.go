// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

// originMetaKey is the meta key under which a trace's origin tag is
// carried once it reaches the wire.
const originMetaKey = "_dd.origin"

// MetaPair is one (key, value) entry of a span's meta map. Meta is
// modeled as an ordered slice rather than a map[string]string so that
// iteration order is deterministic: the V05 dialect interns meta keys
// and values into a shared string table, and the resulting ids must be
// reproducible for a given input (spec §9 "Iteration of meta pairs in
// V05 assumes a stable iteration order").
type MetaPair struct {
	Key   string
	Value string
}

// MetricPair is one (key, value) entry of a span's metrics map.
type MetricPair struct {
	Key   string
	Value Number
}

// SpanContext carries the subset of tracing context this subsystem
// needs: the distributed-origin tag. Everything else a real span
// context carries (baggage, sampling priority, propagation) belongs to
// the Span source collaborator and is out of scope here.
type SpanContext struct {
	Origin *string
}

// Span is the attribute set both trace dialects serialize. It is a
// plain data carrier: construction, tag mutation and context
// propagation are the Span source collaborator's concern (spec §6).
type Span struct {
	TraceID  uint64
	SpanID   uint64
	ParentID uint64
	Service  *string
	Resource *string
	Name     *string
	Error    bool
	Start    int64
	Duration int64
	Type     *string
	Meta     []MetaPair
	Metrics  []MetricPair
	Context  *SpanContext
}

// Trace is an ordered sequence of spans sharing a trace id.
type Trace []*Span

// Origin returns the trace's dd_origin tag, taken from the first
// span's context only (spec §3: "only the first span's context in a
// trace contributes an origin").
func (t Trace) Origin() *string {
	if len(t) == 0 || t[0] == nil || t[0].Context == nil {
		return nil
	}
	return t[0].Context.Origin
}
