// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2021 Datadog, Inc.

package pprofconv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/pprof/profile"
)

// DefaultSampleTypes is the fixed 11-entry sample-type list spec §4.7
// prescribes for every exported profile, in the order it must appear.
var DefaultSampleTypes = []SampleType{
	{Name: "cpu-samples", Unit: "count"},
	{Name: "cpu-time", Unit: "nanoseconds"},
	{Name: "wall-time", Unit: "nanoseconds"},
	{Name: "exception-samples", Unit: "count"},
	{Name: "lock-acquire", Unit: "count"},
	{Name: "lock-acquire-wait", Unit: "nanoseconds"},
	{Name: "lock-release", Unit: "count"},
	{Name: "lock-release-hold", Unit: "nanoseconds"},
	{Name: "alloc-samples", Unit: "count"},
	{Name: "alloc-space", Unit: "bytes"},
	{Name: "heap-space", Unit: "bytes"},
}

// PprofExporter orchestrates a single Export call (spec §4.7): it groups
// incoming events by key, drives a PprofConverter, and materializes the
// final pprof profile with metadata (start time, duration, period,
// sample types, program name).
type PprofExporter struct {
	conv *PprofConverter
}

// ExporterOption configures a PprofExporter at construction time.
type ExporterOption func(*PprofExporter)

// WithConverter injects a PprofConverter to drive, letting a caller reuse
// one across Export calls via Reset (SPEC_FULL §3's pooling
// supplement) instead of allocating a fresh one every time.
func WithConverter(c *PprofConverter) ExporterOption {
	return func(e *PprofExporter) { e.conv = c }
}

// NewPprofExporter constructs a PprofExporter, allocating its own PprofConverter,
// unless one was supplied via WithConverter.
func NewPprofExporter(opts ...ExporterOption) *PprofExporter {
	e := &PprofExporter{}
	for _, opt := range opts {
		opt(e)
	}
	if e.conv == nil {
		e.conv = NewPprofConverter()
	}
	return e
}

// Reset clears the PprofExporter's PprofConverter so it can drive another
// Export call.
func (e *PprofExporter) Reset() { e.conv.Reset() }

func framesKey(frames []Frame, nframes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", nframes)
	for _, f := range frames {
		has := f.Function != nil
		name := ""
		if has {
			name = *f.Function
		}
		fmt.Fprintf(&b, "%s\x00%d\x00%t\x00%s\x1f", f.Filename, f.Line, has, name)
	}
	return b.String()
}

type stackBucket struct {
	ev      StackSample
	count   int
	sumCPU  int64
	sumWall int64
}

func groupStack(events []StackSample) (map[string]*stackBucket, int64) {
	groups := make(map[string]*stackBucket)
	var sumPeriod int64
	for _, ev := range events {
		endpoint := endpointFor(ev.TraceType, ev.TraceEndpoint)
		key := fmt.Sprintf("%d|%d|%s|%d|%s|%d|%d|%s|%s|%s",
			ev.ThreadID, ev.ThreadNativeID, ev.ThreadName, ev.TaskID, ev.TaskName,
			ev.TraceID, ev.SpanID, endpoint, ev.TraceType, framesKey(ev.Frames, ev.NFrames))
		b, ok := groups[key]
		if !ok {
			tmpl := ev
			tmpl.TraceEndpoint = endpoint
			b = &stackBucket{ev: tmpl}
			groups[key] = b
		}
		b.count++
		b.sumCPU += ev.CPUTimeNs
		b.sumWall += ev.WallTimeNs
		sumPeriod += ev.WallTimeNs
	}
	return groups, sumPeriod
}

type lockBucket struct {
	ev           LockEvent
	count        int
	sumWaitNs    int64
	sumLockedFor int64
}

func groupLock(events []LockEvent) map[string]*lockBucket {
	groups := make(map[string]*lockBucket)
	for _, ev := range events {
		endpoint := endpointFor(ev.TraceType, ev.TraceEndpoint)
		key := fmt.Sprintf("%d|%d|%s|%s|%d|%d|%s|%s",
			ev.ThreadID, ev.ThreadNativeID, ev.ThreadName, ev.LockName,
			ev.TraceID, ev.SpanID, endpoint, ev.TraceType)
		b, ok := groups[key]
		if !ok {
			tmpl := ev
			tmpl.TraceEndpoint = endpoint
			b = &lockBucket{ev: tmpl}
			groups[key] = b
		}
		b.count++
		b.sumWaitNs += ev.WaitTimeNs
		b.sumLockedFor += ev.LockedForNs
	}
	return groups
}

// samplingRatioAvg is spec §4.7 point 2: "sampling_ratio_avg = Σ
// sampling_pct / (n · 100)".
func samplingRatioAvg(events []LockEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	var sum float64
	for _, ev := range events {
		sum += ev.SamplingPct
	}
	return sum / (float64(len(events)) * 100)
}

type exceptionBucket struct {
	ev    StackException
	count int
}

func groupStackException(events []StackException) map[string]*exceptionBucket {
	groups := make(map[string]*exceptionBucket)
	for _, ev := range events {
		key := fmt.Sprintf("%d|%d|%s|%d|%d|%s|%s",
			ev.ThreadID, ev.ThreadNativeID, ev.ThreadName, ev.TraceID, ev.SpanID,
			framesKey(ev.Frames, ev.NFrames), ev.ExceptionType)
		b, ok := groups[key]
		if !ok {
			b = &exceptionBucket{ev: ev}
			groups[key] = b
		}
		b.count++
	}
	return groups
}

func groupMemoryAlloc(events []MemoryAllocSample) map[string][]MemoryAllocSample {
	groups := make(map[string][]MemoryAllocSample)
	for _, ev := range events {
		key := fmt.Sprintf("%d|%d|%s|%s",
			ev.ThreadID, ev.ThreadNativeID, ev.ThreadName, framesKey(ev.Frames, ev.NFrames))
		groups[key] = append(groups[key], ev)
	}
	return groups
}

// Export drives the full grouping and conversion pipeline described in
// spec §4.7 and returns the resulting profile. programName becomes the
// single Mapping entry's filename (spec §9: no global
// get_application_name() dependency, an explicit parameter instead).
func (e *PprofExporter) Export(events Events, startTimeNs, endTimeNs int64, programName string) (*profile.Profile, error) {
	stackGroups, sumPeriod := groupStack(events.StackSamples)
	for _, key := range sortedStackKeys(stackGroups) {
		b := stackGroups[key]
		if err := e.conv.StackSample(b.ev, b.count, b.sumCPU, b.sumWall); err != nil {
			return nil, err
		}
	}

	acquireRatio := samplingRatioAvg(events.LockAcquires)
	acquireGroups := groupLock(events.LockAcquires)
	for _, key := range sortedLockKeys(acquireGroups) {
		b := acquireGroups[key]
		if err := e.conv.LockAcquire(b.ev, b.count, b.sumWaitNs, acquireRatio); err != nil {
			return nil, err
		}
	}

	releaseRatio := samplingRatioAvg(events.LockReleases)
	releaseGroups := groupLock(events.LockReleases)
	for _, key := range sortedLockKeys(releaseGroups) {
		b := releaseGroups[key]
		if err := e.conv.LockRelease(b.ev, b.count, b.sumLockedFor, releaseRatio); err != nil {
			return nil, err
		}
	}

	excGroups := groupStackException(events.StackExceptions)
	for _, key := range sortedExceptionKeys(excGroups) {
		b := excGroups[key]
		if err := e.conv.StackException(b.ev, b.count); err != nil {
			return nil, err
		}
	}

	allocGroups := groupMemoryAlloc(events.MemoryAllocs)
	for _, key := range sortedAllocKeys(allocGroups) {
		if err := e.conv.MemoryAlloc(allocGroups[key]); err != nil {
			return nil, err
		}
	}

	for _, ev := range events.MemoryHeap {
		if err := e.conv.MemoryHeap(ev); err != nil {
			return nil, err
		}
	}

	var period *int64
	nbStackEvents := len(events.StackSamples)
	if nbStackEvents > 0 {
		p := sumPeriod / int64(nbStackEvents)
		period = &p
	}

	return e.conv.BuildProfile(startTimeNs, endTimeNs-startTimeNs, period, DefaultSampleTypes, programName)
}

func sortedStackKeys(m map[string]*stackBucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedLockKeys(m map[string]*lockBucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedExceptionKeys(m map[string]*exceptionBucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAllocKeys(m map[string][]MemoryAllocSample) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
