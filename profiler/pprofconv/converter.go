// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2021 Datadog, Inc.

package pprofconv

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/pprof/profile"

	"github.com/tracecore/agent-core/ddtrace/tracer"
)

// LabelPair is one (key, value) entry of a sample's label set, kept as
// an ordered pair rather than a map so the label construction helpers
// below can fix the field order spec §4.6 prescribes per event family.
type LabelPair struct {
	Key   string
	Value string
}

// SampleType names one of the value columns BuildProfile emits,
// mirroring google/pprof's ValueType without forcing callers to depend
// on the profile package just to describe a (name, unit) pair.
type SampleType struct {
	Name string
	Unit string
}

type functionKey struct {
	filename string
	funcname string
}

type locationKey struct {
	filename string
	line     int64
	funcname string
	hasFunc  bool
}

type sampleAgg struct {
	locations []*profile.Location
	locIDs    []uint64
	labels    []LabelPair
	values    map[string]int64
}

// PprofConverter is the stateful accumulator described in spec §4.6: it
// interns filenames/function names/labels through a StringTable,
// assigns ids to unique Functions and Locations, and aggregates
// per-(location-stack, label-set) multi-valued sample records.
//
// It reuses tracer.StringTable, the "list variant" spec §4.2 describes
// for the pprof path, rather than re-implementing an identical
// interner under a second name.
type PprofConverter struct {
	strs *tracer.StringTable

	functions      map[functionKey]*profile.Function
	nextFunctionID uint64

	locations      map[locationKey]*profile.Location
	nextLocationID uint64

	samples map[string]*sampleAgg

	// finalized is set once BuildProfile has read the string table;
	// spec §4.6: "once iterated, no further _str calls are allowed."
	finalized bool
}

// NewPprofConverter returns an empty PprofConverter ready to ingest events.
func NewPprofConverter() *PprofConverter {
	return &PprofConverter{
		strs:           tracer.NewStringTable(),
		functions:      make(map[functionKey]*profile.Function),
		locations:      make(map[locationKey]*profile.Location),
		samples:        make(map[string]*sampleAgg),
		nextFunctionID: 1,
		nextLocationID: 1,
	}
}

// Reset discards all accumulated state so the PprofConverter can be reused
// for another Export cycle (SPEC_FULL §3's pooling supplement).
func (c *PprofConverter) Reset() {
	c.strs.Reset()
	c.functions = make(map[functionKey]*profile.Function)
	c.locations = make(map[locationKey]*profile.Location)
	c.samples = make(map[string]*sampleAgg)
	c.nextFunctionID = 1
	c.nextLocationID = 1
	c.finalized = false
}

// str interns x through the shared StringTable. It is spec §4.6's
// "_str(x) → u32" helper; the returned id is not otherwise consumed
// since the final profile.Function/profile.Location carry literal
// strings, but interning still enforces the single-use-for-emission
// invariant and gives BuildProfile an accurate string count for its
// summary comment.
func (c *PprofConverter) str(x string) (uint32, error) {
	if c.finalized {
		return 0, fmt.Errorf("pprofconv: converter already finalized for emission")
	}
	return c.strs.IndexString(x), nil
}

// toFunction is _to_Function: create-on-first-sight, monotonic id
// sequence starting at 1 (spec §4.6).
func (c *PprofConverter) toFunction(filename, funcname string) (*profile.Function, error) {
	if _, err := c.str(filename); err != nil {
		return nil, err
	}
	if _, err := c.str(funcname); err != nil {
		return nil, err
	}
	key := functionKey{filename: filename, funcname: funcname}
	if fn, ok := c.functions[key]; ok {
		return fn, nil
	}
	fn := &profile.Function{
		ID:       c.nextFunctionID,
		Name:     funcname,
		Filename: filename,
	}
	c.nextFunctionID++
	c.functions[key] = fn
	return fn, nil
}

const unknownFunction = "<unknown function>"

// toLocation is _to_Location: when funcname is nil the stored Line's
// function name becomes the literal "<unknown function>" (spec §4.6).
func (c *PprofConverter) toLocation(filename string, line int64, funcname *string) (*profile.Location, error) {
	resolved := unknownFunction
	hasFunc := funcname != nil
	if hasFunc {
		resolved = *funcname
	}
	key := locationKey{filename: filename, line: line, funcname: resolved, hasFunc: hasFunc}
	if loc, ok := c.locations[key]; ok {
		return loc, nil
	}
	fn, err := c.toFunction(filename, resolved)
	if err != nil {
		return nil, err
	}
	loc := &profile.Location{
		ID:   c.nextLocationID,
		Line: []profile.Line{{Function: fn, Line: line}},
	}
	c.nextLocationID++
	c.locations[key] = loc
	return loc, nil
}

// toLocations is _to_locations: maps each frame to a Location id, then
// appends a synthetic "<K frame(s) omitted>" location when nframes
// exceeds the number of frames actually captured (spec §4.6, boundary
// test in spec §8).
func (c *PprofConverter) toLocations(frames []Frame, nframes int) ([]*profile.Location, error) {
	locs := make([]*profile.Location, 0, len(frames)+1)
	for _, f := range frames {
		loc, err := c.toLocation(f.Filename, f.Line, f.Function)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	if nframes > len(frames) {
		k := nframes - len(frames)
		plural := "s"
		if k == 1 {
			plural = ""
		}
		name := fmt.Sprintf("<%d frame%s omitted>", k, plural)
		loc, err := c.toLocation("", 0, &name)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// sampleKey builds the composite (location-ids, labels) key spec §3
// describes for location_values. Commas cannot appear inside a decimal
// id and 0x1f/0x00 are used as label separators, so two distinct
// (ids, labels) pairs never collide.
func sampleKey(ids []uint64, labels []LabelPair) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(strconv.FormatUint(id, 10))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	for _, l := range labels {
		b.WriteString(l.Key)
		b.WriteByte(0)
		b.WriteString(l.Value)
		b.WriteByte(0x1f)
	}
	return b.String()
}

func (c *PprofConverter) entry(locs []*profile.Location, labels []LabelPair) *sampleAgg {
	ids := make([]uint64, len(locs))
	for i, l := range locs {
		ids[i] = l.ID
	}
	key := sampleKey(ids, labels)
	if e, ok := c.samples[key]; ok {
		return e
	}
	e := &sampleAgg{locations: locs, locIDs: ids, labels: labels, values: make(map[string]int64)}
	c.samples[key] = e
	return e
}

func internLabels(c *PprofConverter, labels []LabelPair) error {
	for _, l := range labels {
		if _, err := c.str(l.Key); err != nil {
			return err
		}
		if _, err := c.str(l.Value); err != nil {
			return err
		}
	}
	return nil
}

func endpointFor(traceType, traceEndpoint string) string {
	if traceType != "web" {
		return ""
	}
	return traceEndpoint
}

func stackLabels(ev StackSample) []LabelPair {
	return []LabelPair{
		{"thread id", strconv.FormatInt(ev.ThreadID, 10)},
		{"thread native id", strconv.FormatInt(ev.ThreadNativeID, 10)},
		{"thread name", ev.ThreadName},
		{"task id", strconv.FormatInt(ev.TaskID, 10)},
		{"task name", ev.TaskName},
		{"trace id", strconv.FormatUint(ev.TraceID, 10)},
		{"span id", strconv.FormatUint(ev.SpanID, 10)},
		{"trace endpoint", endpointFor(ev.TraceType, ev.TraceEndpoint)},
		{"trace type", ev.TraceType},
	}
}

func stackExceptionLabels(ev StackException) []LabelPair {
	return []LabelPair{
		{"thread id", strconv.FormatInt(ev.ThreadID, 10)},
		{"thread native id", strconv.FormatInt(ev.ThreadNativeID, 10)},
		{"thread name", ev.ThreadName},
		{"trace id", strconv.FormatUint(ev.TraceID, 10)},
		{"span id", strconv.FormatUint(ev.SpanID, 10)},
		{"exception type", ev.ExceptionType},
	}
}

func lockLabels(ev LockEvent) []LabelPair {
	return []LabelPair{
		{"thread id", strconv.FormatInt(ev.ThreadID, 10)},
		{"thread native id", strconv.FormatInt(ev.ThreadNativeID, 10)},
		{"thread name", ev.ThreadName},
		{"lock name", ev.LockName},
		{"trace id", strconv.FormatUint(ev.TraceID, 10)},
		{"span id", strconv.FormatUint(ev.SpanID, 10)},
		{"trace endpoint", endpointFor(ev.TraceType, ev.TraceEndpoint)},
		{"trace type", ev.TraceType},
	}
}

func memoryLabels(threadID, threadNativeID int64, threadName string) []LabelPair {
	return []LabelPair{
		{"thread id", strconv.FormatInt(threadID, 10)},
		{"thread native id", strconv.FormatInt(threadNativeID, 10)},
		{"thread name", threadName},
	}
}

// StackSample ingests one pre-grouped bucket of "stack" events (spec
// §4.7 point 1): count is the number of raw samples folded into this
// bucket, sumCPUTimeNs/sumWallTimeNs their summed durations.
func (c *PprofConverter) StackSample(ev StackSample, count int, sumCPUTimeNs, sumWallTimeNs int64) error {
	locs, err := c.toLocations(ev.Frames, ev.NFrames)
	if err != nil {
		return err
	}
	labels := stackLabels(ev)
	if err := internLabels(c, labels); err != nil {
		return err
	}
	e := c.entry(locs, labels)
	e.values["cpu-samples"] = int64(count)
	e.values["cpu-time"] = sumCPUTimeNs
	e.values["wall-time"] = sumWallTimeNs
	return nil
}

// StackException ingests one pre-grouped bucket of stack-exception
// events.
func (c *PprofConverter) StackException(ev StackException, count int) error {
	locs, err := c.toLocations(ev.Frames, ev.NFrames)
	if err != nil {
		return err
	}
	labels := stackExceptionLabels(ev)
	if err := internLabels(c, labels); err != nil {
		return err
	}
	e := c.entry(locs, labels)
	e.values["exception-samples"] = int64(count)
	return nil
}

// LockAcquire ingests one pre-grouped bucket of lock-acquire events.
// samplingRatio is the exporter-wide sampling_ratio_avg (spec §4.7
// point 2); a zero ratio (every acquire event has a zero sampling
// percentage) yields a wait value of 0 instead of dividing by zero.
func (c *PprofConverter) LockAcquire(ev LockEvent, count int, sumWaitTimeNs int64, samplingRatio float64) error {
	locs, err := c.toLocations(ev.Frames, ev.NFrames)
	if err != nil {
		return err
	}
	labels := lockLabels(ev)
	if err := internLabels(c, labels); err != nil {
		return err
	}
	e := c.entry(locs, labels)
	e.values["lock-acquire"] = int64(count)
	e.values["lock-acquire-wait"] = scaleBySamplingRatio(sumWaitTimeNs, samplingRatio)
	return nil
}

// LockRelease ingests one pre-grouped bucket of lock-release events.
func (c *PprofConverter) LockRelease(ev LockEvent, count int, sumLockedForNs int64, samplingRatio float64) error {
	locs, err := c.toLocations(ev.Frames, ev.NFrames)
	if err != nil {
		return err
	}
	labels := lockLabels(ev)
	if err := internLabels(c, labels); err != nil {
		return err
	}
	e := c.entry(locs, labels)
	e.values["lock-release"] = int64(count)
	e.values["lock-release-hold"] = scaleBySamplingRatio(sumLockedForNs, samplingRatio)
	return nil
}

func scaleBySamplingRatio(sumNs int64, ratio float64) int64 {
	if ratio == 0 {
		return 0
	}
	return int64(float64(sumNs) / ratio)
}

// MemoryAlloc ingests one pre-grouped bucket of memalloc events,
// computing alloc-space with the unbiasing formula spec §4.6 gives:
// round((Σ nevents) · (Σ capture_pct)/(nevents·100) · (Σ size / nevents))
// where the unqualified nevents is this bucket's event count.
func (c *PprofConverter) MemoryAlloc(group []MemoryAllocSample) error {
	if len(group) == 0 {
		return nil
	}
	first := group[0]
	locs, err := c.toLocations(first.Frames, first.NFrames)
	if err != nil {
		return err
	}
	labels := memoryLabels(first.ThreadID, first.ThreadNativeID, first.ThreadName)
	if err := internLabels(c, labels); err != nil {
		return err
	}

	n := float64(len(group))
	var sumNEvents, sumSize int64
	var sumCapturePct float64
	for _, ev := range group {
		sumNEvents += ev.NEvents
		sumSize += ev.Size
		sumCapturePct += ev.CapturePct
	}
	allocSpace := math.Round(float64(sumNEvents) * (sumCapturePct / (n * 100)) * (float64(sumSize) / n))

	e := c.entry(locs, labels)
	e.values["alloc-samples"] = int64(len(group))
	e.values["alloc-space"] = int64(allocSpace)
	return nil
}

// MemoryHeap ingests a single heap snapshot entry. Heap events are
// never grouped by the exporter (spec §4.7 point 4); instead each
// event's Size accumulates onto whatever prior value its location key
// already holds (spec §4.6: heap-space uses "add", not "assign").
func (c *PprofConverter) MemoryHeap(ev MemoryHeapSample) error {
	locs, err := c.toLocations(ev.Frames, ev.NFrames)
	if err != nil {
		return err
	}
	labels := memoryLabels(ev.ThreadID, ev.ThreadNativeID, ev.ThreadName)
	if err := internLabels(c, labels); err != nil {
		return err
	}
	e := c.entry(locs, labels)
	e.values["heap-space"] += ev.Size
	return nil
}

// BuildProfile emits the final profile (spec §4.6): location and
// function lists sorted by id, samples sorted lexicographically by
// their location-id tuple, a single mapping entry for programName, and
// the caller-supplied sample type list. Calling it finalizes the
// PprofConverter for emission: no further ingestion method may be called
// until Reset.
func (c *PprofConverter) BuildProfile(startTimeNs, durationNs int64, period *int64, sampleTypes []SampleType, programName string) (*profile.Profile, error) {
	internedCount := len(c.strs.Strings())
	c.finalized = true

	functions := make([]*profile.Function, 0, len(c.functions))
	for _, fn := range c.functions {
		functions = append(functions, fn)
	}
	sort.Slice(functions, func(i, j int) bool { return functions[i].ID < functions[j].ID })

	locations := make([]*profile.Location, 0, len(c.locations))
	for _, loc := range c.locations {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].ID < locations[j].ID })

	entries := make([]*sampleAgg, 0, len(c.samples))
	for _, e := range c.samples {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return lessLocationTuple(entries[i].locIDs, entries[j].locIDs) })

	valueTypes := make([]*profile.ValueType, len(sampleTypes))
	for i, st := range sampleTypes {
		valueTypes[i] = &profile.ValueType{Type: st.Name, Unit: st.Unit}
	}

	samples := make([]*profile.Sample, 0, len(entries))
	for _, e := range entries {
		values := make([]int64, len(sampleTypes))
		for i, st := range sampleTypes {
			values[i] = e.values[st.Name]
		}
		label := make(map[string][]string, len(e.labels))
		for _, l := range e.labels {
			label[l.Key] = []string{l.Value}
		}
		samples = append(samples, &profile.Sample{
			Location: e.locations,
			Value:    values,
			Label:    label,
		})
	}

	var periodVal int64
	if period != nil {
		periodVal = *period
	}

	p := &profile.Profile{
		SampleType:    valueTypes,
		Sample:        samples,
		Location:      locations,
		Function:      functions,
		Mapping:       []*profile.Mapping{{ID: 1, File: programName, HasFunctions: true}},
		TimeNanos:     startTimeNs,
		DurationNanos: durationNs,
		Period:        periodVal,
		PeriodType:    &profile.ValueType{Type: "time", Unit: "nanoseconds"},
		Comments:      []string{fmt.Sprintf("pprofconv: %d strings interned", internedCount)},
	}
	return p, nil
}

// lessLocationTuple orders two location-id tuples lexicographically,
// the canonical Sample emission order spec §4.6 requires. A shorter
// tuple that is a prefix of a longer one sorts first.
func lessLocationTuple(a, b []uint64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
