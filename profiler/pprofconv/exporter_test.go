// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2021 Datadog, Inc.

package pprofconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportGroupsIdenticalStackSamples(t *testing.T) {
	frames := []Frame{frame("a.go", 1, "main")}
	events := Events{
		StackSamples: []StackSample{
			{ThreadID: 1, ThreadName: "main", Frames: frames, NFrames: 1, CPUTimeNs: 100, WallTimeNs: 50},
			{ThreadID: 1, ThreadName: "main", Frames: frames, NFrames: 1, CPUTimeNs: 200, WallTimeNs: 75},
		},
	}

	exp := NewPprofExporter()
	prof, err := exp.Export(events, 1_000, 2_000, "myservice")
	require.NoError(t, err)

	require.Len(t, prof.Sample, 1)
	values := sampleValueByType(prof, prof.Sample[0])
	assert.EqualValues(t, 2, values["cpu-samples"])
	assert.EqualValues(t, 300, values["cpu-time"])
	assert.EqualValues(t, 125, values["wall-time"])
	assert.Equal(t, int64(1_000), prof.DurationNanos)
	// period = sum(wall_time_ns) / nb_stack_events = (50+75)/2
	require.NotNil(t, prof.Period)
	assert.EqualValues(t, 62, prof.Period)
}

func TestExportDistinctStacksDoNotFold(t *testing.T) {
	events := Events{
		StackSamples: []StackSample{
			{ThreadID: 1, Frames: []Frame{frame("a.go", 1, "main")}, NFrames: 1},
			{ThreadID: 2, Frames: []Frame{frame("a.go", 1, "main")}, NFrames: 1},
		},
	}

	exp := NewPprofExporter()
	prof, err := exp.Export(events, 0, 0, "myservice")
	require.NoError(t, err)
	assert.Len(t, prof.Sample, 2)
}

func TestExportNoStackEventsLeavesPeriodNil(t *testing.T) {
	exp := NewPprofExporter()
	prof, err := exp.Export(Events{}, 0, 0, "myservice")
	require.NoError(t, err)
	assert.EqualValues(t, 0, prof.Period)
	assert.Empty(t, prof.Sample)
}

func TestExportLockAcquireAndRelease(t *testing.T) {
	frames := []Frame{frame("a.go", 1, "main")}
	events := Events{
		LockAcquires: []LockEvent{
			{ThreadID: 1, LockName: "mu", Frames: frames, NFrames: 1, WaitTimeNs: 100, SamplingPct: 50},
			{ThreadID: 1, LockName: "mu", Frames: frames, NFrames: 1, WaitTimeNs: 300, SamplingPct: 50},
		},
		LockReleases: []LockEvent{
			{ThreadID: 1, LockName: "mu", Frames: frames, NFrames: 1, LockedForNs: 400, SamplingPct: 50},
		},
	}

	exp := NewPprofExporter()
	prof, err := exp.Export(events, 0, 0, "myservice")
	require.NoError(t, err)

	// acquire and release share the same location+label key and fold
	// into one sample bearing both families of values.
	require.Len(t, prof.Sample, 1)
	values := sampleValueByType(prof, prof.Sample[0])
	assert.EqualValues(t, 2, values["lock-acquire"])
	// samplingRatioAvg = (50+50)/(2*100) = 0.5; wait sum 400 / 0.5 = 800
	assert.EqualValues(t, 800, values["lock-acquire-wait"])
	assert.EqualValues(t, 1, values["lock-release"])
	// samplingRatioAvg = 50/(1*100) = 0.5; 400/0.5 = 800
	assert.EqualValues(t, 800, values["lock-release-hold"])
}

// TestExportOmittedFrames is spec §8 scenario 6.
func TestExportOmittedFrames(t *testing.T) {
	events := Events{
		StackSamples: []StackSample{
			{
				ThreadID: 1,
				Frames: []Frame{
					frame("a.go", 1, "main"),
					frame("a.go", 2, "helper"),
					frame("a.go", 3, "deepest"),
				},
				NFrames: 5,
			},
		},
	}

	exp := NewPprofExporter()
	prof, err := exp.Export(events, 0, 0, "myservice")
	require.NoError(t, err)
	require.Len(t, prof.Sample, 1)
	require.Len(t, prof.Sample[0].Location, 4)
	assert.Equal(t, "<2 frames omitted>", prof.Sample[0].Location[3].Line[0].Function.Name)
}

func TestExportMemoryHeapAccumulatesAcrossEvents(t *testing.T) {
	frames := []Frame{frame("a.go", 1, "main")}
	events := Events{
		MemoryHeap: []MemoryHeapSample{
			{ThreadID: 1, Frames: frames, NFrames: 1, Size: 10},
			{ThreadID: 1, Frames: frames, NFrames: 1, Size: 20},
		},
	}

	exp := NewPprofExporter()
	prof, err := exp.Export(events, 0, 0, "myservice")
	require.NoError(t, err)
	require.Len(t, prof.Sample, 1)
	values := sampleValueByType(prof, prof.Sample[0])
	assert.EqualValues(t, 30, values["heap-space"])
}

func TestExportSampleTypesAreFixedList(t *testing.T) {
	exp := NewPprofExporter()
	prof, err := exp.Export(Events{}, 0, 0, "myservice")
	require.NoError(t, err)

	require.Len(t, prof.SampleType, len(DefaultSampleTypes))
	for i, st := range DefaultSampleTypes {
		assert.Equal(t, st.Name, prof.SampleType[i].Type)
		assert.Equal(t, st.Unit, prof.SampleType[i].Unit)
	}
}

func TestExporterResetAllowsReuse(t *testing.T) {
	exp := NewPprofExporter()
	_, err := exp.Export(Events{StackSamples: []StackSample{
		{ThreadID: 1, Frames: []Frame{frame("a.go", 1, "main")}, NFrames: 1},
	}}, 0, 0, "myservice")
	require.NoError(t, err)

	exp.Reset()
	prof, err := exp.Export(Events{StackSamples: []StackSample{
		{ThreadID: 2, Frames: []Frame{frame("b.go", 1, "main")}, NFrames: 1},
	}}, 0, 0, "myservice")
	require.NoError(t, err)
	require.Len(t, prof.Sample, 1)
	assert.EqualValues(t, 1, prof.Function[0].ID)
}
