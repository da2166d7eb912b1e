// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringTableEmptyAndNilIndexToZero(t *testing.T) {
	assert := assert.New(t)

	st := NewStringTable()
	assert.Equal(uint32(0), st.IndexString(""))
	assert.Equal(uint32(0), st.Index(nil))
	assert.Equal(1, st.Len())
}

func TestStringTableInsertionOrderAndStability(t *testing.T) {
	assert := assert.New(t)

	st := NewStringTable()
	a := st.IndexString("a")
	b := st.IndexString("b")
	aAgain := st.IndexString("a")

	assert.Equal(a, aAgain)
	assert.NotEqual(a, b)
	assert.Equal([]string{"", "a", "b"}, st.Strings())
	assert.True(st.Contains("a"))
	assert.False(st.Contains("c"))
}

func TestStringTableReset(t *testing.T) {
	assert := assert.New(t)

	st := NewStringTable()
	st.IndexString("a")
	st.Reset()
	assert.Equal(1, st.Len())
	assert.Equal(uint32(0), st.IndexString(""))
}

func TestMsgpackStringTableRollbackLeavesIndexIntact(t *testing.T) {
	assert := assert.New(t)

	st := newMsgpackStringTable()
	sp := st.savepoint()
	id := st.IndexString("rolled-back")
	st.rollback(sp)

	// the index entry survives rollback (spec §9 design decision (b));
	// re-use after rollback is harmless because flush resets both.
	assert.Equal(id, st.IndexString("rolled-back"))
	assert.Equal(sp, len(st.data))
}

func TestMsgpackStringTableGetBytesIsValidNestedArray(t *testing.T) {
	assert := assert.New(t)

	st := newMsgpackStringTable()
	st.IndexString("hello")
	st.IndexString("world")
	// the second element of the outer array is what Flush appends; an
	// empty traces array stands in for it here
	st.appendRaw(appendArrayHeader(nil, 0))

	out := st.getBytes()
	assert.NotEmpty(out)

	outer, ok := decodeIntf(t, out).([]interface{})
	assert.True(ok)
	assert.Len(outer, 2)
	strs, ok := outer[0].([]interface{})
	assert.True(ok)
	assert.Equal([]interface{}{"", "hello", "world"}, strs)
}
