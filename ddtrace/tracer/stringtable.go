// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

// StringTable is an append-only interner: the same text always maps to
// the same id, ids are assigned in first-seen order starting at 0, and
// id 0 is reserved for the empty string (spec §4.2). It is the list
// variant used by the pprof converter, where ids are only ever consumed
// by re-walking the table in insertion order at emission time.
type StringTable struct {
	index map[string]uint32
	order []string
}

// NewStringTable returns a StringTable with the empty string already
// interned at id 0.
func NewStringTable() *StringTable {
	st := &StringTable{index: make(map[string]uint32)}
	st.intern("")
	return st
}

func (st *StringTable) intern(s string) uint32 {
	if id, ok := st.index[s]; ok {
		return id
	}
	id := uint32(len(st.order))
	st.index[s] = id
	st.order = append(st.order, s)
	return id
}

// Index returns s's id, interning it if this is the first time it's
// seen. A nil pointer collapses to the empty string's id (0).
func (st *StringTable) Index(s *string) uint32 {
	if s == nil {
		return 0
	}
	return st.intern(*s)
}

// IndexString is Index for a plain string rather than a nullable one.
func (st *StringTable) IndexString(s string) uint32 {
	return st.intern(s)
}

// Len returns the number of interned strings.
func (st *StringTable) Len() int {
	return len(st.order)
}

// Contains reports whether s has been interned.
func (st *StringTable) Contains(s string) bool {
	_, ok := st.index[s]
	return ok
}

// Strings returns the interned strings in insertion order.
func (st *StringTable) Strings() []string {
	return st.order
}

// Reset clears all entries and re-interns the empty string at id 0.
func (st *StringTable) Reset() {
	st.index = make(map[string]uint32)
	st.order = nil
	st.intern("")
}
