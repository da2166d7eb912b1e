// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadog.com/).
// Copyright 2018 Datadog, Inc.

package tracer

import (
	"fmt"
	"sync"
)

// packFunc appends one item's encoding onto dst and returns the
// extended slice, or an error if the item could not be packed. It must
// not retain dst past the call.
type packFunc func(dst []byte) ([]byte, error)

// buffer is the BufferedEncoder base described in spec §4.3: a single
// growable byte slice with a reserved prefix for a patchable array-length
// header, a maximum total size, a maximum per-item size, and a count of
// accepted items. put is transactional: any failure rewinds the slice
// to its pre-call length and leaves count untouched.
//
// A single mutex guards every mutation, matching spec §5: concurrent
// producers may call put freely, and a single consumer calls encode.
type buffer struct {
	mu             sync.Mutex
	data           []byte
	maxSize        int
	maxItemSize    int
	reservedPrefix int
	count          int
}

// newBuffer allocates a buffer with the given limits. reservedPrefix
// bytes are set aside up front for the final array header; maxSize
// must be able to hold at least the reserved prefix.
func newBuffer(maxSize, maxItemSize, reservedPrefix int) (*buffer, error) {
	if maxSize < reservedPrefix {
		return nil, &AllocationFailed{Reason: fmt.Sprintf("max size %d is smaller than the %d-byte reserved prefix", maxSize, reservedPrefix)}
	}
	return &buffer{
		data:           make([]byte, reservedPrefix, maxSize),
		maxSize:        maxSize,
		maxItemSize:    maxItemSize,
		reservedPrefix: reservedPrefix,
	}, nil
}

// size returns the current logical payload size, including the
// not-yet-written array header (spec §4.3). It takes b.mu since Size()
// is exposed for the concurrent-producer/single-consumer use case spec
// §5 describes, and must not race with put/encode/reset.
func (b *buffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) + arrayPrefixSize(b.count) - b.reservedPrefix
}

// len returns the number of items accepted so far.
func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// put appends one item via pack, atomically. On any failure the buffer
// is left exactly as it was before the call.
func (b *buffer) put(pack packFunc) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := len(b.data)
	defer func() {
		if r := recover(); r != nil {
			b.data = b.data[:start]
			err = &EncodingError{Err: fmt.Errorf("panic while packing item: %v", r)}
		}
	}()

	out, perr := pack(b.data)
	if perr != nil {
		b.data = b.data[:start]
		return perr
	}

	delta := len(out) - start
	if delta > b.maxItemSize {
		b.data = b.data[:start]
		return &BufferItemTooLarge{Delta: delta}
	}
	if len(out)+arrayPrefixSize(b.count+1)-b.reservedPrefix > b.maxSize {
		b.data = b.data[:start]
		return &BufferFull{Delta: delta}
	}

	b.data = out
	b.count++
	return nil
}

// patchedBytes returns the buffer's bytes with the reserved prefix
// overwritten by an array header of length b.count, starting at the
// exact offset the header's width dictates.
func (b *buffer) patchedBytes() []byte {
	header := appendArrayHeader(nil, b.count)
	offset := b.reservedPrefix - len(header)
	copy(b.data[offset:b.reservedPrefix], header)
	return b.data[offset:]
}

// encode returns nil when no items were accepted; otherwise it patches
// the reserved prefix, snapshots the result, and resets the buffer for
// reuse (count = 0, length = reservedPrefix).
func (b *buffer) encode() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	out := b.patchedBytes()
	snapshot := make([]byte, len(out))
	copy(snapshot, out)
	b.reset()
	return snapshot
}

// reset discards any accepted items without producing output.
func (b *buffer) reset() {
	b.data = b.data[:b.reservedPrefix]
	b.count = 0
}
