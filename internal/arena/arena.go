// Copyright 2025-2026 The hyperjson Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package arena provides a low-level bump allocator for parse output.
//
// All variable-sized data produced by a compiled deserializer (string bytes,
// list backings, map storage) lives on an arena. The arena roots every chunk
// it has handed out, so the raw pointers a deserializer writes into struct
// memory stay valid for as long as the caller holds the arena. Output buffers
// must not outlive the arena they were parsed with.
//
// See <https://mcyoung.xyz/2025/04/21/go-arenas/> for the general design.
package arena

import (
	"unsafe"

	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
)

// Align is the alignment of all objects on the arena.
const Align = int(unsafe.Sizeof(uintptr(0)))

// minChunkWords is the word count of the smallest chunk.
const minChunkWords = 256

// Arena is an arena for pointer-free data.
//
// A zero Arena is empty and ready to use.
type Arena struct {
	_ xunsafe.NoCopy

	next, end uintptr
	cap       int // Word count of the most recent chunk.

	// Chunks handed out so far, plus anything pinned with KeepAlive. The GC
	// marks all of it whenever it marks the arena.
	keep []unsafe.Pointer
}

// New allocates a new value of type T on an arena.
func New[T any](a *Arena, value T) *T {
	if xunsafe.Align[T]() > Align {
		panic("hyperjson: over-aligned arena object")
	}
	p := xunsafe.Cast[T](a.Alloc(xunsafe.Size[T]()))
	*p = value
	return p
}

// Alloc allocates size bytes, pointer-aligned and zeroed.
func (a *Arena) Alloc(size int) *byte {
	size = xunsafe.RoundUp(size, Align)
	// The a.next == 0 case keeps zero-sized allocations from handing out a
	// nil pointer before the first chunk exists.
	if a.next+uintptr(size) > a.end || a.next == 0 {
		a.grow(size)
	}

	p := (*byte)(unsafe.Pointer(a.next)) //nolint:govet // Rooted via a.keep.
	a.next += uintptr(size)
	return p
}

// Bytes allocates a copy of b on the arena.
func (a *Arena) Bytes(b []byte) *byte {
	p := a.Alloc(len(b))
	copy(unsafe.Slice(p, len(b)), b)
	return p
}

// KeepAlive ensures that v is not swept until all pointers into the arena go
// away.
func (a *Arena) KeepAlive(v unsafe.Pointer) {
	a.keep = append(a.keep, v)
}

// Free resets this arena. Memory handed out previously must no longer be
// referenced.
func (a *Arena) Free() {
	a.next, a.end, a.cap = 0, 0, 0
	a.keep = nil
}

func (a *Arena) grow(size int) {
	words := max(a.cap*2, minChunkWords)
	for words*8 < size {
		words *= 2
	}

	block := make([]uint64, words)
	base := unsafe.Pointer(unsafe.SliceData(block))
	a.keep = append(a.keep, base)

	a.next = uintptr(base)
	a.end = a.next + uintptr(words*8)
	a.cap = words
}
