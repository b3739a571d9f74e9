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

// Package xunsafe provides a more convenient interface for performing unsafe
// operations than Go's built-in package unsafe.
//
// All struct memory written by compiled deserializers is addressed through
// this package: a raw output pointer plus a byte offset taken from a shape's
// layout table.
package xunsafe

import (
	"sync"
	"unsafe"
)

// NoCopy is a type that go vet will complain about having been moved.
//
// It does so by implementing [sync.Locker].
type NoCopy [0]sync.Mutex

// Int is any integer type.
type Int interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr
}

// BitCast performs an unsafe bitcast from one type to another.
func BitCast[To, From any](v From) To {
	return *(*To)(unsafe.Pointer(&v))
}

// Cast casts one pointer type to another.
func Cast[To, From any](p *From) *To {
	return (*To)(unsafe.Pointer(p))
}

// ByteAdd adds the given offset to p, without scaling.
//
// It also throws in a cast for free.
func ByteAdd[T any, P ~*E, E any, I Int](p P, n I) *T {
	return (*T)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + uintptr(n)))
}

// ByteLoad loads a value of the given type at the given byte offset.
func ByteLoad[T any, P ~*E, E any, I Int](p P, n I) T {
	return *ByteAdd[T](p, n)
}

// ByteStore stores a value of the given type at the given byte offset.
func ByteStore[T any, P ~*E, E any, I Int](p P, n I, v T) {
	*ByteAdd[T](p, n) = v
}

// Size returns the size of T.
func Size[T any]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// Align returns the alignment of T.
func Align[T any]() int {
	var v T
	return int(unsafe.Alignof(v))
}

// RoundUp rounds n up to a multiple of align, which must be a power of two.
func RoundUp[I Int](n I, align I) I {
	return (n + align - 1) &^ (align - 1)
}

// Bytes returns an n-byte slice rooted at p.
func Bytes[P ~*E, E any](p P, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// LoadU64 performs an unaligned 8-byte little-endian load from b at offset n.
//
// The caller is responsible for ensuring that n+8 <= len(b).
func LoadU64(b []byte, n int) uint64 {
	return *ByteAdd[uint64](unsafe.SliceData(b), n)
}

// LoadU32 performs an unaligned 4-byte little-endian load from b at offset n.
//
// The caller is responsible for ensuring that n+4 <= len(b).
func LoadU32(b []byte, n int) uint32 {
	return *ByteAdd[uint32](unsafe.SliceData(b), n)
}

// Copy copies n bytes from src to dst. The ranges must not overlap.
func Copy(dst, src *byte, n int) {
	copy(unsafe.Slice(dst, n), unsafe.Slice(src, n))
}

// Clear zeroes n bytes starting at p.
func Clear(p *byte, n int) {
	clear(unsafe.Slice(p, n))
}

// StringData returns a pointer to the bytes of s.
func StringData(s string) *byte {
	return unsafe.StringData(s)
}

// String materializes a string header over ptr/len without copying.
func String(p *byte, n int) string {
	if n == 0 {
		return ""
	}
	return unsafe.String(p, n)
}
