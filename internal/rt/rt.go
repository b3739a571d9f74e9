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

// Package rt is the runtime support layer for compiled deserializers.
//
// It defines the value representations written into raw struct memory (string
// and list headers, map tables, optionals, union discriminants), the scratch
// buffer through which compiled functions report errors, and the helper table
// of primitive memory operations that generated code calls into.
package rt

import (
	"unsafe"

	"github.com/hyperjson-io/hyperjson/internal/arena"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
)

// Code is a parse or compile error code.
type Code uint32

const (
	Ok Code = iota
	ErrTruncated
	ErrSyntax
	ErrExpectedString
	ErrExpectedNumber
	ErrExpectedBool
	ErrExpectedNull
	ErrNumberRange
	ErrMissingRequiredField
	ErrDuplicateUnionTag
	ErrUnknownUnionTag
	ErrEmptyUnionObject
	ErrMultiKeyUnionObject
	ErrDepthLimit
)

// String implements [fmt.Stringer].
func (c Code) String() string {
	names := [...]string{
		"ok",
		"truncated input",
		"malformed syntax",
		"expected string",
		"expected number",
		"expected bool",
		"expected null",
		"number out of range",
		"missing required field",
		"duplicate union tag",
		"unknown union tag",
		"empty union object",
		"union object with more than one key",
		"nesting depth limit exceeded",
	}
	if int(c) >= len(names) {
		return "unknown error"
	}
	return names[c]
}

// Fixed offsets of the error region within a scratch buffer. These are part
// of the calling convention: every compiled function writes its failure
// through them, and callers read them back without knowing which function
// failed.
const (
	ScratchCodeOffset = 0 // uint32
	ScratchPosOffset  = 8 // uint64
)

// Scratch is the side channel a compiled function reports failure through.
//
// The error region (Code and Pos) sits at statically known offsets; Ctx
// carries the per-parse allocation context, which rides along in the scratch
// buffer so the calling convention stays at five parameters.
type Scratch struct {
	Code Code
	_    uint32
	Pos  uint64
	Ctx  *Ctx
}

// The error region layout is load-bearing; a negative array length here means
// a field moved.
var (
	_ [unsafe.Offsetof(Scratch{}.Code) - ScratchCodeOffset]byte
	_ [ScratchCodeOffset - unsafe.Offsetof(Scratch{}.Code)]byte
	_ [unsafe.Offsetof(Scratch{}.Pos) - ScratchPosOffset]byte
	_ [ScratchPosOffset - unsafe.Offsetof(Scratch{}.Pos)]byte
)

// Ctx is the per-parse context: the arena all output memory is carved from,
// plus allocation accounting.
type Ctx struct {
	Arena *arena.Arena

	// LiveStrings counts owned string allocations that have been written but
	// not dropped. Duplicate-key handling must keep this balanced; tests
	// assert on it.
	LiveStrings int64
}

// String is the in-memory representation of a string field: a pointer into
// arena (or static) memory plus a length.
type String struct {
	Ptr *byte
	Len int
}

// Str materializes a Go string view over this header without copying.
func (s String) Str() string { return xunsafe.String(s.Ptr, s.Len) }

// Bytes returns the referenced bytes without copying.
func (s String) Bytes() []byte {
	if s.Ptr == nil {
		return nil
	}
	return unsafe.Slice(s.Ptr, s.Len)
}

// List is the in-memory representation of a list field. Elements are stored
// contiguously; the element size comes from the shape.
type List struct {
	Ptr *byte
	Len int
	Cap int
}

// At returns a pointer to the i-th element, given the element size.
func (l *List) At(i int, elemSize uint32) *byte {
	return xunsafe.ByteAdd[byte](l.Ptr, uint32(i)*elemSize)
}
