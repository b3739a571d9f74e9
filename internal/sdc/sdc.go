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

// Package sdc is the schema-driven deserializer compiler.
//
// Given a shape descriptor, it builds a [Func]: a deserializer specialized to
// that shape's dispatch table and memory layout, parsing a token stream
// straight into raw struct memory with no intermediate value tree. The
// compiler resolves flattened fields into one flat dispatch table
// (normalize.go), picks a key-matching strategy (dispatch.go), and assembles
// the parse program (codegen.go), memoizing per shape identity so that
// recursive and shared shapes compile once (this file).
package sdc

import (
	"errors"
	"fmt"

	"github.com/hyperjson-io/hyperjson/internal/debug"
	"github.com/hyperjson-io/hyperjson/internal/format"
	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/shape"
)

// ErrUnsupported marks a shape the compiler cannot handle. The caller is
// expected to fall back to an interpreted deserialization path; this error
// never surfaces at parse time.
var ErrUnsupported = errors.New("unsupported shape")

// Fn is the fixed calling convention shared by every compiled function:
// input buffer, start cursor, output struct memory, scratch buffer. A
// non-negative return is the new cursor; a negative return signals failure,
// with the error code and position already written into the scratch buffer at
// [rt.ScratchCodeOffset] and [rt.ScratchPosOffset].
//
// The convention must stay bit-exact across all compiled functions: callers
// and recursive callees agree on it without knowing each other.
type Fn func(src []byte, pos int, out *byte, sc *rt.Scratch) int

// Func is a compiled deserializer for one shape.
//
// A Func goes through three states: declared (inserted into the cache with a
// nil body, so that recursive shapes can reference it), emitted, and
// finalized. A declared-but-unfinalized Func must never be invoked; the
// compiler guarantees that every Func it returns is finalized.
type Func struct {
	ty   *shape.Type
	body Fn
}

// Type returns the shape this function deserializes.
func (f *Func) Type() *shape.Type { return f.ty }

// Invoke runs the compiled function. See [Fn] for the convention.
func (f *Func) Invoke(src []byte, pos int, out *byte, sc *rt.Scratch) int {
	return f.body(src, pos, out, sc)
}

// Compiler compiles shapes against one format adapter and helper table.
//
// A Compiler is single-threaded: one compilation request completes before the
// next begins, which is also what makes the declare-before-emit memoization
// safe without locking. The compiled Funcs themselves are immutable and safe
// for concurrent use.
type Compiler struct {
	ad     format.Adapter
	probes format.EmptyProbes // Nil if the format has no cheap empty check.
	raw    format.RawKeys     // Nil if keys cannot be matched as raw bytes.
	h      *rt.Helpers

	cache   map[*shape.Type]*Func
	pending []*shape.Type // Declared during the current request.
}

// NewCompiler returns a compiler targeting the given adapter and helper
// table.
func NewCompiler(ad format.Adapter, h *rt.Helpers) *Compiler {
	c := &Compiler{
		ad:    ad,
		h:     h,
		cache: make(map[*shape.Type]*Func),
	}
	c.probes, _ = ad.(format.EmptyProbes)
	c.raw, _ = ad.(format.RawKeys)
	return c
}

// Compile compiles ty, reusing previously compiled shapes by identity.
//
// On failure every function declared during this request is discarded; the
// cache never retains a declared-but-unfinalized Func.
func (c *Compiler) Compile(ty *shape.Type) (*Func, error) {
	f, err := c.compile(ty)
	if err != nil {
		for _, t := range c.pending {
			delete(c.cache, t)
		}
	}
	c.pending = c.pending[:0]
	return f, err
}

func (c *Compiler) compile(ty *shape.Type) (*Func, error) {
	if f, ok := c.cache[ty]; ok {
		// Either finalized, or a forward declaration of a shape further up
		// this request's stack; both resolve recursion.
		return f, nil
	}

	f := &Func{ty: ty}
	c.cache[ty] = f
	c.pending = append(c.pending, ty)

	c.log("declare", "%v", ty)
	body, err := c.emit(ty)
	if err != nil {
		return nil, err
	}
	f.body = body
	c.log("define", "%v", ty)
	return f, nil
}

func (c *Compiler) emit(ty *shape.Type) (Fn, error) {
	switch k := ty.Kind(); {
	case k.IsScalar():
		return c.emitScalar(ty), nil
	case k == shape.KindOptional:
		return c.emitOptional(ty)
	case k == shape.KindList:
		return c.emitList(ty)
	case k == shape.KindMap:
		return c.emitMap(ty)
	case k == shape.KindStruct:
		return c.emitStruct(ty)
	case k == shape.KindUnion:
		return c.emitUnion(ty)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, ty)
	}
}

func (c *Compiler) log(op, f string, args ...any) {
	debug.Log([]any{"%p", c}, op, f, args...)
}

// fail funnels an error into the scratch buffer. Shared by all generated
// code; recursive callees that already failed are propagated without calling
// this again.
func fail(h *rt.Helpers, sc *rt.Scratch, code rt.Code, pos int) int {
	h.WriteError(sc, code, pos)
	return -1
}
