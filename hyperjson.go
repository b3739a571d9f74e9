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

// Package hyperjson compiles shape descriptors into deserializers that parse
// JSON directly into raw struct memory.
//
// A [shape.Type] describes a value's memory layout: scalar widths, field
// offsets, optional/list/map representations, union discriminants. [Compile]
// turns a shape into a [CompiledFunc], a table-driven parser specialized to
// that layout: field keys dispatch through precomputed match tables, scalars
// store at their exact offsets, and all variable-sized output lands on an
// arena owned by a [Shared].
//
// Compilation is conservative. Shapes the compiler cannot specialize (too
// many required fields, exotic flattens) fail with an error wrapping
// [ErrUnsupported], telling the caller to fall back to a generic
// interpreter.
package hyperjson

import (
	"github.com/hyperjson-io/hyperjson/internal/arena"
	"github.com/hyperjson-io/hyperjson/internal/format/jsontext"
	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/internal/sdc"
	"github.com/hyperjson-io/hyperjson/shape"
)

// CompiledFunc is a deserializer compiled for one shape. It is immutable and
// safe for concurrent use; per-parse state lives in the [Shared] passed to
// [CompiledFunc.Parse].
type CompiledFunc struct {
	fn *sdc.Func
	ty *shape.Type
}

// Compile builds a deserializer for ty.
//
// Nested shapes are compiled once and reused by identity, so recursive
// shapes compile to recursive functions. Errors wrapping [ErrUnsupported]
// mean the shape is legal but outside what the compiler specializes.
func Compile(ty *shape.Type, opts ...CompileOption) (*CompiledFunc, error) {
	cfg := compileConfig{
		adapter: jsontext.New(),
		helpers: rt.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	fn, err := sdc.NewCompiler(cfg.adapter, cfg.helpers).Compile(ty)
	if err != nil {
		return nil, err
	}
	return &CompiledFunc{fn: fn, ty: ty}, nil
}

// Shape returns the shape this function deserializes.
func (f *CompiledFunc) Shape() *shape.Type { return f.ty }

// New allocates zeroed storage for this function's shape on sh's arena,
// without parsing anything. Callers that use default-carrying fields write
// the defaults into the returned value's raw storage and then parse with
// [CompiledFunc.ParseInto].
func (f *CompiledFunc) New(sh *Shared) *Value {
	return &Value{ty: f.ty, p: sh.arena.Alloc(int(f.ty.Size())), sh: sh}
}

// Parse parses src into fresh memory on sh's arena and returns a view over
// the result. The returned Value is valid until sh is freed.
func (f *CompiledFunc) Parse(sh *Shared, src []byte) (*Value, error) {
	out := sh.arena.Alloc(int(f.ty.Size()))
	end, err := f.ParseInto(sh, src, out)
	if err != nil {
		return nil, err
	}
	return &Value{ty: f.ty, p: out, end: end, sh: sh}, nil
}

// ParseInto parses src into caller-provided memory and returns the input
// offset one past the parsed value.
//
// out must be zeroed, except for slots covered by default-carrying fields,
// which the caller pre-fills; any owned values among those defaults must be
// arena strings written through the helper table so release accounting stays
// balanced. On failure out may hold a partial result; its memory is still
// owned by sh's arena and needs no cleanup beyond freeing sh.
func (f *CompiledFunc) ParseInto(sh *Shared, src []byte, out *byte) (int, error) {
	sc := rt.Scratch{Ctx: &sh.ctx}
	end := f.fn.Invoke(src, 0, out, &sc)
	if end < 0 {
		return 0, &ParseError{code: sc.Code, offset: int(sc.Pos)}
	}
	return end, nil
}

// Shared is a parsing session: the arena every parse output is allocated
// from, plus allocation accounting. It is not safe for concurrent use; use
// one Shared per goroutine.
type Shared struct {
	arena *arena.Arena
	ctx   rt.Ctx
}

// NewShared returns an empty parsing session.
func NewShared() *Shared {
	sh := &Shared{arena: &arena.Arena{}}
	sh.ctx.Arena = sh.arena
	return sh
}

// Free releases all memory parsed through this session. Every Value parsed
// against it becomes invalid.
func (s *Shared) Free() {
	s.arena.Free()
	s.ctx.LiveStrings = 0
}

// LiveStrings returns the number of owned string allocations currently
// reachable from values parsed in this session. Duplicate keys and reparses
// release what they replace, so the count tracks reachable strings, not
// total allocations.
func (s *Shared) LiveStrings() int64 { return s.ctx.LiveStrings }
