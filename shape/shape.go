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

// Package shape describes the memory layout of deserialization targets.
//
// A [Type] is an immutable descriptor with stable identity: the compiler keys
// its memoization cache on the *Type pointer, so a shape graph should be built
// once and reused for the lifetime of the process. Struct layout (field
// offsets, sizes, alignments) is computed exactly once, when the builder is
// finalized; all later access is plain offset arithmetic.
package shape

import (
	"fmt"
	"math"
)

// Kind classifies a [Type].
type Kind uint8

const (
	Invalid Kind = iota

	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindString

	KindOptional
	KindList
	KindMap // String keys only.
	KindStruct
	KindUnion
)

// String implements [fmt.Stringer].
func (k Kind) String() string {
	names := [...]string{
		"invalid", "bool",
		"i8", "i16", "i32", "i64",
		"u8", "u16", "u32", "u64",
		"f32", "f64", "string",
		"optional", "list", "map", "struct", "union",
	}
	if int(k) >= len(names) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return names[k]
}

// IsScalar reports whether this kind is a fixed-width scalar or a string.
func (k Kind) IsScalar() bool {
	return k >= KindBool && k <= KindString
}

// Sizes of the in-memory representations written by compiled deserializers.
// These mirror the headers in internal/rt.
const (
	StringSize = 16 // {ptr, len}
	ListSize   = 24 // {ptr, len, cap}
	MapSize    = 8  // pointer to arena-backed table

	// UnionTagOffset and UnionPayloadOffset fix the layout of a union value:
	// a uint32 discriminant followed by the payload at a fixed offset.
	UnionTagOffset     = 0
	UnionPayloadOffset = 8
)

// Type is an immutable shape descriptor.
type Type struct {
	kind  Kind
	size  uint32
	align uint32

	name     string // Struct and union only.
	elem     *Type  // Optional payload, list element, map value.
	fields   []Field
	variants []Variant

	frozen bool
}

// Field describes one struct field.
type Field struct {
	// Name is the field's key in the wire format.
	Name string

	// Type of the field's storage.
	Type *Type

	// Offset is the field's byte offset within the owning struct.
	Offset uint32

	// HasDefault marks a field whose absence is not an error; the caller is
	// expected to pre-fill the output memory with the default before parsing.
	HasDefault bool

	// Flatten merges this field's inner fields, variants, or unmatched keys
	// into the owning struct's dispatch table.
	Flatten bool
}

// IsOptional reports whether this field's storage is an optional.
func (f *Field) IsOptional() bool { return f.Type.kind == KindOptional }

// Variant describes one alternative of a union.
type Variant struct {
	// Tag is the variant's name in the wire format.
	Tag string

	// Type is the payload. Nil for unit (payloadless) variants, which the
	// compiler does not support.
	Type *Type
}

// Kind returns this type's kind.
func (t *Type) Kind() Kind { return t.kind }

// Name returns the declared name of a struct or union, and "" otherwise.
func (t *Type) Name() string { return t.name }

// Size returns the byte size of this type's in-memory representation.
//
// Panics for a struct that has not been finalized yet.
func (t *Type) Size() uint32 {
	if !t.frozen {
		panic(fmt.Sprintf("hyperjson/shape: size of unfinalized type %q", t.name))
	}
	return t.size
}

// Align returns the alignment of this type's in-memory representation.
func (t *Type) Align() uint32 {
	if !t.frozen {
		panic(fmt.Sprintf("hyperjson/shape: align of unfinalized type %q", t.name))
	}
	return t.align
}

// Elem returns an optional's payload, a list's element, or a map's value
// type.
func (t *Type) Elem() *Type { return t.elem }

// Fields returns a struct's fields, in declaration order.
func (t *Type) Fields() []Field { return t.fields }

// Variants returns a union's variants, in declaration order.
func (t *Type) Variants() []Variant { return t.variants }

// Indirect reports whether an optional of this kind is stored as a pointer
// (nil meaning absent) rather than inline with a presence flag.
//
// Aggregates go behind a pointer; this is what makes self-referential shapes
// representable with a finite layout.
func (t *Type) Indirect() bool {
	switch t.kind {
	case KindStruct, KindUnion, KindList, KindMap, KindOptional:
		return true
	default:
		return false
	}
}

// FlagOffset returns the byte offset of the presence flag of an inline
// optional with this payload type.
func (t *Type) FlagOffset() uint32 { return t.size }

// String implements [fmt.Stringer].
func (t *Type) String() string {
	switch t.kind {
	case KindOptional:
		return "optional<" + t.elem.String() + ">"
	case KindList:
		return "list<" + t.elem.String() + ">"
	case KindMap:
		return "map<string, " + t.elem.String() + ">"
	case KindStruct, KindUnion:
		return t.name
	default:
		return t.kind.String()
	}
}

var scalars = func() [KindString + 1]*Type {
	var ts [KindString + 1]*Type
	mk := func(k Kind, size uint32) {
		ts[k] = &Type{kind: k, size: size, align: size, frozen: true}
	}
	mk(KindBool, 1)
	mk(KindI8, 1)
	mk(KindI16, 2)
	mk(KindI32, 4)
	mk(KindI64, 8)
	mk(KindU8, 1)
	mk(KindU16, 2)
	mk(KindU32, 4)
	mk(KindU64, 8)
	mk(KindF32, 4)
	mk(KindF64, 8)
	ts[KindString] = &Type{kind: KindString, size: StringSize, align: 8, frozen: true}
	return ts
}()

// Scalar type singletons. Scalars of the same kind always share identity.
func Bool() *Type   { return scalars[KindBool] }
func I8() *Type     { return scalars[KindI8] }
func I16() *Type    { return scalars[KindI16] }
func I32() *Type    { return scalars[KindI32] }
func I64() *Type    { return scalars[KindI64] }
func U8() *Type     { return scalars[KindU8] }
func U16() *Type    { return scalars[KindU16] }
func U32() *Type    { return scalars[KindU32] }
func U64() *Type    { return scalars[KindU64] }
func F32() *Type    { return scalars[KindF32] }
func F64() *Type    { return scalars[KindF64] }
func String() *Type { return scalars[KindString] }

// OptionalOf returns an optional wrapper around elem.
//
// Scalar payloads are stored inline, followed by a one-byte presence flag;
// aggregate payloads are stored as a pointer, with nil meaning absent. The
// pointer form is legal even when elem is not finalized yet, which is how a
// struct refers to itself.
func OptionalOf(elem *Type) *Type {
	t := &Type{kind: KindOptional, elem: elem, frozen: true}
	if elem.Indirect() {
		t.size, t.align = 8, 8
		return t
	}
	t.size = roundUp(elem.size+1, elem.align)
	t.align = elem.align
	return t
}

// ListOf returns a list of elem. Elements are stored contiguously in arena
// memory behind a {ptr, len, cap} header.
func ListOf(elem *Type) *Type {
	return &Type{kind: KindList, elem: elem, size: ListSize, align: 8, frozen: true}
}

// MapOf returns a string-keyed map with the given value type, stored as a
// pointer to an arena-backed table.
func MapOf(value *Type) *Type {
	return &Type{kind: KindMap, elem: value, size: MapSize, align: 8, frozen: true}
}

func roundUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// StructBuilder accumulates fields for a struct type.
//
// The type returned by [StructBuilder.Type] may be referenced (behind an
// optional, list, or map) before [StructBuilder.Build] is called; this is how
// recursive shapes are constructed. Using it as an inline field before Build
// panics, since its size is not known yet.
type StructBuilder struct {
	t    *Type
	done bool
}

// NewStruct returns a builder for a struct type with the given name.
func NewStruct(name string) *StructBuilder {
	return &StructBuilder{t: &Type{kind: KindStruct, name: name, align: 1}}
}

// Type returns the (possibly unfinalized) type under construction.
func (b *StructBuilder) Type() *Type { return b.t }

// Field appends a required field. The name is the wire-format key.
func (b *StructBuilder) Field(name string, ty *Type) *StructBuilder {
	return b.add(Field{Name: name, Type: ty})
}

// FieldDefault appends a field whose absence is filled by a caller-supplied
// default rather than reported as an error.
func (b *StructBuilder) FieldDefault(name string, ty *Type) *StructBuilder {
	return b.add(Field{Name: name, Type: ty, HasDefault: true})
}

// Flatten appends a flattened field: a struct contributes its inner fields to
// the parent's dispatch table, a union contributes its variant tags, and a map
// captures every key the table does not match.
func (b *StructBuilder) Flatten(name string, ty *Type) *StructBuilder {
	return b.add(Field{Name: name, Type: ty, Flatten: true})
}

// FlattenDefault appends a flattened field that may be absent entirely: a
// flattened union whose tags never appear keeps its caller-supplied default
// instead of being reported as missing.
func (b *StructBuilder) FlattenDefault(name string, ty *Type) *StructBuilder {
	return b.add(Field{Name: name, Type: ty, Flatten: true, HasDefault: true})
}

func (b *StructBuilder) add(f Field) *StructBuilder {
	if b.done {
		panic(fmt.Sprintf("hyperjson/shape: field %q added to finalized struct %q", f.Name, b.t.name))
	}
	b.t.fields = append(b.t.fields, f)
	return b
}

// Build computes the struct's layout and freezes it.
//
// Fields are laid out in declaration order with natural alignment padding.
// Panics if an inline field's type is itself unfinalized, or if the struct
// exceeds the maximum representable size.
func (b *StructBuilder) Build() *Type {
	if b.done {
		return b.t
	}
	t := b.t

	var size uint32
	align := uint32(1)
	for i := range t.fields {
		f := &t.fields[i]
		if !f.Type.frozen {
			panic(fmt.Sprintf(
				"hyperjson/shape: %q.%s embeds unfinalized type %q inline; wrap it in an optional",
				t.name, f.Name, f.Type.name))
		}

		size = roundUp(size, f.Type.align)
		f.Offset = size
		size += f.Type.size
		align = max(align, f.Type.align)

		if size > math.MaxInt32 {
			panic(fmt.Sprintf("hyperjson/shape: struct %q too large", t.name))
		}
	}

	t.size = roundUp(size, align)
	t.align = align
	t.frozen = true
	b.done = true
	return t
}

// UnionBuilder accumulates variants for a tagged union type.
type UnionBuilder struct {
	t    *Type
	done bool
}

// NewUnion returns a builder for a union type with the given name.
func NewUnion(name string) *UnionBuilder {
	return &UnionBuilder{t: &Type{kind: KindUnion, name: name, align: 8}}
}

// Type returns the (possibly unfinalized) type under construction.
func (b *UnionBuilder) Type() *Type { return b.t }

// Variant appends a variant carrying a payload.
func (b *UnionBuilder) Variant(tag string, payload *Type) *UnionBuilder {
	return b.add(Variant{Tag: tag, Type: payload})
}

// Unit appends a payloadless variant. Representable, but the compiler rejects
// unions containing unit variants and falls back to interpretation.
func (b *UnionBuilder) Unit(tag string) *UnionBuilder {
	return b.add(Variant{Tag: tag})
}

func (b *UnionBuilder) add(v Variant) *UnionBuilder {
	if b.done {
		panic(fmt.Sprintf("hyperjson/shape: variant %q added to finalized union %q", v.Tag, b.t.name))
	}
	b.t.variants = append(b.t.variants, v)
	return b
}

// Build computes the union's layout and freezes it.
//
// A union value is a uint32 discriminant (the variant's index) at
// [UnionTagOffset], with the payload at [UnionPayloadOffset]. Size covers the
// largest payload.
func (b *UnionBuilder) Build() *Type {
	if b.done {
		return b.t
	}
	t := b.t

	var payload uint32
	for i := range t.variants {
		v := &t.variants[i]
		if v.Type == nil {
			continue
		}
		if !v.Type.frozen {
			panic(fmt.Sprintf(
				"hyperjson/shape: %q.%s embeds unfinalized type %q inline; wrap it in an optional",
				t.name, v.Tag, v.Type.name))
		}
		payload = max(payload, v.Type.size)
	}

	t.size = roundUp(UnionPayloadOffset+payload, t.align)
	t.frozen = true
	b.done = true
	return t
}
