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

package shape_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjson-io/hyperjson/shape"
)

func TestScalarSingletons(t *testing.T) {
	t.Parallel()

	assert.Same(t, shape.I32(), shape.I32())
	assert.Same(t, shape.String(), shape.String())
	assert.NotSame(t, shape.I32(), shape.U32())

	tests := []struct {
		ty    *shape.Type
		size  uint32
		align uint32
	}{
		{shape.Bool(), 1, 1},
		{shape.I8(), 1, 1},
		{shape.I16(), 2, 2},
		{shape.I32(), 4, 4},
		{shape.I64(), 8, 8},
		{shape.U8(), 1, 1},
		{shape.F32(), 4, 4},
		{shape.F64(), 8, 8},
		{shape.String(), shape.StringSize, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.size, tt.ty.Size(), "%v", tt.ty)
		assert.Equal(t, tt.align, tt.ty.Align(), "%v", tt.ty)
	}
}

func TestStructLayout(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("Mixed").
		Field("a", shape.U8()).
		Field("b", shape.I32()).
		Field("c", shape.Bool()).
		Field("d", shape.F64()).
		Field("e", shape.String()).
		Build()

	fields := ty.Fields()
	require.Len(t, fields, 5)
	assert.Equal(t, uint32(0), fields[0].Offset)
	assert.Equal(t, uint32(4), fields[1].Offset, "i32 aligns to 4")
	assert.Equal(t, uint32(8), fields[2].Offset)
	assert.Equal(t, uint32(16), fields[3].Offset, "f64 aligns to 8")
	assert.Equal(t, uint32(24), fields[4].Offset)
	assert.Equal(t, uint32(24+shape.StringSize), ty.Size())
	assert.Equal(t, uint32(8), ty.Align())
}

func TestStructNesting(t *testing.T) {
	t.Parallel()

	inner := shape.NewStruct("Inner").
		Field("x", shape.I16()).
		Build()
	outer := shape.NewStruct("Outer").
		Field("pre", shape.U8()).
		Field("in", inner).
		Build()

	assert.Equal(t, uint32(2), inner.Size())
	assert.Equal(t, uint32(2), outer.Fields()[1].Offset, "inner struct aligns to 2")
	assert.Equal(t, uint32(4), outer.Size())
}

func TestOptionalLayout(t *testing.T) {
	t.Parallel()

	t.Run("inline scalar", func(t *testing.T) {
		opt := shape.OptionalOf(shape.I32())
		assert.False(t, shape.I32().Indirect())
		assert.Equal(t, uint32(8), opt.Size(), "4 payload + flag, rounded to align 4")
		assert.Equal(t, uint32(4), opt.Align())
		assert.Equal(t, uint32(4), shape.I32().FlagOffset())
	})

	t.Run("inline string", func(t *testing.T) {
		opt := shape.OptionalOf(shape.String())
		assert.Equal(t, uint32(shape.StringSize+8), opt.Size())
		assert.Equal(t, uint32(shape.StringSize), shape.String().FlagOffset())
	})

	t.Run("indirect", func(t *testing.T) {
		st := shape.NewStruct("Big").Field("x", shape.I64()).Build()
		for _, ty := range []*shape.Type{st, shape.ListOf(shape.I64()), shape.MapOf(shape.I64())} {
			opt := shape.OptionalOf(ty)
			assert.True(t, ty.Indirect(), "%v", ty)
			assert.Equal(t, uint32(8), opt.Size(), "%v stored as pointer", ty)
		}
	})
}

func TestRecursiveShape(t *testing.T) {
	t.Parallel()

	b := shape.NewStruct("Node")
	ty := b.
		Field("value", shape.I64()).
		Field("next", shape.OptionalOf(b.Type())).
		Build()

	require.Same(t, ty, ty.Fields()[1].Type.Elem())
	assert.Equal(t, uint32(16), ty.Size())
}

func TestInlineUnfinalizedPanics(t *testing.T) {
	t.Parallel()

	b := shape.NewStruct("Selfish")
	b.Field("self", b.Type())
	assert.Panics(t, func() { b.Build() })
}

func TestUnionLayout(t *testing.T) {
	t.Parallel()

	small := shape.NewStruct("Small").Field("x", shape.I32()).Build()
	big := shape.NewStruct("Big").Field("x", shape.F64()).Field("y", shape.String()).Build()
	u := shape.NewUnion("Either").
		Variant("small", small).
		Variant("big", big).
		Build()

	require.Len(t, u.Variants(), 2)
	assert.Equal(t, shape.UnionPayloadOffset+big.Size(), u.Size(), "sized for the largest payload")
	assert.Equal(t, uint32(8), u.Align())
}

func TestBuildIsIdempotent(t *testing.T) {
	t.Parallel()

	b := shape.NewStruct("Once").Field("x", shape.I64())
	first := b.Build()
	assert.Same(t, first, b.Build())
	assert.Panics(t, func() { b.Field("late", shape.I64()) })
}
