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

package sdc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjson-io/hyperjson/shape"
)

func TestNormalizePlainStruct(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("S").
		Field("a", shape.I64()).
		FieldDefault("b", shape.I32()).
		Field("c", shape.OptionalOf(shape.String())).
		Field("d", shape.Bool()).
		Build()

	n, err := normalize(ty)
	require.NoError(t, err)

	require.Len(t, n.fields, 4)
	require.Len(t, n.entries, 4)
	assert.Empty(t, n.variants)
	assert.Nil(t, n.fmap)

	// Required bits go to a and d only; b has a default, c is optional.
	assert.Equal(t, int8(0), n.fields[0].bit)
	assert.Equal(t, int8(-1), n.fields[1].bit)
	assert.Equal(t, int8(-1), n.fields[2].bit)
	assert.Equal(t, int8(1), n.fields[3].bit)
	assert.Equal(t, uint64(0b11), n.requiredMask)
	assert.Equal(t, 2, n.bits)

	require.Len(t, n.preInit, 1)
	assert.Equal(t, ty.Fields()[2].Offset, n.preInit[0].offset)
}

func TestNormalizeFlattenStruct(t *testing.T) {
	t.Parallel()

	inner := shape.NewStruct("Inner").
		Field("x", shape.I32()).
		Field("y", shape.I32()).
		Build()
	outer := shape.NewStruct("Outer").
		Field("a", shape.I64()).
		Flatten("in", inner).
		Field("z", shape.I64()).
		Build()

	n, err := normalize(outer)
	require.NoError(t, err)
	require.Len(t, n.fields, 4)

	// Flattened entries address the parent with combined offsets.
	innerOff := outer.Fields()[1].Offset
	assert.Equal(t, "x", n.fields[1].name)
	assert.Equal(t, innerOff+inner.Fields()[0].Offset, n.fields[1].offset)
	assert.Equal(t, "y", n.fields[2].name)
	assert.Equal(t, innerOff+inner.Fields()[1].Offset, n.fields[2].offset)

	// All four are required, including the inner ones.
	assert.Equal(t, uint64(0b1111), n.requiredMask)
}

func TestNormalizeFlattenUnion(t *testing.T) {
	t.Parallel()

	u := shape.NewUnion("U").
		Variant("left", shape.I64()).
		Variant("right", shape.String()).
		Build()
	ty := shape.NewStruct("S").
		Field("id", shape.I64()).
		Flatten("u", u).
		Build()

	n, err := normalize(ty)
	require.NoError(t, err)

	require.Len(t, n.fields, 1)
	require.Len(t, n.variants, 2)
	require.Len(t, n.entries, 3)

	// The two variants share one seen bit, which is also the union's
	// required bit.
	assert.Equal(t, n.variants[0].seenBit, n.variants[1].seenBit)
	assert.Equal(t, uint32(0), n.variants[0].vIdx)
	assert.Equal(t, uint32(1), n.variants[1].vIdx)
	assert.Equal(t, ty.Fields()[1].Offset, n.variants[0].offset)
	assert.Equal(t, uint64(0b11), n.requiredMask)
	assert.Equal(t, 2, n.bits)
}

func TestNormalizeFlattenUnionWithDefault(t *testing.T) {
	t.Parallel()

	u := shape.NewUnion("U").Variant("only", shape.I64()).Build()
	ty := shape.NewStruct("S").FlattenDefault("u", u).Build()

	n, err := normalize(ty)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n.requiredMask, "defaulted union is tracked but not required")
	assert.Equal(t, 1, n.bits)
	assert.True(t, n.variants[0].hasDefault)
}

func TestNormalizeFlattenMap(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("S").
		Field("known", shape.I64()).
		Flatten("rest", shape.MapOf(shape.String())).
		Build()

	n, err := normalize(ty)
	require.NoError(t, err)
	require.NotNil(t, n.fmap)
	assert.Equal(t, ty.Fields()[1].Offset, n.fmap.offset)
	assert.Same(t, shape.String(), n.fmap.value)
	assert.Len(t, n.entries, 1, "the flattened map claims no dispatch key")
}

func TestNormalizeUnsupported(t *testing.T) {
	t.Parallel()

	withUnit := shape.NewUnion("WithUnit").
		Variant("some", shape.I64()).
		Unit("none").
		Build()
	emptyUnion := shape.NewUnion("Empty").Build()

	manyRequired := shape.NewStruct("Many")
	for i := 0; i < 64; i++ {
		manyRequired.Field(fmt.Sprintf("f%02d", i), shape.I64())
	}

	dupInner := shape.NewStruct("DupInner").Field("a", shape.I64()).Build()

	tests := []struct {
		name string
		ty   *shape.Type
	}{
		{"unit variant", shape.NewStruct("S1").Flatten("u", withUnit).Build()},
		{"empty union", shape.NewStruct("S2").Flatten("u", emptyUnion).Build()},
		{"64 tracking bits", manyRequired.Build()},
		{"two flattened maps", shape.NewStruct("S3").
			Flatten("m1", shape.MapOf(shape.I64())).
			Flatten("m2", shape.MapOf(shape.I64())).
			Build()},
		{"flatten scalar", shape.NewStruct("S4").Flatten("x", shape.I64()).Build()},
		{"flatten list", shape.NewStruct("S5").Flatten("x", shape.ListOf(shape.I64())).Build()},
		{"flatten optional", shape.NewStruct("S6").
			Flatten("x", shape.OptionalOf(dupInner)).Build()},
		{"duplicate key", shape.NewStruct("S7").
			Field("a", shape.I64()).
			Flatten("in", dupInner).
			Build()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := normalize(tt.ty)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestNormalizeBitLimitBoundary(t *testing.T) {
	t.Parallel()

	// 63 tracked bits is fine; 64 is not.
	ok := shape.NewStruct("Ok63")
	for i := 0; i < 63; i++ {
		ok.Field(fmt.Sprintf("f%02d", i), shape.Bool())
	}
	n, err := normalize(ok.Build())
	require.NoError(t, err)
	assert.Equal(t, 63, n.bits)
}

func TestNormalizeVeryWideStruct(t *testing.T) {
	t.Parallel()

	// Wide enough that a bit index would no longer fit the tracking word.
	// Still a legal shape: it must come back as an unsupported verdict, not
	// blow up mid-walk.
	wide := shape.NewStruct("Wide")
	for i := 0; i < 129; i++ {
		wide.Field(fmt.Sprintf("f%03d", i), shape.I64())
	}
	ty := wide.Build()

	var err error
	require.NotPanics(t, func() { _, err = normalize(ty) })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
}
