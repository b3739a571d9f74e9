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

package hyperjson_test

import (
	"fmt"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjson-io/hyperjson"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
	"github.com/hyperjson-io/hyperjson/shape"
)

// parse compiles ty, parses src, and returns the decoded result.
func parse(t *testing.T, ty *shape.Type, src string) any {
	t.Helper()
	fn, err := hyperjson.Compile(ty)
	require.NoError(t, err)
	sh := hyperjson.NewShared()
	t.Cleanup(sh.Free)
	v, err := fn.Parse(sh, []byte(src))
	require.NoError(t, err)
	assert.Equal(t, len(src), v.End())
	return v.Interface()
}

// parseErr compiles ty, parses src, and returns the failure.
func parseErr(t *testing.T, ty *shape.Type, src string) *hyperjson.ParseError {
	t.Helper()
	fn, err := hyperjson.Compile(ty)
	require.NoError(t, err)
	sh := hyperjson.NewShared()
	t.Cleanup(sh.Free)
	_, err = fn.Parse(sh, []byte(src))
	require.Error(t, err)
	var perr *hyperjson.ParseError
	require.ErrorAs(t, err, &perr)
	return perr
}

func TestParseScalars(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("Scalars").
		Field("b", shape.Bool()).
		Field("i8", shape.I8()).
		Field("i16", shape.I16()).
		Field("i32", shape.I32()).
		Field("i64", shape.I64()).
		Field("u8", shape.U8()).
		Field("u64", shape.U64()).
		Field("f32", shape.F32()).
		Field("f64", shape.F64()).
		Field("s", shape.String()).
		Build()

	got := parse(t, ty, `{
		"b": true, "i8": -12, "i16": -300, "i32": -70000, "i64": -5000000000,
		"u8": 200, "u64": 18446744073709551615,
		"f32": 1.5, "f64": -2.25e10, "s": "hi\n"
	}`)
	assert.Equal(t, map[string]any{
		"b":   true,
		"i8":  int64(-12),
		"i16": int64(-300),
		"i32": int64(-70000),
		"i64": int64(-5000000000),
		"u8":  uint64(200),
		"u64": uint64(math.MaxUint64),
		"f32": float32(1.5),
		"f64": -2.25e10,
		"s":   "hi\n",
	}, got)
}

func TestParseIntegerWidthTruncation(t *testing.T) {
	t.Parallel()

	// Integers arrive at full width and are truncated to the field's width
	// on store; neighbours must stay untouched.
	ty := shape.NewStruct("Narrow").
		Field("a", shape.I8()).
		Field("b", shape.I8()).
		Build()
	got := parse(t, ty, `{"a": 257, "b": 1}`)
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(1)}, got)
}

func TestParseMissingRequired(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("S").
		Field("a", shape.I64()).
		Field("b", shape.I64()).
		Build()

	src := `{"a": 1} `
	perr := parseErr(t, ty, src)
	assert.ErrorIs(t, perr, hyperjson.ErrMissingRequired)
	assert.Equal(t, len(src)-1, perr.Offset(), "reported just past the closing brace")
}

func TestParseOptional(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("Opt").
		Field("i", shape.OptionalOf(shape.I32())).
		Field("s", shape.OptionalOf(shape.String())).
		Build()

	assert.Equal(t, map[string]any{"i": int64(5), "s": "x"},
		parse(t, ty, `{"i": 5, "s": "x"}`))
	assert.Equal(t, map[string]any{"i": nil, "s": nil},
		parse(t, ty, `{"i": null, "s": null}`))
	assert.Equal(t, map[string]any{"i": nil, "s": nil},
		parse(t, ty, `{}`))
	assert.Equal(t, map[string]any{"i": nil, "s": ""},
		parse(t, ty, `{"s": ""}`), "empty string is present, not absent")
	assert.Equal(t, map[string]any{"i": nil, "s": nil},
		parse(t, ty, `{"s": "gone", "s": null}`), "null after a value resets to absent")
}

func TestParseRecursiveShape(t *testing.T) {
	t.Parallel()

	b := shape.NewStruct("Node")
	ty := b.
		Field("v", shape.I64()).
		Field("next", shape.OptionalOf(b.Type())).
		Build()

	const depth = 300
	var sb strings.Builder
	for i := 0; i < depth; i++ {
		fmt.Fprintf(&sb, `{"v": %d, "next": `, i)
	}
	sb.WriteString("null")
	sb.WriteString(strings.Repeat("}", depth))

	got := parse(t, ty, sb.String())
	for i := 0; i < depth; i++ {
		m, ok := got.(map[string]any)
		require.True(t, ok, "level %d", i)
		assert.Equal(t, int64(i), m["v"])
		got = m["next"]
	}
	assert.Nil(t, got)
}

func TestParseDuplicateKeys(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("Dup").
		Field("name", shape.String()).
		Field("n", shape.I64()).
		Build()

	fn, err := hyperjson.Compile(ty)
	require.NoError(t, err)
	sh := hyperjson.NewShared()
	defer sh.Free()

	v, err := fn.Parse(sh, []byte(`{"name": "first", "n": 1, "name": "second", "n": 2}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "second", "n": int64(2)}, v.Interface())
	assert.Equal(t, int64(1), sh.LiveStrings(),
		"the replaced string was released; exactly one allocation is live")
}

func TestParseList(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("L").
		Field("xs", shape.ListOf(shape.I64())).
		Field("nested", shape.ListOf(shape.ListOf(shape.Bool()))).
		Build()

	got := parse(t, ty, `{"xs": [1, 2, 3, 4, 5], "nested": [[true], [], [false, true]]}`)
	assert.Equal(t, map[string]any{
		"xs": []any{int64(1), int64(2), int64(3), int64(4), int64(5)},
		"nested": []any{
			[]any{true},
			[]any{},
			[]any{false, true},
		},
	}, got)

	assert.Equal(t, map[string]any{"xs": []any{}, "nested": []any{}},
		parse(t, ty, `{"xs": [], "nested": [ ]}`), "empty fast path")
}

func TestParseListOfStructs(t *testing.T) {
	t.Parallel()

	item := shape.NewStruct("Item").
		Field("k", shape.String()).
		Field("v", shape.I64()).
		Build()
	ty := shape.NewStruct("L").Field("items", shape.ListOf(item)).Build()

	got := parse(t, ty, `{"items": [{"k": "a", "v": 1}, {"k": "b", "v": 2}]}`)
	assert.Equal(t, map[string]any{"items": []any{
		map[string]any{"k": "a", "v": int64(1)},
		map[string]any{"k": "b", "v": int64(2)},
	}}, got)
}

func TestParseMapField(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("M").Field("m", shape.MapOf(shape.I64())).Build()

	got := parse(t, ty, `{"m": {"a": 1, "b": 2, "a": 3}}`)
	assert.Equal(t, map[string]any{"m": map[string]any{"a": int64(3), "b": int64(2)}},
		got, "duplicate map keys: last value wins")

	assert.Equal(t, map[string]any{"m": map[string]any{}}, parse(t, ty, `{"m": {}}`))
}

func TestParseFlattenStruct(t *testing.T) {
	t.Parallel()

	inner := shape.NewStruct("Inner").
		Field("x", shape.I64()).
		Field("y", shape.I64()).
		Build()
	ty := shape.NewStruct("Outer").
		Field("id", shape.String()).
		Flatten("pos", inner).
		Build()

	got := parse(t, ty, `{"x": 1, "id": "p", "y": 2}`)
	assert.Equal(t, map[string]any{"id": "p", "x": int64(1), "y": int64(2)}, got)

	perr := parseErr(t, ty, `{"id": "p", "x": 1}`)
	assert.ErrorIs(t, perr, hyperjson.ErrMissingRequired, "flattened fields are still required")
}

func TestParseFlattenUnion(t *testing.T) {
	t.Parallel()

	u := shape.NewUnion("Geom").
		Variant("circle", shape.F64()).
		Variant("label", shape.String()).
		Build()
	ty := shape.NewStruct("S").
		Field("id", shape.I64()).
		Flatten("geom", u).
		Build()

	got := parse(t, ty, `{"id": 1, "circle": 2.5}`)
	assert.Equal(t, map[string]any{"id": int64(1), "circle": 2.5}, got)

	got = parse(t, ty, `{"label": "big", "id": 2}`)
	assert.Equal(t, map[string]any{"id": int64(2), "label": "big"}, got)

	perr := parseErr(t, ty, `{"id": 1, "circle": 2.5, "label": "x"}`)
	assert.ErrorIs(t, perr, hyperjson.ErrDuplicateTag,
		"two tags of the same union in one object")

	perr = parseErr(t, ty, `{"id": 1, "circle": 0.5, "circle": 1.5}`)
	assert.ErrorIs(t, perr, hyperjson.ErrDuplicateTag)

	perr = parseErr(t, ty, `{"id": 1}`)
	assert.ErrorIs(t, perr, hyperjson.ErrMissingRequired,
		"a union without a default must appear")
}

func TestParseFlattenMap(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("S").
		Field("known", shape.I64()).
		Flatten("extra", shape.MapOf(shape.String())).
		Build()

	got := parse(t, ty, `{"known": 1, "a": "x", "b": "y"}`)
	assert.Equal(t, map[string]any{
		"known": int64(1),
		"a":     "x",
		"b":     "y",
	}, got)

	got = parse(t, ty, `{"known": 1}`)
	assert.Equal(t, map[string]any{"known": int64(1)}, got,
		"untouched flatten-map still decodes as an empty container")
}

func TestParseUnknownKeysSkipped(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("S").Field("a", shape.I64()).Build()
	got := parse(t, ty, `{"junk": {"deep": [1, {"x": null}]}, "a": 7, "more": "s"}`)
	assert.Equal(t, map[string]any{"a": int64(7)}, got)
}

func TestParseStandaloneUnion(t *testing.T) {
	t.Parallel()

	u := shape.NewUnion("Shape").
		Variant("circle", shape.F64()).
		Variant("name", shape.String()).
		Build()
	ty := shape.NewStruct("S").Field("u", u).Build()

	got := parse(t, ty, `{"u": {"circle": 1.5}}`)
	assert.Equal(t, map[string]any{"u": hyperjson.Union{Tag: "circle", Value: 1.5}}, got)

	got = parse(t, ty, `{"u": {"name": "n"}}`)
	assert.Equal(t, map[string]any{"u": hyperjson.Union{Tag: "name", Value: "n"}}, got)

	assert.ErrorIs(t, parseErr(t, ty, `{"u": {}}`), hyperjson.ErrEmptyUnion)
	assert.ErrorIs(t, parseErr(t, ty, `{"u": {"circle": 1, "name": "n"}}`), hyperjson.ErrMultiKeyUnion)
	assert.ErrorIs(t, parseErr(t, ty, `{"u": {"square": 1}}`), hyperjson.ErrUnknownTag)
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("D").
		Field("a", shape.I64()).
		FieldDefault("n", shape.I64()).
		Build()
	nOff := ty.Fields()[1].Offset

	fn, err := hyperjson.Compile(ty)
	require.NoError(t, err)
	sh := hyperjson.NewShared()
	defer sh.Free()

	v := fn.New(sh)
	xunsafe.ByteStore(v.Raw(), nOff, int64(42))
	_, err = fn.ParseInto(sh, []byte(`{"a": 1}`), v.Raw())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "n": int64(42)}, v.Interface(),
		"absent defaulted field keeps its pre-filled value")

	v = fn.New(sh)
	xunsafe.ByteStore(v.Raw(), nOff, int64(42))
	_, err = fn.ParseInto(sh, []byte(`{"a": 1, "n": 7}`), v.Raw())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "n": int64(7)}, v.Interface())
}

func TestParseStrategyEquivalence(t *testing.T) {
	t.Parallel()

	// The same logical object parsed through shapes sized to hit each
	// dispatch strategy must produce identical field values.
	build := func(n int, long bool) *shape.Type {
		b := shape.NewStruct(fmt.Sprintf("S%d", n))
		for i := 0; i < n; i++ {
			b.Field(key(i, long), shape.I64())
		}
		return b.Build()
	}
	input := func(n int, long bool) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = fmt.Sprintf("%q: %d", key(i, long), i)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}

	for _, tt := range []struct {
		name string
		n    int
		long bool
	}{
		{"inline", 4, false},
		{"linear", 4, true},
		{"prefix", 24, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parse(t, build(tt.n, tt.long), input(tt.n, tt.long))
			want := map[string]any{}
			for i := 0; i < tt.n; i++ {
				want[key(i, tt.long)] = int64(i)
			}
			assert.Equal(t, want, got)
		})
	}
}

func key(i int, long bool) string {
	if long {
		return fmt.Sprintf("%04d_quite_long_field_key", i)
	}
	return fmt.Sprintf("k%d", i)
}

func TestParseFloatBoundaries(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("F").Field("x", shape.F64()).Build()
	for _, tt := range []struct {
		in   string
		want float64
	}{
		{"1.7976931348623157e308", math.MaxFloat64},
		{"-1.7976931348623157e308", -math.MaxFloat64},
		{"5e-324", math.SmallestNonzeroFloat64},
		{"-0", math.Copysign(0, -1)},
		{"0.1", 0.1},
	} {
		got := parse(t, ty, `{"x": `+tt.in+`}`).(map[string]any)["x"].(float64)
		assert.Equal(t, tt.want, got, "%s", tt.in)
		assert.Equal(t, math.Signbit(tt.want), math.Signbit(got), "%s", tt.in)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("E").Field("a", shape.I64()).Build()

	perr := parseErr(t, ty, `{"a": `)
	assert.ErrorIs(t, perr, io.ErrUnexpectedEOF)

	src := `{"a": "nope"}`
	perr = parseErr(t, ty, src)
	assert.ErrorIs(t, perr, hyperjson.ErrExpectedNumber)
	assert.Equal(t, strings.Index(src, `"nope"`), perr.Offset())

	perr = parseErr(t, ty, `["a"]`)
	assert.ErrorIs(t, perr, hyperjson.ErrSyntax)
	assert.Contains(t, perr.Error(), "offset")
}

func TestParseWhitespaceTolerance(t *testing.T) {
	t.Parallel()

	ty := shape.NewStruct("W").
		Field("a", shape.I64()).
		Field("b", shape.ListOf(shape.Bool())).
		Build()
	got := parse(t, ty, "{\n\t\"a\" :\r 1 ,\n \"b\"\t: [ true ,\nfalse ]\n}")
	assert.Equal(t, map[string]any{"a": int64(1), "b": []any{true, false}}, got)
}

func TestCompileUnsupported(t *testing.T) {
	t.Parallel()

	many := shape.NewStruct("Many")
	for i := 0; i < 64; i++ {
		many.Field(fmt.Sprintf("f%02d", i), shape.I64())
	}
	_, err := hyperjson.Compile(many.Build())
	require.Error(t, err)
	assert.ErrorIs(t, err, hyperjson.ErrUnsupported)

	unit := shape.NewUnion("U").Unit("nothing").Build()
	_, err = hyperjson.Compile(shape.NewStruct("S").Field("u", unit).Build())
	assert.ErrorIs(t, err, hyperjson.ErrUnsupported)
}

func TestCompileSharesNestedShapes(t *testing.T) {
	t.Parallel()

	// The same element shape appearing at several sites compiles once and
	// parses correctly at all of them.
	pt := shape.NewStruct("Pt").Field("x", shape.I64()).Build()
	ty := shape.NewStruct("S").
		Field("one", shape.ListOf(pt)).
		Field("two", shape.ListOf(pt)).
		Field("three", shape.OptionalOf(pt)).
		Build()

	got := parse(t, ty, `{"one": [{"x": 1}], "two": [{"x": 2}], "three": {"x": 3}}`)
	assert.Equal(t, map[string]any{
		"one":   []any{map[string]any{"x": int64(1)}},
		"two":   []any{map[string]any{"x": int64(2)}},
		"three": map[string]any{"x": int64(3)},
	}, got)
}

func TestParseFromYAMLShape(t *testing.T) {
	t.Parallel()

	types, err := shape.FromYAML([]byte(`
types:
  event:
    struct:
      - {name: id, type: u64}
      - {name: note, type: optional string}
      - {name: tags, type: list string}
      - {name: attrs, type: map i64, flatten: true}
`))
	require.NoError(t, err)

	got := parse(t, types["event"], `{"id": 9, "tags": ["a"], "custom": 3}`)
	assert.Equal(t, map[string]any{
		"id":     uint64(9),
		"note":   nil,
		"tags":   []any{"a"},
		"custom": int64(3),
	}, got)
}
