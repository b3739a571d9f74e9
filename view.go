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

package hyperjson

import (
	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
	"github.com/hyperjson-io/hyperjson/shape"
)

// Value is a typed view over parsed raw memory. It stays valid until the
// Shared it was parsed against is freed.
type Value struct {
	ty  *shape.Type
	p   *byte
	end int
	sh  *Shared
}

// Shape returns the value's shape.
func (v *Value) Shape() *shape.Type { return v.ty }

// End returns the input offset one past the parsed value.
func (v *Value) End() int { return v.end }

// Raw returns the raw storage pointer. Mostly useful to code that reads
// fields through shape offsets directly.
func (v *Value) Raw() *byte { return v.p }

// Union is the decoded form of a tagged union: the variant tag and its
// payload. Unit variants carry a nil Value.
type Union struct {
	Tag   string
	Value any
}

// Interface decodes the raw memory into ordinary Go values: scalars widen to
// int64/uint64, structs and maps become map[string]any, lists become []any,
// absent optionals become nil, and unions become [Union]. Strings alias
// arena memory and share the Value's lifetime.
func (v *Value) Interface() any {
	return decode(v.ty, v.p)
}

func decode(ty *shape.Type, p *byte) any {
	switch ty.Kind() {
	case shape.KindBool:
		return xunsafe.ByteLoad[byte](p, 0) != 0
	case shape.KindI8:
		return int64(xunsafe.ByteLoad[int8](p, 0))
	case shape.KindI16:
		return int64(xunsafe.ByteLoad[int16](p, 0))
	case shape.KindI32:
		return int64(xunsafe.ByteLoad[int32](p, 0))
	case shape.KindI64:
		return xunsafe.ByteLoad[int64](p, 0)
	case shape.KindU8:
		return uint64(xunsafe.ByteLoad[uint8](p, 0))
	case shape.KindU16:
		return uint64(xunsafe.ByteLoad[uint16](p, 0))
	case shape.KindU32:
		return uint64(xunsafe.ByteLoad[uint32](p, 0))
	case shape.KindU64:
		return xunsafe.ByteLoad[uint64](p, 0)
	case shape.KindF32:
		return xunsafe.ByteLoad[float32](p, 0)
	case shape.KindF64:
		return xunsafe.ByteLoad[float64](p, 0)
	case shape.KindString:
		return xunsafe.Cast[rt.String](p).Str()

	case shape.KindOptional:
		elem := ty.Elem()
		if elem.Indirect() {
			q := xunsafe.ByteLoad[*byte](p, 0)
			if q == nil {
				return nil
			}
			return decode(elem, q)
		}
		if xunsafe.ByteLoad[byte](p, elem.FlagOffset()) == 0 {
			return nil
		}
		return decode(elem, p)

	case shape.KindList:
		hdr := xunsafe.Cast[rt.List](p)
		elem := ty.Elem()
		out := make([]any, hdr.Len)
		for i := range out {
			out[i] = decode(elem, hdr.At(i, elem.Size()))
		}
		return out

	case shape.KindMap:
		out := map[string]any{}
		m := xunsafe.ByteLoad[*rt.Map](p, 0)
		if m == nil {
			return out
		}
		value := ty.Elem()
		m.Range(func(key string, val *byte) bool {
			out[key] = decode(value, val)
			return true
		})
		return out

	case shape.KindStruct:
		out := map[string]any{}
		decodeStruct(ty, p, out)
		return out

	case shape.KindUnion:
		return decodeUnion(ty, p)

	default:
		return nil
	}
}

// decodeStruct fills out with the struct's fields; flattened fields merge
// into the same namespace, mirroring how they dispatched during parsing.
func decodeStruct(ty *shape.Type, p *byte, out map[string]any) {
	for i := range ty.Fields() {
		f := &ty.Fields()[i]
		fp := xunsafe.ByteAdd[byte](p, f.Offset)
		if !f.Flatten {
			out[f.Name] = decode(f.Type, fp)
			continue
		}
		switch f.Type.Kind() {
		case shape.KindStruct:
			decodeStruct(f.Type, fp, out)
		case shape.KindUnion:
			u := decodeUnion(f.Type, fp)
			out[u.Tag] = u.Value
		case shape.KindMap:
			for k, v := range decode(f.Type, fp).(map[string]any) {
				out[k] = v
			}
		}
	}
}

func decodeUnion(ty *shape.Type, p *byte) Union {
	vs := ty.Variants()
	tag := xunsafe.ByteLoad[uint32](p, shape.UnionTagOffset)
	if int(tag) >= len(vs) {
		return Union{}
	}
	v := &vs[tag]
	u := Union{Tag: v.Tag}
	if v.Type != nil {
		u.Value = decode(v.Type, xunsafe.ByteAdd[byte](p, shape.UnionPayloadOffset))
	}
	return u
}
