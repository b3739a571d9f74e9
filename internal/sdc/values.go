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

	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
	"github.com/hyperjson-io/hyperjson/shape"
)

// emitScalar compiles a deserializer for a fixed-width scalar or string.
// Integer stores truncate to the field's width; this mirrors how the wire
// format carries every integer at full width.
func (c *Compiler) emitScalar(ty *shape.Type) Fn {
	ad, h := c.ad, c.h

	switch ty.Kind() {
	case shape.KindBool:
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			npos, v, ec := ad.ParseBool(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			var b byte
			if v {
				b = 1
			}
			xunsafe.ByteStore(out, 0, b)
			return npos
		}

	case shape.KindI8, shape.KindI16, shape.KindI32, shape.KindI64:
		width := ty.Size()
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			npos, v, ec := ad.ParseI64(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			storeInt(out, width, v)
			return npos
		}

	case shape.KindU8, shape.KindU16, shape.KindU32, shape.KindU64:
		width := ty.Size()
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			npos, v, ec := ad.ParseU64(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			storeInt(out, width, int64(v))
			return npos
		}

	case shape.KindF32:
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			npos, v, ec := ad.ParseF64(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			xunsafe.ByteStore(out, 0, float32(v))
			return npos
		}

	case shape.KindF64:
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			npos, v, ec := ad.ParseF64(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			xunsafe.ByteStore(out, 0, v)
			return npos
		}

	default: // String.
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			npos, s, ec := ad.ParseString(src, pos, sc.Ctx.Arena)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			h.WriteString(sc.Ctx, out, s.Bytes())
			return npos
		}
	}
}

func storeInt(out *byte, width uint32, v int64) {
	switch width {
	case 1:
		xunsafe.ByteStore(out, 0, int8(v))
	case 2:
		xunsafe.ByteStore(out, 0, int16(v))
	case 4:
		xunsafe.ByteStore(out, 0, int32(v))
	default:
		xunsafe.ByteStore(out, 0, v)
	}
}

// emitOptional compiles an optional deserializer: peek for null, and either
// reset to empty or parse the payload and mark the value populated. The
// previous value is dropped in both arms, so duplicate keys cannot leak.
func (c *Compiler) emitOptional(ty *shape.Type) (Fn, error) {
	elem := ty.Elem()
	inner, err := c.compile(elem)
	if err != nil {
		return nil, err
	}
	ad, h := c.ad, c.h

	if elem.Indirect() {
		size := int(elem.Size())
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			ctx := sc.Ctx
			if ad.PeekNull(src, pos) {
				npos, ec := ad.ConsumeNull(src, pos)
				if ec != rt.Ok {
					return fail(h, sc, ec, npos)
				}
				h.DropInPlace(ctx, out, ty)
				return npos
			}
			tmp := ctx.Arena.Alloc(size)
			npos := inner.Invoke(src, pos, tmp, sc)
			if npos < 0 {
				return npos
			}
			h.DropInPlace(ctx, out, ty)
			xunsafe.ByteStore(out, 0, tmp)
			return npos
		}, nil
	}

	// Inline payloads are at most a string header wide; parse into a scratch
	// slot and hand it to the populate helper.
	return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
		ctx := sc.Ctx
		if ad.PeekNull(src, pos) {
			npos, ec := ad.ConsumeNull(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			h.DropInPlace(ctx, out, ty)
			h.InitOptionalEmpty(ctx, out, elem)
			return npos
		}
		var tmp [shape.StringSize / 8]uint64
		p := xunsafe.Cast[byte](&tmp[0])
		npos := inner.Invoke(src, pos, p, sc)
		if npos < 0 {
			return npos
		}
		h.DropInPlace(ctx, out, ty)
		h.InitOptionalFrom(ctx, out, elem, p)
		return npos
	}, nil
}

// emitList compiles a list deserializer. The element deserializer is itself
// compiled and memoized, so lists of the same element share code.
func (c *Compiler) emitList(ty *shape.Type) (Fn, error) {
	elem := ty.Elem()
	inner, err := c.compile(elem)
	if err != nil {
		return nil, err
	}
	ad, h := c.ad, c.h
	elemSize := elem.Size()

	return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
		ctx := sc.Ctx
		pos, ec := ad.SeqBegin(src, pos)
		if ec != rt.Ok {
			return fail(h, sc, ec, pos)
		}
		h.InitList(ctx, out, 4, elem)

		hdr := xunsafe.Cast[rt.List](out)
		for n := 0; ; n++ {
			npos, end, ec := ad.SeqIsEnd(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			if end {
				return npos
			}
			pos = npos
			if n > 0 {
				if pos, ec = ad.SeqNext(src, pos); ec != rt.Ok {
					return fail(h, sc, ec, pos)
				}
			}

			if hdr.Len == hdr.Cap {
				h.GrowList(ctx, out, elem)
			}
			if pos = inner.Invoke(src, pos, hdr.At(hdr.Len, elemSize), sc); pos < 0 {
				return pos
			}
			hdr.Len++
		}
	}, nil
}

// emitMap compiles a deserializer for a map-typed value (string keys). Keys
// are materialized onto the arena; a duplicate key drops the previous value
// and reuses its slot.
func (c *Compiler) emitMap(ty *shape.Type) (Fn, error) {
	value := ty.Elem()
	inner, err := c.compile(value)
	if err != nil {
		return nil, err
	}
	ad, h := c.ad, c.h
	valSize := int(value.Size())
	dropOld := ownedType(value)

	return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
		ctx := sc.Ctx
		pos, ec := ad.MapBegin(src, pos)
		if ec != rt.Ok {
			return fail(h, sc, ec, pos)
		}
		h.InitMap(ctx, out, 8, value)

		for n := 0; ; n++ {
			npos, end, ec := ad.MapIsEnd(src, pos)
			if ec != rt.Ok {
				return fail(h, sc, ec, npos)
			}
			if end {
				return npos
			}
			pos = npos
			if n > 0 {
				if pos, ec = ad.MapNext(src, pos); ec != rt.Ok {
					return fail(h, sc, ec, pos)
				}
			}

			var key rt.String
			if pos, key, ec = ad.MapReadKey(src, pos, ctx.Arena); ec != rt.Ok {
				return fail(h, sc, ec, pos)
			}
			if pos, ec = ad.MapKVSep(src, pos); ec != rt.Ok {
				return fail(h, sc, ec, pos)
			}

			var khdr rt.String
			h.WriteString(ctx, xunsafe.Cast[byte](&khdr), key.Bytes())
			dst, existed := h.MapInsert(ctx, out, khdr)
			if existed {
				h.DropString(ctx, xunsafe.Cast[byte](&khdr))
				if dropOld {
					h.DropInPlace(ctx, dst, value)
				}
				xunsafe.Clear(dst, valSize)
			}

			if pos = inner.Invoke(src, pos, dst, sc); pos < 0 {
				return pos
			}
		}
	}, nil
}

// emitUnion compiles a standalone tagged-union deserializer: a wrapper
// container of exactly one entry whose key is the variant tag.
func (c *Compiler) emitUnion(ty *shape.Type) (Fn, error) {
	vs := ty.Variants()
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: union %v has no variants", ErrUnsupported, ty)
	}

	tags := make([]string, len(vs))
	payloads := make([]*Func, len(vs))
	for i := range vs {
		if vs[i].Type == nil {
			return nil, fmt.Errorf("%w: union %v has unit variant %q", ErrUnsupported, ty, vs[i].Tag)
		}
		tags[i] = vs[i].Tag
		var err error
		if payloads[i], err = c.compile(vs[i].Type); err != nil {
			return nil, err
		}
	}
	ad, h := c.ad, c.h

	return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
		pos, ec := ad.MapBegin(src, pos)
		if ec != rt.Ok {
			return fail(h, sc, ec, pos)
		}

		npos, end, ec := ad.MapIsEnd(src, pos)
		if ec != rt.Ok {
			return fail(h, sc, ec, npos)
		}
		if end {
			return fail(h, sc, rt.ErrEmptyUnionObject, npos)
		}
		pos = npos

		var key rt.String
		if pos, key, ec = ad.MapReadKey(src, pos, sc.Ctx.Arena); ec != rt.Ok {
			return fail(h, sc, ec, pos)
		}
		idx, ok := matchTag(tags, key)
		if !ok {
			return fail(h, sc, rt.ErrUnknownUnionTag, npos)
		}
		if pos, ec = ad.MapKVSep(src, pos); ec != rt.Ok {
			return fail(h, sc, ec, pos)
		}

		if pos = payloads[idx].Invoke(src, pos, xunsafe.ByteAdd[byte](out, shape.UnionPayloadOffset), sc); pos < 0 {
			return pos
		}
		xunsafe.ByteStore(out, shape.UnionTagOffset, uint32(idx))

		if npos, end, ec = ad.MapIsEnd(src, pos); ec != rt.Ok {
			return fail(h, sc, ec, npos)
		}
		if !end {
			return fail(h, sc, rt.ErrMultiKeyUnionObject, npos)
		}
		return npos
	}, nil
}

// ownedType reports whether values of ty hold owned allocations that must be
// dropped before overwriting.
func ownedType(ty *shape.Type) bool {
	switch ty.Kind() {
	case shape.KindString, shape.KindList, shape.KindMap,
		shape.KindUnion, shape.KindOptional:
		return true
	case shape.KindStruct:
		for i := range ty.Fields() {
			if ownedType(ty.Fields()[i].Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
