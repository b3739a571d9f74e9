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

package rt

import (
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
	"github.com/hyperjson-io/hyperjson/shape"
)

// Helpers is the runtime helper table: the fixed set of primitive memory
// operations compiled code calls into. The table is a compile-time
// collaborator; tests substitute instrumented entries to observe generated
// code.
type Helpers struct {
	// InitOptionalEmpty resets an optional field to its empty state without
	// dropping a previous value.
	InitOptionalEmpty func(ctx *Ctx, p *byte, elem *shape.Type)

	// InitOptionalFrom marks an optional populated from a temporary holding a
	// parsed payload. Inline optionals copy the payload and set the presence
	// flag; indirect optionals copy into a fresh arena allocation and store
	// the pointer.
	InitOptionalFrom func(ctx *Ctx, p *byte, elem *shape.Type, tmp *byte)

	// DropInPlace releases the owned contents of a value of the given type.
	// The memory itself stays on the arena; only ownership accounting and
	// headers change.
	DropInPlace func(ctx *Ctx, p *byte, ty *shape.Type)

	// InitList initializes a list header with capacity for n elements.
	InitList func(ctx *Ctx, p *byte, n int, elem *shape.Type)

	// GrowList doubles a list's capacity, moving the elements.
	GrowList func(ctx *Ctx, p *byte, elem *shape.Type)

	// InitMap initializes a map field with capacity for n entries.
	InitMap func(ctx *Ctx, p *byte, n int, value *shape.Type)

	// MapInsert finds or creates the slot for key in the map field at p,
	// returning the value storage and whether the key already existed.
	MapInsert func(ctx *Ctx, p *byte, key String) (val *byte, existed bool)

	// WriteString copies b onto the arena and writes an owned string header.
	// The previous header contents are overwritten blindly; callers drop
	// first when the slot may hold an owned string.
	WriteString func(ctx *Ctx, p *byte, b []byte)

	// WriteError records a failure code and position in the scratch buffer.
	// Every error path of every compiled function funnels through this.
	WriteError func(sc *Scratch, code Code, pos int)

	// DropString releases an owned string.
	DropString func(ctx *Ctx, p *byte)

	// Copy is a raw memory copy of n bytes.
	Copy func(dst, src *byte, n int)
}

// Default returns the standard helper table.
func Default() *Helpers {
	return &defaultHelpers
}

var defaultHelpers = Helpers{
	InitOptionalEmpty: initOptionalEmpty,
	InitOptionalFrom:  initOptionalFrom,
	DropInPlace:       dropInPlace,
	InitList:          initList,
	GrowList:          growList,
	InitMap:           initMap,
	MapInsert:         mapInsert,
	WriteString:       writeString,
	WriteError:        writeError,
	DropString:        dropString,
	Copy:              xunsafe.Copy,
}

func initOptionalEmpty(_ *Ctx, p *byte, elem *shape.Type) {
	if elem.Indirect() {
		xunsafe.ByteStore[*byte](p, 0, nil)
		return
	}
	xunsafe.Clear(p, int(elem.Size()))
	xunsafe.ByteStore[byte](p, elem.FlagOffset(), 0)
}

func initOptionalFrom(ctx *Ctx, p *byte, elem *shape.Type, tmp *byte) {
	if elem.Indirect() {
		dst := ctx.Arena.Alloc(int(elem.Size()))
		xunsafe.Copy(dst, tmp, int(elem.Size()))
		xunsafe.ByteStore(p, 0, dst)
		return
	}
	xunsafe.Copy(p, tmp, int(elem.Size()))
	xunsafe.ByteStore[byte](p, elem.FlagOffset(), 1)
}

func dropInPlace(ctx *Ctx, p *byte, ty *shape.Type) {
	switch ty.Kind() {
	case shape.KindString:
		dropString(ctx, p)

	case shape.KindOptional:
		elem := ty.Elem()
		if elem.Indirect() {
			if q := xunsafe.ByteLoad[*byte](p, 0); q != nil {
				dropInPlace(ctx, q, elem)
				xunsafe.ByteStore[*byte](p, 0, nil)
			}
			return
		}
		if xunsafe.ByteLoad[byte](p, elem.FlagOffset()) != 0 {
			dropInPlace(ctx, p, elem)
			xunsafe.ByteStore[byte](p, elem.FlagOffset(), 0)
		}

	case shape.KindList:
		hdr := xunsafe.Cast[List](p)
		elem := ty.Elem()
		if owned(elem) {
			for i := range hdr.Len {
				dropInPlace(ctx, hdr.At(i, elem.Size()), elem)
			}
		}
		*hdr = List{}

	case shape.KindMap:
		m := xunsafe.ByteLoad[*Map](p, 0)
		if m == nil {
			return
		}
		value := ty.Elem()
		m.Range(func(_ string, val *byte) bool {
			ctx.LiveStrings-- // The materialized key.
			if owned(value) {
				dropInPlace(ctx, val, value)
			}
			return true
		})
		xunsafe.ByteStore[*Map](p, 0, nil)

	case shape.KindStruct:
		for i := range ty.Fields() {
			f := &ty.Fields()[i]
			if owned(f.Type) {
				dropInPlace(ctx, xunsafe.ByteAdd[byte](p, f.Offset), f.Type)
			}
		}

	case shape.KindUnion:
		tag := xunsafe.ByteLoad[uint32](p, shape.UnionTagOffset)
		vs := ty.Variants()
		if int(tag) < len(vs) && vs[tag].Type != nil && owned(vs[tag].Type) {
			dropInPlace(ctx, xunsafe.ByteAdd[byte](p, shape.UnionPayloadOffset), vs[tag].Type)
		}
	}
}

// owned reports whether values of ty can hold owned allocations, and hence
// whether dropping them does anything.
func owned(ty *shape.Type) bool {
	switch ty.Kind() {
	case shape.KindString, shape.KindList, shape.KindMap, shape.KindUnion:
		return true
	case shape.KindOptional:
		return true
	case shape.KindStruct:
		for i := range ty.Fields() {
			if owned(ty.Fields()[i].Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func initList(ctx *Ctx, p *byte, n int, elem *shape.Type) {
	hdr := xunsafe.Cast[List](p)
	*hdr = List{Cap: n}
	if n > 0 {
		hdr.Ptr = ctx.Arena.Alloc(n * int(elem.Size()))
	}
}

func growList(ctx *Ctx, p *byte, elem *shape.Type) {
	hdr := xunsafe.Cast[List](p)
	n := max(hdr.Cap*2, 4)
	q := ctx.Arena.Alloc(n * int(elem.Size()))
	if hdr.Len > 0 {
		xunsafe.Copy(q, hdr.Ptr, hdr.Len*int(elem.Size()))
	}
	hdr.Ptr, hdr.Cap = q, n
}

func initMap(ctx *Ctx, p *byte, n int, value *shape.Type) {
	xunsafe.ByteStore(p, 0, NewMap(ctx.Arena, n, value.Size()))
}

func mapInsert(ctx *Ctx, p *byte, key String) (*byte, bool) {
	m := xunsafe.ByteLoad[*Map](p, 0)
	return m.Insert(ctx.Arena, key)
}

func writeString(ctx *Ctx, p *byte, b []byte) {
	s := String{Len: len(b)}
	if len(b) > 0 {
		s.Ptr = ctx.Arena.Bytes(b)
	} else {
		s.Ptr = ctx.Arena.Alloc(0)
	}
	ctx.LiveStrings++
	xunsafe.ByteStore(p, 0, s)
}

func writeError(sc *Scratch, code Code, pos int) {
	sc.Code = code
	sc.Pos = uint64(pos)
}

func dropString(ctx *Ctx, p *byte) {
	s := xunsafe.ByteLoad[String](p, 0)
	if s.Ptr != nil {
		ctx.LiveStrings--
		xunsafe.ByteStore(p, 0, String{})
	}
}
