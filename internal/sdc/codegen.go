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
	"github.com/hyperjson-io/hyperjson/internal/debug"
	"github.com/hyperjson-io/hyperjson/internal/format"
	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
	"github.com/hyperjson-io/hyperjson/shape"
)

// fieldOp is one resolved field action: where to write, which deserializer
// runs, and how occurrence tracking works for this slot.
type fieldOp struct {
	run    Fn
	ty     *shape.Type
	offset uint32
	size   uint32
	bit    int8 // Required-bit index, or -1.
	owned  bool // Values of ty hold owned allocations.
	drop   bool // Slot may already hold an owned value on first sight.
}

// variantOp is one resolved flattened-union variant.
type variantOp struct {
	run     Fn // Payload deserializer.
	union   *shape.Type
	offset  uint32
	size    uint32
	vIdx    uint32
	seenBit int8
	drop    bool // Union carries a default that may own allocations.
}

// mapOp is the flattened-map collector for keys no table entry claims.
type mapOp struct {
	run     Fn
	value   *shape.Type
	offset  uint32
	valSize int
	dropOld bool
}

// structProgram is a compiled struct deserializer: the dispatch table plus
// the per-target ops the run loop drives. Everything here is resolved at
// compile time; run touches no shape metadata.
type structProgram struct {
	ad     format.Adapter
	probes format.EmptyProbes
	raw    format.RawKeys
	h      *rt.Helpers

	ty *shape.Type
	d  *dispatch

	fields   []fieldOp
	variants []variantOp
	fmap     *mapOp

	preInit      []preInit
	requiredMask uint64
}

func (c *Compiler) emitStruct(ty *shape.Type) (Fn, error) {
	n, err := normalize(ty)
	if err != nil {
		return nil, err
	}

	p := &structProgram{
		ad:     c.ad,
		probes: c.probes,
		raw:    c.raw,
		h:      c.h,
		ty:     ty,
		d:      buildDispatch(n.entries, c.raw != nil),

		preInit:      n.preInit,
		requiredMask: n.requiredMask,
	}

	p.fields = make([]fieldOp, len(n.fields))
	for i := range n.fields {
		f := &n.fields[i]
		run, err := c.fieldFn(f.ty)
		if err != nil {
			return nil, err
		}
		p.fields[i] = fieldOp{
			run:    run,
			ty:     f.ty,
			offset: f.offset,
			size:   f.ty.Size(),
			bit:    f.bit,
			owned:  ownedType(f.ty),
			// Required default-free fields land in zeroed memory the first
			// time; everything else may overwrite a default or a previous
			// occurrence and has to release it first.
			drop: f.bit < 0 && ownedType(f.ty),
		}
	}

	p.variants = make([]variantOp, len(n.variants))
	for i := range n.variants {
		v := &n.variants[i]
		fn, err := c.compile(v.payload)
		if err != nil {
			return nil, err
		}
		p.variants[i] = variantOp{
			run:     fn.Invoke,
			union:   v.union,
			offset:  v.offset,
			size:    v.union.Size(),
			vIdx:    v.vIdx,
			seenBit: v.seenBit,
			drop:    v.hasDefault && ownedType(v.union),
		}
	}

	if n.fmap != nil {
		fn, err := c.compile(n.fmap.value)
		if err != nil {
			return nil, err
		}
		p.fmap = &mapOp{
			run:     fn.Invoke,
			value:   n.fmap.value,
			offset:  n.fmap.offset,
			valSize: int(n.fmap.value.Size()),
			dropOld: ownedType(n.fmap.value),
		}
	}

	if debug.Enabled {
		p.dump(c)
	}
	return p.run, nil
}

// fieldFn wraps the compiled deserializer for a field type. Container fields
// get an empty-literal fast path when the format offers the probe: an empty
// container initializes the header directly, skipping the element loop.
func (c *Compiler) fieldFn(ty *shape.Type) (Fn, error) {
	fn, err := c.compile(ty)
	if err != nil {
		return nil, err
	}
	if c.probes == nil {
		return fn.Invoke, nil
	}

	probes, h := c.probes, c.h
	switch ty.Kind() {
	case shape.KindList:
		elem := ty.Elem()
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			if npos, empty, ok := probes.TryEmptySeq(src, pos); ok && empty {
				h.InitList(sc.Ctx, out, 0, elem)
				return npos
			}
			return fn.Invoke(src, pos, out, sc)
		}, nil

	case shape.KindMap:
		value := ty.Elem()
		return func(src []byte, pos int, out *byte, sc *rt.Scratch) int {
			if npos, empty, ok := probes.TryEmptyMap(src, pos); ok && empty {
				h.InitMap(sc.Ctx, out, 0, value)
				return npos
			}
			return fn.Invoke(src, pos, out, sc)
		}, nil
	}
	return fn.Invoke, nil
}

// run is the compiled struct deserializer.
func (p *structProgram) run(src []byte, pos int, out *byte, sc *rt.Scratch) int {
	ctx := sc.Ctx
	pos, ec := p.ad.MapBegin(src, pos)
	if ec != rt.Ok {
		return fail(p.h, sc, ec, pos)
	}

	for i := range p.preInit {
		pi := &p.preInit[i]
		p.h.InitOptionalEmpty(ctx, xunsafe.ByteAdd[byte](out, pi.offset), pi.ty.Elem())
	}

	inline := p.d.strategy == strategyInline
	var bits uint64
	for n := 0; ; n++ {
		npos, end, ec := p.ad.MapIsEnd(src, pos)
		if ec != rt.Ok {
			return fail(p.h, sc, ec, npos)
		}
		if end {
			return p.finish(out, sc, npos, bits)
		}
		pos = npos
		if n > 0 {
			if pos, ec = p.ad.MapNext(src, pos); ec != rt.Ok {
				return fail(p.h, sc, ec, pos)
			}
		}

		if inline {
			// Matched patterns include the key/value separator, so a hit
			// jumps straight to the value.
			if npos, t, ok := p.d.matchInline(p.raw, src, pos); ok {
				if pos = p.exec(src, npos, out, sc, t, &bits, true); pos < 0 {
					return pos
				}
				continue
			}
		}

		var key rt.String
		if pos, key, ec = p.ad.MapReadKey(src, pos, ctx.Arena); ec != rt.Ok {
			return fail(p.h, sc, ec, pos)
		}
		if t, ok := p.d.matchKey(key); ok {
			pos = p.exec(src, pos, out, sc, t, &bits, false)
		} else {
			pos = p.execUnknown(src, pos, out, sc, key)
		}
		if pos < 0 {
			return pos
		}
	}
}

// exec runs one matched table entry. sep reports whether the matcher already
// consumed the key/value separator.
func (p *structProgram) exec(src []byte, pos int, out *byte, sc *rt.Scratch, t target, bits *uint64, sep bool) int {
	var ec rt.Code
	if !sep {
		if pos, ec = p.ad.MapKVSep(src, pos); ec != rt.Ok {
			return fail(p.h, sc, ec, pos)
		}
	}
	ctx := sc.Ctx

	if t.kind == targetVariant {
		op := &p.variants[t.idx]
		mask := uint64(1) << op.seenBit
		if *bits&mask != 0 {
			return fail(p.h, sc, rt.ErrDuplicateUnionTag, pos)
		}
		slot := xunsafe.ByteAdd[byte](out, op.offset)
		if op.drop {
			p.h.DropInPlace(ctx, slot, op.union)
			xunsafe.Clear(slot, int(op.size))
		}
		if pos = op.run(src, pos, xunsafe.ByteAdd[byte](slot, shape.UnionPayloadOffset), sc); pos < 0 {
			return pos
		}
		xunsafe.ByteStore(slot, shape.UnionTagOffset, op.vIdx)
		*bits |= mask
		return pos
	}

	op := &p.fields[t.idx]
	slot := xunsafe.ByteAdd[byte](out, op.offset)
	if op.bit >= 0 {
		mask := uint64(1) << op.bit
		if *bits&mask != 0 {
			// Duplicate key: the last occurrence wins, the previous value is
			// released.
			if op.owned {
				p.h.DropInPlace(ctx, slot, op.ty)
				xunsafe.Clear(slot, int(op.size))
			}
		} else {
			*bits |= mask
		}
	} else if op.drop {
		p.h.DropInPlace(ctx, slot, op.ty)
		xunsafe.Clear(slot, int(op.size))
	}
	return op.run(src, pos, slot, sc)
}

// execUnknown handles a key no table entry claims: collected into the
// flattened map when the shape has one, skipped otherwise.
func (p *structProgram) execUnknown(src []byte, pos int, out *byte, sc *rt.Scratch, key rt.String) int {
	pos, ec := p.ad.MapKVSep(src, pos)
	if ec != rt.Ok {
		return fail(p.h, sc, ec, pos)
	}
	if p.fmap == nil {
		if pos, ec = p.ad.SkipValue(src, pos); ec != rt.Ok {
			return fail(p.h, sc, ec, pos)
		}
		return pos
	}

	op := p.fmap
	ctx := sc.Ctx
	slot := xunsafe.ByteAdd[byte](out, op.offset)
	if xunsafe.ByteLoad[*rt.Map](slot, 0) == nil {
		p.h.InitMap(ctx, slot, 8, op.value)
	}

	var khdr rt.String
	p.h.WriteString(ctx, xunsafe.Cast[byte](&khdr), key.Bytes())
	dst, existed := p.h.MapInsert(ctx, slot, khdr)
	if existed {
		p.h.DropString(ctx, xunsafe.Cast[byte](&khdr))
		if op.dropOld {
			p.h.DropInPlace(ctx, dst, op.value)
		}
		xunsafe.Clear(dst, op.valSize)
	}
	return op.run(src, pos, dst, sc)
}

// finish validates the seen bits against the required mask and settles any
// slot that never saw a key. pos sits past the closing delimiter; a missing
// required field is reported there.
func (p *structProgram) finish(out *byte, sc *rt.Scratch, pos int, bits uint64) int {
	if bits&p.requiredMask != p.requiredMask {
		return fail(p.h, sc, rt.ErrMissingRequiredField, pos)
	}
	if op := p.fmap; op != nil {
		slot := xunsafe.ByteAdd[byte](out, op.offset)
		if xunsafe.ByteLoad[*rt.Map](slot, 0) == nil {
			p.h.InitMap(sc.Ctx, slot, 0, op.value)
		}
	}
	return pos
}

func (p *structProgram) dump(c *Compiler) {
	c.log("table", "%v: strategy=%v fields=%d variants=%d fmap=%v required=%#x",
		p.ty, p.d.strategy, len(p.fields), len(p.variants), p.fmap != nil, p.requiredMask)
	for i := range p.d.entries {
		e := &p.d.entries[i]
		c.log("table", "  %q -> kind=%d idx=%d", e.key, e.t.kind, e.t.idx)
	}
}
