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

	"github.com/hyperjson-io/hyperjson/shape"
)

// trackingBits is the capacity of the combined required/union-seen bitset.
// Normalization aborts when the combined count reaches it.
const trackingBits = 64

// normalized is a struct shape resolved into one flat dispatch table:
// declared fields plus everything contributed by transitively flattened
// fields, addressed by combined offsets from the parent struct's base.
type normalized struct {
	entries  []entry // Dispatch table, in declaration order.
	fields   []nField
	variants []nVariant
	fmap     *nMap

	preInit []preInit // Optional fields, pre-set to empty on entry.

	// requiredMask covers the bits of required fields and of required
	// flattened unions; validated against the seen bits at container end.
	requiredMask uint64
	bits         int
}

type nField struct {
	name       string
	ty         *shape.Type
	offset     uint32
	hasDefault bool
	bit        int8 // Required-bit index, or -1.
}

type nVariant struct {
	tag        string
	union      *shape.Type
	payload    *shape.Type
	offset     uint32 // Offset of the union storage in the parent.
	vIdx       uint32 // Variant index within its union.
	seenBit    int8   // One per flattened union field, shared by its variants.
	hasDefault bool
}

type nMap struct {
	offset uint32
	ty     *shape.Type // The map type itself.
	value  *shape.Type
}

type preInit struct {
	offset uint32
	ty     *shape.Type // The optional type.
}

// normalize flattens ty's dispatch surface. All verdicts it returns wrap
// [ErrUnsupported]: the shape is legal, but this compiler cannot handle it
// and the caller must fall back to interpretation.
func normalize(ty *shape.Type) (*normalized, error) {
	n := &normalized{}
	seen := make(map[string]struct{})
	if err := n.addStruct(ty, 0, seen); err != nil {
		return nil, err
	}
	if n.bits >= trackingBits {
		return nil, fmt.Errorf("%w: %v needs %d tracking bits, limit is %d",
			ErrUnsupported, ty, n.bits, trackingBits)
	}
	return n, nil
}

func (n *normalized) addStruct(ty *shape.Type, base uint32, seen map[string]struct{}) error {
	for i := range ty.Fields() {
		f := &ty.Fields()[i]
		off := base + f.Offset

		if !f.Flatten {
			if err := n.addField(ty, f, off, seen); err != nil {
				return err
			}
			continue
		}

		switch f.Type.Kind() {
		case shape.KindStruct:
			if err := n.addStruct(f.Type, off, seen); err != nil {
				return err
			}

		case shape.KindUnion:
			if err := n.addUnion(ty, f, off, seen); err != nil {
				return err
			}

		case shape.KindMap:
			if n.fmap != nil {
				return fmt.Errorf("%w: %v has more than one flattened map", ErrUnsupported, ty)
			}
			if !supportedValue(f.Type.Elem()) {
				return fmt.Errorf("%w: flattened map %v.%s has value type %v",
					ErrUnsupported, ty, f.Name, f.Type.Elem())
			}
			n.fmap = &nMap{offset: off, ty: f.Type, value: f.Type.Elem()}

		default:
			return fmt.Errorf("%w: cannot flatten %v.%s of type %v",
				ErrUnsupported, ty, f.Name, f.Type)
		}
	}
	return nil
}

// claimBit hands out the next required/seen tracking bit. A shape that needs
// more bits than one word tracks is an unsupported verdict, never a wider
// word: the caller falls back to interpretation.
func (n *normalized) claimBit(owner *shape.Type) (int8, error) {
	if n.bits >= trackingBits {
		return 0, fmt.Errorf("%w: %v needs more than %d tracking bits",
			ErrUnsupported, owner, trackingBits)
	}
	bit := int8(n.bits)
	n.bits++
	return bit, nil
}

func (n *normalized) addField(owner *shape.Type, f *shape.Field, off uint32, seen map[string]struct{}) error {
	if !supportedValue(f.Type) {
		return fmt.Errorf("%w: field %v.%s has type %v", ErrUnsupported, owner, f.Name, f.Type)
	}
	if err := n.claim(owner, f.Name, seen); err != nil {
		return err
	}

	nf := nField{
		name:       f.Name,
		ty:         f.Type,
		offset:     off,
		hasDefault: f.HasDefault,
		bit:        -1,
	}
	if f.IsOptional() {
		// A defaulted optional keeps its caller-installed default when the
		// key never shows up; only default-free optionals reset to empty.
		if !f.HasDefault {
			n.preInit = append(n.preInit, preInit{offset: off, ty: f.Type})
		}
	} else if !f.HasDefault {
		bit, err := n.claimBit(owner)
		if err != nil {
			return err
		}
		nf.bit = bit
		n.requiredMask |= 1 << bit
	}

	n.entries = append(n.entries, entry{
		key: f.Name,
		t:   target{kind: targetField, idx: int32(len(n.fields))},
	})
	n.fields = append(n.fields, nf)
	return nil
}

func (n *normalized) addUnion(owner *shape.Type, f *shape.Field, off uint32, seen map[string]struct{}) error {
	u := f.Type
	if len(u.Variants()) == 0 {
		return fmt.Errorf("%w: flattened union %v has no variants", ErrUnsupported, u)
	}

	// One seen bit per flattened union field; it doubles as the union's
	// required bit.
	bit, err := n.claimBit(owner)
	if err != nil {
		return err
	}
	if !f.HasDefault {
		n.requiredMask |= 1 << bit
	}

	for vi := range u.Variants() {
		v := &u.Variants()[vi]
		if v.Type == nil {
			// Only payload-carrying variants are supported at a flatten site.
			return fmt.Errorf("%w: flattened union %v has unit variant %q",
				ErrUnsupported, u, v.Tag)
		}
		if err := n.claim(owner, v.Tag, seen); err != nil {
			return err
		}
		n.entries = append(n.entries, entry{
			key: v.Tag,
			t:   target{kind: targetVariant, idx: int32(len(n.variants))},
		})
		n.variants = append(n.variants, nVariant{
			tag:        v.Tag,
			union:      u,
			payload:    v.Type,
			offset:     off,
			vIdx:       uint32(vi),
			seenBit:    bit,
			hasDefault: f.HasDefault,
		})
	}
	return nil
}

// claim enters name into the single namespace shared by ordinary fields and
// union variant tags. Any duplicate aborts compilation.
func (n *normalized) claim(owner *shape.Type, name string, seen map[string]struct{}) error {
	if _, dup := seen[name]; dup {
		return fmt.Errorf("%w: duplicate dispatch key %q in %v", ErrUnsupported, name, owner)
	}
	seen[name] = struct{}{}
	return nil
}

// supportedValue reports whether ty can appear as a parse target. Structural
// problems inside nested shapes surface later, from their own compilations.
func supportedValue(ty *shape.Type) bool {
	return ty != nil && ty.Kind() != shape.Invalid
}
