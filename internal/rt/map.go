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
	"math/bits"

	"github.com/hyperjson-io/hyperjson/internal/arena"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
)

// Map is an arena-backed, insert-mostly table with string keys, used for
// flatten-map fields and map-typed fields.
//
// Slots are laid out as {key String, value [valSize rounded to 8]} in one
// contiguous arena block; an empty slot has a nil key pointer. Linear probing,
// power-of-two capacity, fxhash. There is no deletion.
type Map struct {
	slots   *byte
	len     uint32
	mask    uint32 // Slot count minus one.
	valSize uint32
}

const mapMinSlots = 8

func (m *Map) slotSize() uint32 {
	return uint32(xunsafe.Size[String]()) + xunsafe.RoundUp(m.valSize, 8)
}

func (m *Map) slot(i uint32) *byte {
	return xunsafe.ByteAdd[byte](m.slots, i*m.slotSize())
}

// NewMap allocates a map on the arena with room for at least capacity
// entries before growing.
func NewMap(a *arena.Arena, capacity int, valSize uint32) *Map {
	slots := uint32(mapMinSlots)
	for int(slots)*7/8 < capacity {
		slots *= 2
	}
	m := arena.New(a, Map{mask: slots - 1, valSize: valSize})
	m.slots = a.Alloc(int(slots * m.slotSize()))
	return m
}

// Len returns the number of entries.
func (m *Map) Len() int { return int(m.len) }

// Insert finds or creates the slot for key, returning a pointer to its value
// storage and whether the key already existed.
//
// The key header is stored as-is; the caller must have materialized it into
// memory that outlives the map. When the key already exists, the stored key
// is kept and the caller's copy is unused.
func (m *Map) Insert(a *arena.Arena, key String) (val *byte, existed bool) {
	if (m.len+1)*8 > (m.mask+1)*7 {
		m.grow(a)
	}

	i := uint32(fxhash(key.Bytes())) & m.mask
	for {
		p := m.slot(i)
		k := xunsafe.ByteLoad[String](p, 0)
		switch {
		case k.Ptr == nil:
			xunsafe.ByteStore(p, 0, key)
			m.len++
			return xunsafe.ByteAdd[byte](p, xunsafe.Size[String]()), false
		case k.Len == key.Len && k.Str() == key.Str():
			return xunsafe.ByteAdd[byte](p, xunsafe.Size[String]()), true
		}
		i = (i + 1) & m.mask
	}
}

// Get returns the value stored for key, or nil.
func (m *Map) Get(key string) *byte {
	if m == nil || m.len == 0 {
		return nil
	}
	i := uint32(fxhashString(key)) & m.mask
	for {
		p := m.slot(i)
		k := xunsafe.ByteLoad[String](p, 0)
		if k.Ptr == nil {
			return nil
		}
		if k.Len == len(key) && k.Str() == key {
			return xunsafe.ByteAdd[byte](p, xunsafe.Size[String]())
		}
		i = (i + 1) & m.mask
	}
}

// Range calls f for each entry until it returns false. Iteration order is
// unspecified.
func (m *Map) Range(f func(key string, val *byte) bool) {
	if m == nil {
		return
	}
	for i := uint32(0); i <= m.mask; i++ {
		p := m.slot(i)
		k := xunsafe.ByteLoad[String](p, 0)
		if k.Ptr == nil {
			continue
		}
		if !f(k.Str(), xunsafe.ByteAdd[byte](p, xunsafe.Size[String]())) {
			return
		}
	}
}

func (m *Map) grow(a *arena.Arena) {
	oldSlots, oldMask := m.slots, m.mask
	m.mask = (oldMask+1)*2 - 1
	m.slots = a.Alloc(int((m.mask + 1) * m.slotSize()))
	m.len = 0

	size := m.slotSize()
	for i := uint32(0); i <= oldMask; i++ {
		p := xunsafe.ByteAdd[byte](oldSlots, i*size)
		k := xunsafe.ByteLoad[String](p, 0)
		if k.Ptr == nil {
			continue
		}
		val, _ := m.Insert(a, k)
		xunsafe.Copy(val, xunsafe.ByteAdd[byte](p, xunsafe.Size[String]()), int(m.valSize))
	}
}

// fxhash is the hash from the Rust fxhash crate, as used by rustc.
// See <https://docs.rs/fxhash>.
func fxhash(b []byte) uint64 {
	h := fxword(0, uint64(len(b)))
	for len(b) >= 8 {
		h = fxword(h, xunsafe.LoadU64(b, 0))
		b = b[8:]
	}
	var last uint64
	for i := len(b) - 1; i >= 0; i-- {
		last = last<<8 | uint64(b[i])
	}
	if len(b) > 0 {
		h = fxword(h, last)
	}
	return h
}

func fxhashString(s string) uint64 {
	return fxhash(unsafeBytes(s))
}

func unsafeBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return xunsafe.Bytes(xunsafe.StringData(s), len(s))
}

func fxword(h, n uint64) uint64 {
	const (
		rotate = 5
		key    = 0x517cc1b727220a95
	)
	hi, lo := bits.Mul64(bits.RotateLeft64(h, rotate)^n, key)
	return lo ^ hi
}
