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
	"github.com/hyperjson-io/hyperjson/internal/format"
	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
)

// Strategy selection thresholds. Empirically tuned; a suboptimal choice
// costs speed, never correctness.
const (
	// Tables below this size use inline or linear matching.
	smallTableSize = 10

	// The inline matcher covers `"key":` patterns of up to two 8-byte
	// windows, so keys of up to this many characters.
	inlineKeyMax = 13

	// Wide (8-byte) prefixes are used when they are unique for more than
	// 3/4 of the keys that are long enough to have one.
	prefixUniqueNum = 3
	prefixUniqueDen = 4
)

type targetKind uint8

const (
	targetField targetKind = iota
	targetVariant
)

type target struct {
	kind targetKind
	idx  int32
}

type entry struct {
	key string
	t   target
}

type strategy uint8

const (
	strategyInline strategy = iota
	strategyLinear
	strategyPrefix
)

func (s strategy) String() string {
	return [...]string{"inline", "linear", "prefix"}[s]
}

// dispatch matches an observed key against a compiled table.
type dispatch struct {
	strategy strategy
	entries  []entry

	// Inline matching: per-entry masked `"key":` windows, tried against the
	// raw input before any tokenizer call. Parallel to entries.
	inline []inlineKey

	// Linear matching: per-entry packed key words for keys of up to 8 bytes.
	// Parallel to entries. Also the fallback once an inline probe misses.
	linear []linearKey

	// Prefix dispatch: jump table from the integer-packed key prefix to the
	// chain of entries sharing it.
	prefix      map[uint64][]int32
	prefixWidth int
}

type inlineKey struct {
	pat [2]uint64
	msk [2]uint64
	n   int // Bytes matched: len(key) + quotes + colon.
}

type linearKey struct {
	word  uint64
	short bool // Key packs into a single word.
}

// buildDispatch chooses a strategy for the table. raw is whether the format
// supports matching keys as literal byte patterns.
func buildDispatch(entries []entry, raw bool) *dispatch {
	d := &dispatch{entries: entries}

	maxLen := 0
	for i := range entries {
		maxLen = max(maxLen, len(entries[i].key))
	}

	d.linear = make([]linearKey, len(entries))
	for i := range entries {
		k := entries[i].key
		if len(k) <= 8 {
			d.linear[i] = linearKey{word: packKey(k), short: true}
		}
	}

	if len(entries) < smallTableSize {
		if raw && maxLen <= inlineKeyMax {
			d.strategy = strategyInline
			d.inline = make([]inlineKey, len(entries))
			for i := range entries {
				d.inline[i] = makeInlineKey(entries[i].key)
			}
		} else {
			d.strategy = strategyLinear
		}
		return d
	}

	width := pickPrefixWidth(entries)
	if width == 0 {
		d.strategy = strategyLinear
		return d
	}

	table := make(map[uint64][]int32, len(entries))
	for i := range entries {
		p := packPrefix(entries[i].key, width)
		table[p] = append(table[p], int32(i))
	}
	// Dispersion check: unique prefixes must exceed half the entry count,
	// else scanning the chains is no better than a linear scan.
	if len(table) <= len(entries)/2 {
		d.strategy = strategyLinear
		return d
	}

	d.strategy = strategyPrefix
	d.prefix = table
	d.prefixWidth = width
	return d
}

func pickPrefixWidth(entries []entry) int {
	maxLen := 0
	long, uniq8 := 0, map[uint64]struct{}{}
	for i := range entries {
		k := entries[i].key
		maxLen = max(maxLen, len(k))
		if len(k) >= 8 {
			long++
			uniq8[packPrefix(k, 8)] = struct{}{}
		}
	}
	if maxLen == 0 {
		return 0
	}
	if long > 0 && len(uniq8)*prefixUniqueDen > long*prefixUniqueNum {
		return 8
	}
	return 4
}

// packKey packs up to 8 key bytes into a little-endian word.
func packKey(k string) uint64 {
	var w uint64
	for i := 0; i < len(k); i++ {
		w |= uint64(k[i]) << (8 * i)
	}
	return w
}

// packPrefix packs the first min(width, len) bytes of k, zero-padded.
func packPrefix(k string, width int) uint64 {
	if len(k) > width {
		k = k[:width]
	}
	return packKey(k)
}

func packKeyBytes(p *byte, n int) uint64 {
	var w uint64
	for i := 0; i < n; i++ {
		w |= uint64(xunsafe.ByteLoad[byte](p, i)) << (8 * i)
	}
	return w
}

func makeInlineKey(key string) inlineKey {
	var b, m [16]byte
	b[0] = '"'
	copy(b[1:], key)
	b[len(key)+1] = '"'
	b[len(key)+2] = ':'
	n := len(key) + 3
	for i := 0; i < n; i++ {
		m[i] = 0xff
	}
	return inlineKey{
		pat: [2]uint64{xunsafe.LoadU64(b[:], 0), xunsafe.LoadU64(b[:], 8)},
		msk: [2]uint64{xunsafe.LoadU64(m[:], 0), xunsafe.LoadU64(m[:], 8)},
		n:   n,
	}
}

// matchInline attempts to match a `"key":` pattern directly against the
// input, in table order.  On a hit the returned cursor sits past the
// key/value separator. A miss is not an error; the caller reparses the key
// generically.
func (d *dispatch) matchInline(raw format.RawKeys, src []byte, pos int) (int, target, bool) {
	pos = raw.SkipSpace(src, pos)
	if pos+16 > len(src) {
		// Not enough bytes for two full windows; near the end of the buffer
		// the generic path is fine.
		return pos, target{}, false
	}
	w0 := xunsafe.LoadU64(src, pos)
	w1 := xunsafe.LoadU64(src, pos+8)
	for i := range d.inline {
		k := &d.inline[i]
		if w0&k.msk[0] == k.pat[0] && w1&k.msk[1] == k.pat[1] {
			return pos + k.n, d.entries[i].t, true
		}
	}
	return pos, target{}, false
}

// matchKey routes a generically parsed key through the table.
func (d *dispatch) matchKey(key rt.String) (target, bool) {
	if d.strategy == strategyPrefix {
		n := min(key.Len, d.prefixWidth)
		for _, i := range d.prefix[packKeyBytes(key.Ptr, n)] {
			e := &d.entries[i]
			if len(e.key) == key.Len && e.key == key.Str() {
				return e.t, true
			}
		}
		return target{}, false
	}

	// Linear scan: length first, then content; single masked word for short
	// keys, byte comparison otherwise.
	var kw uint64
	if key.Len <= 8 {
		kw = packKeyBytes(key.Ptr, key.Len)
	}
	for i := range d.entries {
		e := &d.entries[i]
		if len(e.key) != key.Len {
			continue
		}
		if d.linear[i].short {
			if d.linear[i].word == kw {
				return e.t, true
			}
			continue
		}
		if e.key == key.Str() {
			return e.t, true
		}
	}
	return target{}, false
}

// matchTag is the linear-match technique over a standalone union's variant
// tags.
func matchTag(tags []string, key rt.String) (int, bool) {
	for i, t := range tags {
		if len(t) == key.Len && t == key.Str() {
			return i, true
		}
	}
	return 0, false
}
