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

// Package format defines the token-level interface between compiled
// deserializers and a wire format.
//
// The compiler is generic over an [Adapter]: the same compiled control flow
// targets any self-describing format that can expose these primitives. All
// methods take the input buffer and a cursor and return the new cursor; they
// never retain the buffer.
package format

import (
	"github.com/hyperjson-io/hyperjson/internal/arena"
	"github.com/hyperjson-io/hyperjson/internal/rt"
)

// Adapter exposes token-level primitives for one wire format.
type Adapter interface {
	// MapBegin consumes the opening of a map-like container.
	MapBegin(src []byte, pos int) (int, rt.Code)

	// MapIsEnd reports whether the container ends at the cursor, consuming
	// the end token if so. The returned cursor has leading space skipped in
	// either case.
	MapIsEnd(src []byte, pos int) (int, bool, rt.Code)

	// MapNext consumes the separator between two entries. Called between
	// entries only, never before the first.
	MapNext(src []byte, pos int) (int, rt.Code)

	// MapReadKey parses an entry key. Keys normally alias the input buffer;
	// keys that needed unescaping are materialized on the arena.
	MapReadKey(src []byte, pos int, a *arena.Arena) (int, rt.String, rt.Code)

	// MapKVSep consumes the separator between a key and its value.
	MapKVSep(src []byte, pos int) (int, rt.Code)

	// SeqBegin, SeqIsEnd and SeqNext are the sequence-container analogues of
	// the map primitives.
	SeqBegin(src []byte, pos int) (int, rt.Code)
	SeqIsEnd(src []byte, pos int) (int, bool, rt.Code)
	SeqNext(src []byte, pos int) (int, rt.Code)

	// Scalar parsers.
	ParseBool(src []byte, pos int) (int, bool, rt.Code)
	ParseI64(src []byte, pos int) (int, int64, rt.Code)
	ParseU64(src []byte, pos int) (int, uint64, rt.Code)
	ParseF64(src []byte, pos int) (int, float64, rt.Code)
	ParseString(src []byte, pos int, a *arena.Arena) (int, rt.String, rt.Code)

	// PeekNull reports whether the next value is the null literal, without
	// consuming it.
	PeekNull(src []byte, pos int) bool

	// ConsumeNull consumes the null literal.
	ConsumeNull(src []byte, pos int) (int, rt.Code)

	// SkipValue consumes one value of any kind without interpreting it.
	SkipValue(src []byte, pos int) (int, rt.Code)
}

// EmptyProbes is an optional fast path: detecting empty containers with a
// cheap literal check, without a begin/is-end call pair. ok is false when the
// probe is inconclusive and the caller must take the general path.
type EmptyProbes interface {
	TryEmptySeq(src []byte, pos int) (npos int, empty, ok bool)
	TryEmptyMap(src []byte, pos int) (npos int, empty, ok bool)
}

// RawKeys is an optional capability of formats whose keys appear as literal
// `"key":` byte patterns in the input. The inline dispatch strategy matches
// those patterns with fixed-width loads instead of tokenizer calls, after
// skipping leading space via SkipSpace.
type RawKeys interface {
	SkipSpace(src []byte, pos int) int
}
