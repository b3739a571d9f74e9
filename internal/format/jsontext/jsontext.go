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

// Package jsontext implements the format adapter for JSON text.
//
// The scanner is byte-oriented and allocation-free on the hot paths: keys and
// string values alias the input buffer unless they contain escapes, in which
// case they are unescaped onto the parse arena.
package jsontext

import (
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/hyperjson-io/hyperjson/internal/arena"
	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/internal/xunsafe"
)

// skipDepthLimit bounds SkipValue recursion on adversarial inputs.
const skipDepthLimit = 1024

// Adapter is the JSON format adapter. The zero value is ready to use.
type Adapter struct{}

// New returns the JSON adapter.
func New() *Adapter { return &Adapter{} }

// SkipSpace implements [format.RawKeys]: JSON keys appear as literal `"key":`
// patterns once whitespace is skipped.
func (*Adapter) SkipSpace(src []byte, pos int) int {
	return skip(src, pos)
}

func skip(src []byte, pos int) int {
	for pos < len(src) {
		switch src[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func expect(src []byte, pos int, c byte) (int, rt.Code) {
	pos = skip(src, pos)
	if pos >= len(src) {
		return pos, rt.ErrTruncated
	}
	if src[pos] != c {
		return pos, rt.ErrSyntax
	}
	return pos + 1, rt.Ok
}

// MapBegin consumes `{`.
func (*Adapter) MapBegin(src []byte, pos int) (int, rt.Code) {
	return expect(src, pos, '{')
}

// MapIsEnd consumes `}` if the object ends here.
func (*Adapter) MapIsEnd(src []byte, pos int) (int, bool, rt.Code) {
	pos = skip(src, pos)
	if pos >= len(src) {
		return pos, false, rt.ErrTruncated
	}
	if src[pos] == '}' {
		return pos + 1, true, rt.Ok
	}
	return pos, false, rt.Ok
}

// MapNext consumes the `,` between two entries.
func (*Adapter) MapNext(src []byte, pos int) (int, rt.Code) {
	return expect(src, pos, ',')
}

// MapKVSep consumes the `:` between a key and its value.
func (*Adapter) MapKVSep(src []byte, pos int) (int, rt.Code) {
	return expect(src, pos, ':')
}

// MapReadKey parses an object key.
func (a *Adapter) MapReadKey(src []byte, pos int, ar *arena.Arena) (int, rt.String, rt.Code) {
	return a.ParseString(src, pos, ar)
}

// SeqBegin consumes `[`.
func (*Adapter) SeqBegin(src []byte, pos int) (int, rt.Code) {
	return expect(src, pos, '[')
}

// SeqIsEnd consumes `]` if the array ends here.
func (*Adapter) SeqIsEnd(src []byte, pos int) (int, bool, rt.Code) {
	pos = skip(src, pos)
	if pos >= len(src) {
		return pos, false, rt.ErrTruncated
	}
	if src[pos] == ']' {
		return pos + 1, true, rt.Ok
	}
	return pos, false, rt.Ok
}

// SeqNext consumes the `,` between two elements.
func (*Adapter) SeqNext(src []byte, pos int) (int, rt.Code) {
	return expect(src, pos, ',')
}

// TryEmptyMap implements the empty-container probe for `{}`.
func (*Adapter) TryEmptyMap(src []byte, pos int) (int, bool, bool) {
	return tryEmpty(src, pos, '{', '}')
}

// TryEmptySeq implements the empty-container probe for `[]`.
func (*Adapter) TryEmptySeq(src []byte, pos int) (int, bool, bool) {
	return tryEmpty(src, pos, '[', ']')
}

func tryEmpty(src []byte, pos int, open, close byte) (int, bool, bool) {
	pos = skip(src, pos)
	if pos+1 < len(src) && src[pos] == open && src[pos+1] == close {
		return pos + 2, true, true
	}
	// Tolerate space between the brackets; anything else is not empty.
	i := skip(src, pos+1)
	if pos < len(src) && src[pos] == open && i < len(src) && src[i] == close {
		return i + 1, true, true
	}
	return pos, false, true
}

// ParseBool parses `true` or `false`.
func (*Adapter) ParseBool(src []byte, pos int) (int, bool, rt.Code) {
	pos = skip(src, pos)
	switch {
	case hasLiteral(src, pos, "true"):
		return pos + 4, true, rt.Ok
	case hasLiteral(src, pos, "false"):
		return pos + 5, false, rt.Ok
	case pos >= len(src):
		return pos, false, rt.ErrTruncated
	default:
		return pos, false, rt.ErrExpectedBool
	}
}

// PeekNull reports whether the next value is `null`.
func (*Adapter) PeekNull(src []byte, pos int) bool {
	return hasLiteral(src, skip(src, pos), "null")
}

// ConsumeNull consumes `null`.
func (*Adapter) ConsumeNull(src []byte, pos int) (int, rt.Code) {
	pos = skip(src, pos)
	if !hasLiteral(src, pos, "null") {
		if pos >= len(src) {
			return pos, rt.ErrTruncated
		}
		return pos, rt.ErrExpectedNull
	}
	return pos + 4, rt.Ok
}

func hasLiteral(src []byte, pos int, lit string) bool {
	return len(src)-pos >= len(lit) && string(src[pos:pos+len(lit)]) == lit
}

// ParseI64 parses a signed integer. Fractions and exponents are rejected.
func (*Adapter) ParseI64(src []byte, pos int) (int, int64, rt.Code) {
	pos, u, neg, ec := parseUint(src, pos, true)
	if ec != rt.Ok {
		return pos, 0, ec
	}
	if neg {
		if u > 1<<63 {
			return pos, 0, rt.ErrNumberRange
		}
		return pos, -int64(u), rt.Ok
	}
	if u > 1<<63-1 {
		return pos, 0, rt.ErrNumberRange
	}
	return pos, int64(u), rt.Ok
}

// ParseU64 parses an unsigned integer.
func (*Adapter) ParseU64(src []byte, pos int) (int, uint64, rt.Code) {
	pos, u, neg, ec := parseUint(src, pos, false)
	if ec != rt.Ok {
		return pos, 0, ec
	}
	_ = neg
	return pos, u, rt.Ok
}

func parseUint(src []byte, pos int, allowNeg bool) (int, uint64, bool, rt.Code) {
	pos = skip(src, pos)
	if pos >= len(src) {
		return pos, 0, false, rt.ErrTruncated
	}

	neg := false
	if src[pos] == '-' {
		if !allowNeg {
			return pos, 0, false, rt.ErrNumberRange
		}
		neg = true
		pos++
	}

	start := pos
	var u uint64
	for pos < len(src) && src[pos] >= '0' && src[pos] <= '9' {
		d := uint64(src[pos] - '0')
		if u > (1<<64-1-d)/10 {
			return pos, 0, false, rt.ErrNumberRange
		}
		u = u*10 + d
		pos++
	}
	if pos == start {
		return pos, 0, false, rt.ErrExpectedNumber
	}
	if pos < len(src) && (src[pos] == '.' || src[pos] == 'e' || src[pos] == 'E') {
		return pos, 0, false, rt.ErrExpectedNumber
	}
	return pos, u, neg, rt.Ok
}

// ParseF64 parses a floating-point number.
func (*Adapter) ParseF64(src []byte, pos int) (int, float64, rt.Code) {
	pos = skip(src, pos)
	end := scanNumber(src, pos)
	if end == pos {
		if pos >= len(src) {
			return pos, 0, rt.ErrTruncated
		}
		return pos, 0, rt.ErrExpectedNumber
	}

	v, err := strconv.ParseFloat(xunsafe.String(&src[pos], end-pos), 64)
	if err != nil {
		return pos, 0, rt.ErrExpectedNumber
	}
	return end, v, rt.Ok
}

func scanNumber(src []byte, pos int) int {
	i := pos
	if i < len(src) && src[i] == '-' {
		i++
	}
	digits := func() bool {
		start := i
		for i < len(src) && src[i] >= '0' && src[i] <= '9' {
			i++
		}
		return i > start
	}
	if !digits() {
		return pos
	}
	if i < len(src) && src[i] == '.' {
		i++
		if !digits() {
			return pos
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		i++
		if i < len(src) && (src[i] == '+' || src[i] == '-') {
			i++
		}
		if !digits() {
			return pos
		}
	}
	return i
}

// ParseString parses a string value. The result aliases src when the string
// has no escapes, and is otherwise unescaped onto the arena.
func (*Adapter) ParseString(src []byte, pos int, ar *arena.Arena) (int, rt.String, rt.Code) {
	pos = skip(src, pos)
	if pos >= len(src) {
		return pos, rt.String{}, rt.ErrTruncated
	}
	if src[pos] != '"' {
		return pos, rt.String{}, rt.ErrExpectedString
	}
	pos++

	// Fast path: no escapes.
	i := pos
	for i < len(src) {
		c := src[i]
		if c == '"' {
			s := rt.String{Len: i - pos}
			if s.Len > 0 {
				s.Ptr = &src[pos]
			} else {
				s.Ptr = emptyString
			}
			return i + 1, s, rt.Ok
		}
		if c == '\\' {
			return unescape(src, pos, i, ar)
		}
		if c < 0x20 {
			return i, rt.String{}, rt.ErrSyntax
		}
		i++
	}
	return i, rt.String{}, rt.ErrTruncated
}

// emptyString gives zero-length aliased strings a stable non-nil pointer, so
// that a present empty string is distinguishable from a nil header.
var emptyString = new(byte)

func unescape(src []byte, start, firstEsc int, ar *arena.Arena) (int, rt.String, rt.Code) {
	buf := append(make([]byte, 0, 2*(firstEsc-start)+16), src[start:firstEsc]...)
	i := firstEsc
	for i < len(src) {
		c := src[i]
		switch {
		case c == '"':
			if ar == nil {
				// Skip-only caller; no materialization wanted.
				return i + 1, rt.String{}, rt.Ok
			}
			p := ar.Bytes(buf)
			if len(buf) == 0 {
				p = emptyString
			}
			return i + 1, rt.String{Ptr: p, Len: len(buf)}, rt.Ok

		case c == '\\':
			i++
			if i >= len(src) {
				return i, rt.String{}, rt.ErrTruncated
			}
			switch src[i] {
			case '"', '\\', '/':
				buf = append(buf, src[i])
				i++
			case 'b':
				buf = append(buf, '\b')
				i++
			case 'f':
				buf = append(buf, '\f')
				i++
			case 'n':
				buf = append(buf, '\n')
				i++
			case 'r':
				buf = append(buf, '\r')
				i++
			case 't':
				buf = append(buf, '\t')
				i++
			case 'u':
				r, n, ok := hexRune(src, i+1)
				if !ok {
					return i, rt.String{}, rt.ErrSyntax
				}
				i += n + 1
				if utf16.IsSurrogate(r) {
					if i+1 < len(src) && src[i] == '\\' && src[i+1] == 'u' {
						r2, n2, ok := hexRune(src, i+2)
						if ok {
							if c := utf16.DecodeRune(r, r2); c != utf8.RuneError {
								r = c
								i += n2 + 2
							}
						}
					}
					if utf16.IsSurrogate(r) {
						r = utf8.RuneError
					}
				}
				buf = utf8.AppendRune(buf, r)
			default:
				return i, rt.String{}, rt.ErrSyntax
			}

		case c < 0x20:
			return i, rt.String{}, rt.ErrSyntax

		default:
			buf = append(buf, c)
			i++
		}
	}
	return i, rt.String{}, rt.ErrTruncated
}

func hexRune(src []byte, pos int) (rune, int, bool) {
	if pos+4 > len(src) {
		return 0, 0, false
	}
	var r rune
	for _, c := range src[pos : pos+4] {
		r <<= 4
		switch {
		case c >= '0' && c <= '9':
			r |= rune(c - '0')
		case c >= 'a' && c <= 'f':
			r |= rune(c-'a') + 10
		case c >= 'A' && c <= 'F':
			r |= rune(c-'A') + 10
		default:
			return 0, 0, false
		}
	}
	return r, 4, true
}

// SkipValue consumes one JSON value of any kind.
func (a *Adapter) SkipValue(src []byte, pos int) (int, rt.Code) {
	return a.skipValue(src, pos, 0)
}

func (a *Adapter) skipValue(src []byte, pos, depth int) (int, rt.Code) {
	if depth >= skipDepthLimit {
		return pos, rt.ErrDepthLimit
	}
	pos = skip(src, pos)
	if pos >= len(src) {
		return pos, rt.ErrTruncated
	}

	switch c := src[pos]; {
	case c == '{':
		return a.skipContainer(src, pos+1, depth, '}', true)
	case c == '[':
		return a.skipContainer(src, pos+1, depth, ']', false)
	case c == '"':
		npos, _, ec := a.ParseString(src, pos, nil)
		return npos, ec
	case c == 't':
		if hasLiteral(src, pos, "true") {
			return pos + 4, rt.Ok
		}
	case c == 'f':
		if hasLiteral(src, pos, "false") {
			return pos + 5, rt.Ok
		}
	case c == 'n':
		if hasLiteral(src, pos, "null") {
			return pos + 4, rt.Ok
		}
	case c == '-' || (c >= '0' && c <= '9'):
		end := scanNumber(src, pos)
		if end > pos {
			return end, rt.Ok
		}
	}
	return pos, rt.ErrSyntax
}

func (a *Adapter) skipContainer(src []byte, pos, depth int, close byte, keyed bool) (int, rt.Code) {
	first := true
	for {
		pos = skip(src, pos)
		if pos >= len(src) {
			return pos, rt.ErrTruncated
		}
		if src[pos] == close {
			return pos + 1, rt.Ok
		}
		if !first {
			if src[pos] != ',' {
				return pos, rt.ErrSyntax
			}
			pos = skip(src, pos+1)
		}
		first = false

		if keyed {
			var ec rt.Code
			pos, _, ec = a.ParseString(src, pos, nil)
			if ec != rt.Ok {
				return pos, ec
			}
			pos = skip(src, pos)
			if pos >= len(src) || src[pos] != ':' {
				return pos, rt.ErrSyntax
			}
			pos++
		}

		var ec rt.Code
		pos, ec = a.skipValue(src, pos, depth+1)
		if ec != rt.Ok {
			return pos, ec
		}
	}
}
