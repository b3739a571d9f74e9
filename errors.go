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
	"errors"
	"fmt"
	"io"

	"github.com/hyperjson-io/hyperjson/internal/rt"
	"github.com/hyperjson-io/hyperjson/internal/sdc"
)

// ErrUnsupported marks a compile-time fallback verdict: the shape is legal,
// but this compiler cannot build a deserializer for it and the caller should
// use an interpreted path instead. Returned errors wrap it; test with
// [errors.Is].
var ErrUnsupported = sdc.ErrUnsupported

// Sentinel parse failures. A [ParseError] unwraps to exactly one of these.
var (
	ErrSyntax          = errors.New("malformed syntax")
	ErrExpectedString  = errors.New("expected string")
	ErrExpectedNumber  = errors.New("expected number")
	ErrExpectedBool    = errors.New("expected bool")
	ErrExpectedNull    = errors.New("expected null")
	ErrNumberRange     = errors.New("number out of range")
	ErrMissingRequired = errors.New("missing required field")
	ErrDuplicateTag    = errors.New("duplicate union tag")
	ErrUnknownTag      = errors.New("unknown union tag")
	ErrEmptyUnion      = errors.New("empty union object")
	ErrMultiKeyUnion   = errors.New("union object with more than one key")
	ErrDepthLimit      = errors.New("nesting depth limit exceeded")
)

var codeErrors = [...]error{
	rt.ErrTruncated:            io.ErrUnexpectedEOF,
	rt.ErrSyntax:               ErrSyntax,
	rt.ErrExpectedString:       ErrExpectedString,
	rt.ErrExpectedNumber:       ErrExpectedNumber,
	rt.ErrExpectedBool:         ErrExpectedBool,
	rt.ErrExpectedNull:         ErrExpectedNull,
	rt.ErrNumberRange:          ErrNumberRange,
	rt.ErrMissingRequiredField: ErrMissingRequired,
	rt.ErrDuplicateUnionTag:    ErrDuplicateTag,
	rt.ErrUnknownUnionTag:      ErrUnknownTag,
	rt.ErrEmptyUnionObject:     ErrEmptyUnion,
	rt.ErrMultiKeyUnionObject:  ErrMultiKeyUnion,
	rt.ErrDepthLimit:           ErrDepthLimit,
}

// ParseError is a parse failure decoded from the scratch buffer: what went
// wrong and the byte offset the deserializer stopped at.
type ParseError struct {
	code   rt.Code
	offset int
}

// Offset returns the byte offset in the input at which the failure was
// detected.
func (e *ParseError) Offset() int { return e.offset }

func (e *ParseError) Error() string {
	return fmt.Sprintf("hyperjson: %v at offset %d", e.code, e.offset)
}

// Unwrap resolves the error code to its sentinel.
func (e *ParseError) Unwrap() error {
	if int(e.code) < len(codeErrors) {
		return codeErrors[e.code]
	}
	return nil
}
