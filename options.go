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
	"github.com/hyperjson-io/hyperjson/internal/format"
	"github.com/hyperjson-io/hyperjson/internal/rt"
)

type compileConfig struct {
	adapter format.Adapter
	helpers *rt.Helpers
}

// CompileOption configures [Compile].
type CompileOption func(*compileConfig)

// WithAdapter compiles against a different token-stream format. The default
// is JSON.
//
// Formats additionally implementing the empty-probe or raw-key capabilities
// get the corresponding fast paths; see [format.Adapter].
func WithAdapter(ad format.Adapter) CompileOption {
	return func(cfg *compileConfig) { cfg.adapter = ad }
}

// WithHelpers substitutes the runtime helper table compiled code calls into.
// Intended for tests that instrument the generated code's memory operations.
func WithHelpers(h *rt.Helpers) CompileOption {
	return func(cfg *compileConfig) { cfg.helpers = h }
}
