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

// Package debug includes debugging helpers.
//
// Tracing is gated by the HYPERJSON_DEBUG environment variable. When set, the
// compiler dumps its intermediate tables and decisions to stderr; the value is
// treated as a regexp that filters log lines. Diagnostic only, not part of the
// functional contract.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/timandy/routine"
)

// Enabled is true if the HYPERJSON_DEBUG environment variable is set.
var Enabled bool

var pattern *regexp.Regexp

func init() {
	v, ok := os.LookupEnv("HYPERJSON_DEBUG")
	if !ok {
		return
	}
	Enabled = true
	if v != "" && v != "1" {
		pattern, _ = regexp.Compile(v)
	}
}

// Log prints debugging information to stderr.
//
// context is optional args for fmt.Printf that are printed before operation,
// identifying the set of operations a line belongs to (usually a compiler
// pointer).
func Log(context []any, operation, format string, args ...any) {
	if !Enabled {
		return
	}

	// Determine the file which called us.
	skip := 1
again:
	pc, file, line, _ := runtime.Caller(skip)
	fn := runtime.FuncForPC(pc)
	name := fn.Name()
	name = name[strings.LastIndex(name, ".")+1:]
	if strings.HasPrefix(name, "log") || strings.Contains(name, "Log") {
		skip++
		goto again
	}

	buf := new(strings.Builder)
	_, _ = fmt.Fprintf(buf, "%s:%d [g%04d", filepath.Base(file), line, routine.Goid())
	if len(context) >= 1 {
		_, _ = fmt.Fprintf(buf, ", "+context[0].(string), context[1:]...)
	}
	_, _ = fmt.Fprintf(buf, "] %s: ", operation)
	_, _ = fmt.Fprintf(buf, format, args...)

	if pattern != nil && !pattern.MatchString(buf.String()) {
		return
	}

	_, _ = buf.Write([]byte{'\n'})
	_, _ = os.Stderr.WriteString(buf.String())
}

// Assert panics if cond is false, but only when tracing is enabled.
func Assert(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(fmt.Errorf("hyperjson: internal assertion failed: "+format, args...))
	}
}

// Formatter wraps a function to implement [fmt.Formatter].
type Formatter func(fmt.State)

// Format implements [fmt.Formatter].
func (f Formatter) Format(s fmt.State, _ rune) { f(s) }
