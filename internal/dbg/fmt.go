// Copyright 2025 Buf Technologies, Inc.
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

// Package dbg provides lazy formatting for the decoder's optional trace
// hook (see WithTrace in the root package): building a trace line is often
// more expensive than the trace call itself, so tracing must not cost
// anything unless a caller actually consumes the formatted output.
package dbg

import "fmt"

// Formatter is a fmt.Formatter that defers work to a closure, so a trace
// call can build its arguments eagerly while the expensive %v rendering
// only happens if something actually formats the value.
type Formatter func(s fmt.State)

// Format implements fmt.Formatter.
func (f Formatter) Format(s fmt.State, verb rune) {
	if verb != 'v' {
		fmt.Fprintf(s, "%%%c(unsupported)", verb)
		return
	}
	f(s)
}

func (f Formatter) String() string { return fmt.Sprint(f) }

// Fprintf is like fmt.Sprintf, but the formatting work is deferred until
// the returned value is itself formatted with %v.
func Fprintf(format string, args ...any) Formatter {
	return Formatter(func(s fmt.State) { fmt.Fprintf(s, format, args...) })
}

// Field pretty-prints a single scanned-field trace entry as "name=value".
func Field(name string, value any) Formatter {
	return Formatter(func(s fmt.State) { fmt.Fprintf(s, "%s=%v", name, value) })
}
