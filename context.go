// Copyright 2020-2025 Buf Technologies, Inc.
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

package protodyn

import (
	"io"

	"github.com/protodyn/protodyn/arena"
	"github.com/protodyn/protodyn/internal/dbg"
)

// options collects the tunables a Context carries; Option mutates one field
// at a time so new knobs can be added without breaking callers, the pattern
// hyperpb's options.go uses for CompileOption.
type options struct {
	recursionLimit int
	alloc          arena.Allocator
	maxMessageSize int // 0 means unbounded
	trace          io.Writer
}

// Option configures a Context. Construct one with the With* functions below.
type Option struct {
	apply func(*options)
}

// WithRecursionLimit overrides the default nesting depth (100) a Context
// will follow into sub-messages before failing with ErrRecursionDepthExceeded.
func WithRecursionLimit(n int) Option {
	return Option{apply: func(o *options) { o.recursionLimit = n }}
}

// WithAllocator supplies the Allocator used for repeated-field backing
// storage of pointer-free element types. The zero value uses arena.Heap{}.
func WithAllocator(a arena.Allocator) Option {
	return Option{apply: func(o *options) { o.alloc = a }}
}

// WithMaxMessageSize rejects any top-level buffer longer than n bytes before
// scanning begins, bounding work spent on hostile oversized input. 0 (the
// default) leaves the buffer length unbounded.
func WithMaxMessageSize(n int) Option {
	return Option{apply: func(o *options) { o.maxMessageSize = n }}
}

// WithTrace turns on per-submessage tracing to w. Nothing is formatted
// unless a Context built with this option actually recurses into a nested
// message, so leaving it unset costs nothing on the hot path.
func WithTrace(w io.Writer) Option {
	return Option{apply: func(o *options) { o.trace = w }}
}

// Context holds the configuration shared by every Deserialize call made
// through it. A Context has no mutable state besides its options and may be
// reused concurrently across goroutines.
type Context struct {
	opts options
}

// NewContext builds a Context, applying opts over the defaults: a recursion
// limit of 100 and an arena.Heap{} allocator.
func NewContext(opts ...Option) *Context {
	o := options{
		recursionLimit: defaultRecursionLimit,
		alloc:          arena.Heap{},
	}
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Context{opts: o}
}

func (ctx *Context) recursionLimit() int {
	if ctx.opts.recursionLimit <= 0 {
		return defaultRecursionLimit
	}
	return ctx.opts.recursionLimit
}

// logf writes a trace line if tracing is enabled, and is a no-op otherwise;
// nothing is formatted until after the nil check on w, so the common
// untraced path pays for one nil check.
func (ctx *Context) logf(depth int, format string, args ...any) {
	w := ctx.opts.trace
	if w == nil {
		return
	}
	io.WriteString(w, dbg.Fprintf("depth=%d ", depth).String())
	io.WriteString(w, dbg.Fprintf(format, args...).String())
	io.WriteString(w, "\n")
}

func (ctx *Context) allocFunc() allocatorFunc {
	a := ctx.opts.alloc
	if a == nil {
		a = arena.Heap{}
	}
	return a.Alloc
}

// Deserialize decodes data against desc, allocating a fresh *Message on the
// heap. It is equivalent to DeserializeTo with a nil buf.
func (ctx *Context) Deserialize(desc *MessageDescriptor, data []byte) (*Message, error) {
	return ctx.DeserializeTo(desc, data, nil)
}

// DeserializeTo decodes data against desc into buf, the caller-allocated
// byte region spec.md §4.1 describes. buf must be at least
// desc.SizeofMessage bytes; pass nil to have the Context allocate one on the
// heap instead. The returned *Message is a thin header over buf (or the
// freshly allocated region) and remains valid only as long as both it and
// buf are reachable, per spec.md §5.
func (ctx *Context) DeserializeTo(desc *MessageDescriptor, data []byte, buf []byte) (*Message, error) {
	if ctx.opts.maxMessageSize > 0 && len(data) > ctx.opts.maxMessageSize {
		return nil, parseErr(errCodeInvalidData, 0)
	}

	c := newCursor(data, ctx.opts.alloc)

	m := &Message{}
	if err := deserializeInto(ctx, c, desc, m, buf); err != nil {
		return nil, err
	}

	members, t, err := scan(c, desc)
	if err != nil {
		return nil, err
	}
	if !c.atEOF() {
		return nil, c.fail(errCodeInvalidData)
	}
	if err := allocateRepeated(m, t, ctx.allocFunc()); err != nil {
		return nil, err
	}
	if err := parse(ctx, c, m, members); err != nil {
		return nil, err
	}

	return m, nil
}
