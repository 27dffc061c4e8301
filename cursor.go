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
	"encoding/binary"
	"math"

	"github.com/protodyn/protodyn/arena"
)

// cursor is an advancing view over a byte slice. It never copies the
// underlying buffer; reads slice into it. A cursor tracks the offset of
// data relative to dataStart purely for error reporting (ParseError.Offset).
type cursor struct {
	data      []byte
	dataStart []byte
	alloc     arena.Allocator
	depth     int // current message nesting depth, for the recursion limit
}

func newCursor(data []byte, alloc arena.Allocator) *cursor {
	return &cursor{data: data, dataStart: data, alloc: alloc}
}

// bytesRead returns the number of bytes consumed so far, relative to the
// buffer this cursor was created over (for a child cursor, its own slice,
// not the parent's buffer).
func (c *cursor) bytesRead() int {
	return len(c.dataStart) - len(c.data)
}

func (c *cursor) fail(code errCode) *ParseError {
	return parseErr(code, c.bytesRead())
}

// withData derives a child cursor over slice, sharing the allocator and
// starting from a copy of the parent's recursion depth. Used for nested
// messages.
func (c *cursor) withData(slice []byte) *cursor {
	return &cursor{data: slice, dataStart: slice, alloc: c.alloc, depth: c.depth}
}

// skip advances past n bytes without reading them.
func (c *cursor) skip(n int) error {
	if n > len(c.data) {
		return c.fail(errCodeTruncated)
	}
	c.data = c.data[n:]
	return nil
}

// readKey decodes a varint as unsigned, splitting it into wire type and
// field id.
func (c *cursor) readKey() (Key, error) {
	v, n, code := readULEB128[uint64](c.data, 0)
	if code != errCodeOK {
		return Key{}, c.fail(code)
	}
	k, ok := decodeKey(v)
	if !ok {
		return Key{}, c.fail(errCodeInvalidKey)
	}
	c.data = c.data[n:]
	return k, nil
}

// readCursorVarint reads a single varint of width bits(T), applying zig-zag
// decoding when mode is modeSint.
func readCursorVarint[T varintWidth](c *cursor, mode varintMode) (T, error) {
	v, n, code := readVarint128[T](c.data, 0, mode)
	if code != errCodeOK {
		return 0, c.fail(code)
	}
	c.data = c.data[n:]
	return v, nil
}

// readInt32 reads a 4-byte little-endian fixed-width value.
func (c *cursor) readInt32() (uint32, error) {
	if len(c.data) < 4 {
		return 0, c.fail(errCodeInvalidData)
	}
	v := binary.LittleEndian.Uint32(c.data)
	c.data = c.data[4:]
	return v, nil
}

// readInt64 reads an 8-byte little-endian fixed-width value.
func (c *cursor) readInt64() (uint64, error) {
	if len(c.data) < 8 {
		return 0, c.fail(errCodeInvalidData)
	}
	v := binary.LittleEndian.Uint64(c.data)
	c.data = c.data[8:]
	return v, nil
}

func (c *cursor) readFloat32() (float32, error) {
	v, err := c.readInt32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (c *cursor) readFloat64() (float64, error) {
	v, err := c.readInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// readBool reads a single byte; any non-zero byte is true.
func (c *cursor) readBool() (bool, error) {
	if len(c.data) < 1 {
		return false, c.fail(errCodeInvalidData)
	}
	v := c.data[0] != 0
	c.data = c.data[1:]
	return v, nil
}

// scanLengthPrefixedData reads a length varint and returns the number of
// prefix bytes consumed and the payload length. The cursor is left
// positioned at the start of the payload; it is the caller's responsibility
// to advance past it (via skip or by taking a sub-slice and discarding).
func (c *cursor) scanLengthPrefixedData() (prefixLen int, payloadLen int, err error) {
	v, n, code := readULEB128[uint64](c.data, 0)
	if code != errCodeOK {
		return 0, 0, c.fail(code)
	}
	if v > uint64(len(c.data)-n) {
		return 0, 0, c.fail(errCodeInvalidData)
	}
	c.data = c.data[n:]
	return n, int(v), nil
}

// atEOF reports whether the cursor has no remaining bytes.
func (c *cursor) atEOF() bool {
	return len(c.data) == 0
}
