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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadULEB128_Scalar150(t *testing.T) {
	// spec.md §8's scalar int32 scenario: 0x96 0x01 is 150 as LEB128.
	v, n, code := readULEB128[uint64]([]byte{0x96, 0x01}, 0)
	require.Equal(t, errCodeOK, code)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(150), v)
}

func TestReadVarint128_ZigZag(t *testing.T) {
	// spec.md §8's zig-zag sint32 scenario: 0x03 decodes to -2.
	v, n, code := readVarint128[int32]([]byte{0x03}, 0, modeSint)
	require.Equal(t, errCodeOK, code)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(-2), v)
}

func TestReadULEB128_NegativeInt32SignExtends(t *testing.T) {
	// -2 as a plain (non-zigzag) int32 is wire-encoded as a full 10-byte
	// two's-complement varint; decoding it at 64-bit width and truncating
	// must round-trip, even though the raw value's upper 32 bits are all 1.
	var buf []byte
	buf = writeVarint128(buf, int64(-2), modeUint)
	require.Len(t, buf, 10)

	v, n, code := readVarint128[uint64](buf, 0, modeUint)
	require.Equal(t, errCodeOK, code)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, uint32(0xfffffffe), uint32(v))
}

func TestReadULEB128_Truncated(t *testing.T) {
	_, _, code := readULEB128[uint64]([]byte{0x96}, 0)
	assert.Equal(t, errCodeTruncated, code)
}

func TestReadULEB128_OverflowNarrowWidth(t *testing.T) {
	// Value 1<<32 does not fit in a uint32 target.
	var buf []byte
	buf = writeVarint128(buf, uint64(1)<<32, modeUint)

	_, _, code := readULEB128[uint32](buf, 0)
	assert.Equal(t, errCodeOverflow, code)
}

func TestReadULEB128_Overflow64Bit(t *testing.T) {
	// 10 bytes, all continuation bits set, final byte > 1: no 64-bit value
	// can hold this.
	data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02}
	_, _, code := readULEB128[uint64](data, 0)
	assert.Equal(t, errCodeOverflow, code)
}

func TestWriteReadVarint128_RoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 150, -2, 86942, 1<<33 - 1, -(1 << 40)}
	for _, want := range cases {
		var buf []byte
		buf = writeVarint128(buf, want, modeSint)

		got, n, code := readVarint128[int64](buf, 0, modeSint)
		require.Equal(t, errCodeOK, code)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, want, got)
	}
}

func TestWidthBits(t *testing.T) {
	assert.Equal(t, uint(32), widthBits[uint32]())
	assert.Equal(t, uint(32), widthBits[int32]())
	assert.Equal(t, uint(64), widthBits[uint64]())
	assert.Equal(t, uint(64), widthBits[int64]())
}
