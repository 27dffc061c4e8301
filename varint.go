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
	"google.golang.org/protobuf/encoding/protowire"
)

// varintMode selects how a decoded unsigned value is reinterpreted.
type varintMode int

const (
	modeUint varintMode = iota // plain unsigned / two's-complement signed
	modeSint                   // zig-zag encoded signed
)

// varintWidth is the set of integer widths the codec supports. bits is used
// to compute both the maximum number of LEB128 groups and the overflow mask.
type varintWidth interface {
	~uint32 | ~uint64 | ~int32 | ~int64
}

func widthBits[T varintWidth]() uint {
	var z T
	switch any(z).(type) {
	case uint32, int32:
		return 32
	default:
		return 64
	}
}

// readULEB128 reads up to 10 groups (the most a 64-bit LEB128 value ever
// needs) from data starting at start, accumulating an unsigned value of
// width bits(T). It returns the value, the number of bytes consumed, and an
// error code (errCodeOK, errCodeTruncated, or errCodeOverflow). It never
// reads past the terminating byte (the first byte whose high bit is clear).
func readULEB128[T varintWidth](data []byte, start int) (value uint64, n int, code errCode) {
	bits := widthBits[T]()

	var shift uint
	var i int
	for {
		if start+i >= len(data) {
			return 0, i, errCodeTruncated
		}
		b := data[start+i]
		i++

		if shift < 64 {
			chunk := uint64(b & 0x7f)
			if shift == 63 && chunk > 1 {
				// Only bit 0 of this group fits in bit 63; anything else
				// would drop non-zero bits off the top of a uint64.
				return 0, i, errCodeOverflow
			}
			value |= chunk << shift
		} else if b&0x7f != 0 {
			// Accumulator is already full width; any further payload bit is
			// an overflow regardless of target width.
			return 0, i, errCodeOverflow
		}

		if b&0x80 == 0 {
			break
		}
		if i == 10 {
			// A tenth group that still sets its continuation bit would need
			// an eleventh, which no 64-bit value does.
			return 0, i, errCodeOverflow
		}

		shift += 7
	}

	if bits < 64 {
		mask := uint64(1)<<bits - 1
		if value&^mask != 0 {
			return 0, i, errCodeOverflow
		}
	}

	return value, i, errCodeOK
}

// readVarint128 decodes a single varint of width bits(T) at data[start:],
// applying the zig-zag transform when mode is modeSint. It returns the
// decoded value reinterpreted as T, the number of bytes consumed, and an
// error code.
func readVarint128[T varintWidth](data []byte, start int, mode varintMode) (value T, n int, code errCode) {
	raw, n, code := readULEB128[T](data, start)
	if code != errCodeOK {
		return 0, n, code
	}

	if mode == modeSint {
		switch widthBits[T]() {
		case 32:
			return T(int32(protowire.DecodeZigZag(raw & 0xffffffff))), n, errCodeOK
		default:
			return T(int64(protowire.DecodeZigZag(raw))), n, errCodeOK
		}
	}

	return T(raw), n, errCodeOK
}

// writeVarint128 appends value to dst as LEB128, applying the zig-zag
// transform first when mode is modeSint. It is the inverse of
// readVarint128 and is used only by tests exercising the wire scenarios in
// spec §8 (the encoder itself is out of scope).
func writeVarint128[T varintWidth](dst []byte, value T, mode varintMode) []byte {
	var u uint64
	if mode == modeSint {
		switch widthBits[T]() {
		case 32:
			u = protowire.EncodeZigZag(int64(int32(value)))
		default:
			u = protowire.EncodeZigZag(int64(value))
		}
	} else {
		switch widthBits[T]() {
		case 32:
			u = uint64(uint32(value))
		default:
			u = uint64(value)
		}
	}

	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}
