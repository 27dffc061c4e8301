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

import "google.golang.org/protobuf/encoding/protowire"

// WireType is one of the protobuf wire-format record kinds. Values line up
// with protowire's own constants so that key decoding can delegate the
// low 3 bits directly without a translation table.
type WireType uint8

const (
	WireVarint WireType = WireType(protowire.VarintType)
	WireI64    WireType = WireType(protowire.Fixed64Type)
	WireLen    WireType = WireType(protowire.BytesType)
	WireSGroup WireType = WireType(protowire.StartGroupType) // deprecated, unused
	WireEGroup WireType = WireType(protowire.EndGroupType)   // deprecated, unused
	WireI32    WireType = WireType(protowire.Fixed32Type)
)

// String implements fmt.Stringer.
func (w WireType) String() string {
	switch w {
	case WireVarint:
		return "VARINT"
	case WireI64:
		return "I64"
	case WireLen:
		return "LEN"
	case WireSGroup:
		return "SGROUP"
	case WireEGroup:
		return "EGROUP"
	case WireI32:
		return "I32"
	default:
		return "INVALID"
	}
}

// valid reports whether w is one of the six wire-alphabet values. Groups are
// valid wire-type bit patterns but are rejected downstream as unsupported.
func (w WireType) valid() bool {
	return w <= WireI32
}

// Key is the leading varint of a wire record, split into its wire type and
// field id.
type Key struct {
	WireType WireType
	FieldID  uint32
}

func decodeKey(v uint64) (Key, bool) {
	wt := WireType(v & 0x7)
	if !wt.valid() {
		return Key{}, false
	}
	return Key{WireType: wt, FieldID: uint32(v >> 3)}, true
}

func encodeKey(k Key) uint64 {
	return uint64(k.FieldID)<<3 | uint64(k.WireType)
}
