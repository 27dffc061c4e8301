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

import "testing"

// FuzzReadULEB128 checks that the varint reader never panics and never
// claims to have consumed more bytes than it was given, regardless of
// input, mirroring hyperpb's parse_fuzz_test.go approach of fuzzing the
// lowest-level decode primitive directly rather than full messages.
func FuzzReadULEB128(f *testing.F) {
	f.Add([]byte{0x96, 0x01})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02})
	f.Add([]byte{})
	f.Add([]byte{0x80})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, n, code := readULEB128[uint64](data, 0)
		if n > len(data) {
			t.Fatalf("readULEB128 consumed %d bytes from a %d-byte input", n, len(data))
		}
		if code == errCodeOK && n == 0 && len(data) > 0 {
			t.Fatalf("readULEB128 reported success but consumed 0 bytes")
		}
	})
}

// FuzzScan checks that scanning a message against a small fixed descriptor
// never panics, regardless of input, and always leaves the cursor at or
// before the end of the buffer.
func FuzzScan(f *testing.F) {
	f.Add([]byte{0x08, 0x96, 0x01})
	f.Add([]byte{0x08, 0x2A, 0x10, 0x07})
	f.Add([]byte{0x22, 0x06, 0x03, 0x8E, 0x02, 0x9E, 0xA7, 0x05})

	desc := &MessageDescriptor{
		Magic:         MessageDescriptorMagic,
		Name:          "Fuzzed",
		SizeofMessage: 4,
		Fields: []FieldDescriptor{
			{Name: "field1", ID: 1, Label: LabelOptional, Type: TypeInt32, Offset: 0},
		},
		FieldIDs: []uint32{1},
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		c := newCursor(data, nil)
		_, _, err := scan(c, desc)
		if err == nil && len(c.data) > len(data) {
			t.Fatalf("scan grew the remaining buffer")
		}
	})
}
