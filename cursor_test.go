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

func TestCursorReadKey(t *testing.T) {
	// Field 1, VARINT: key byte 0x08.
	c := newCursor([]byte{0x08, 0x96, 0x01}, nil)
	key, err := c.readKey()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), key.FieldID)
	assert.Equal(t, WireVarint, key.WireType)
	assert.Equal(t, 2, len(c.data))
}

func TestCursorReadKeyInvalidWireType(t *testing.T) {
	// Wire type 6 is unassigned.
	c := newCursor([]byte{0x06}, nil)
	_, err := c.readKey()
	assert.Error(t, err)
}

func TestCursorScanLengthPrefixedData(t *testing.T) {
	// "testing" string record payload, per spec.md §8.
	c := newCursor([]byte{0x07, 't', 'e', 's', 't', 'i', 'n', 'g'}, nil)
	prefixLen, payloadLen, err := c.scanLengthPrefixedData()
	require.NoError(t, err)
	assert.Equal(t, 1, prefixLen)
	assert.Equal(t, 7, payloadLen)
	assert.Equal(t, "testing", string(c.data[:payloadLen]))
}

func TestCursorScanLengthPrefixedDataTruncated(t *testing.T) {
	c := newCursor([]byte{0x05, 'a', 'b'}, nil)
	_, _, err := c.scanLengthPrefixedData()
	assert.Error(t, err)
}

func TestCursorFixedWidthReads(t *testing.T) {
	c := newCursor([]byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, nil)
	v32, err := c.readInt32()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v32)

	v64, err := c.readInt64()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v64)

	assert.True(t, c.atEOF())
}

func TestCursorFixedWidthTruncated(t *testing.T) {
	c := newCursor([]byte{0x01, 0x02, 0x03}, nil)
	_, err := c.readInt32()
	assert.Error(t, err)
}

func TestCursorBytesRead(t *testing.T) {
	c := newCursor([]byte{0x08, 0x96, 0x01}, nil)
	_, err := c.readKey()
	require.NoError(t, err)
	assert.Equal(t, 1, c.bytesRead())
}

func TestScanRejectsGroupWireType(t *testing.T) {
	// Field 1, SGROUP (wire type 3): key byte (1<<3)|3 = 0x0B. Groups pass
	// decodeKey's range check but scanPayload must still reject them, with
	// ErrInvalidType rather than the key-decoding error.
	desc := &MessageDescriptor{
		Magic:         MessageDescriptorMagic,
		Name:          "WithGroupWire",
		SizeofMessage: 1,
		Fields:        []FieldDescriptor{{Name: "field9", ID: 9, Label: LabelOptional, Type: TypeBool, Offset: 0}},
		FieldIDs:      []uint32{9},
	}
	c := newCursor([]byte{0x0B}, nil)
	_, _, err := scan(c, desc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	for _, k := range []Key{
		{WireType: WireVarint, FieldID: 1},
		{WireType: WireLen, FieldID: 15},
		{WireType: WireI32, FieldID: 1000},
		{WireType: WireI64, FieldID: 2},
	} {
		v := encodeKey(k)
		got, ok := decodeKey(v)
		require.True(t, ok)
		assert.Equal(t, k, got)
	}
}
