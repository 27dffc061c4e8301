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

// scannedMember is the transient record the first pass produces for every
// wire record it sees: spec.md §3's ScannedMember.
type scannedMember struct {
	key       Key
	field     *FieldDescriptor // nil for an unknown field
	fieldIdx  int              // valid iff field != nil
	data      []byte           // the payload, excluding the key
	prefixLen int              // bytes of length-prefix, LEN-framed records only
}

// tally accumulates per-field element counts and the unknown-field count
// produced by a scan; the allocator pass consumes it directly.
type tally struct {
	counts  []int // parallel to desc.Fields, valid for REPEATED fields
	unknown int
}

// scan performs spec.md §4.4's first pass: it walks c once, resolving every
// key against desc, and returns the ordered scanned members plus the tally
// the allocator pass needs. c is left at EOF on success; the caller (i.e.
// the Context) asserts c.atEOF().
func scan(c *cursor, desc *MessageDescriptor) ([]scannedMember, *tally, error) {
	var members []scannedMember
	t := &tally{counts: make([]int, len(desc.Fields))}

	lastIdx := -1

	for !c.atEOF() {
		key, err := c.readKey()
		if err != nil {
			return nil, nil, err
		}

		var (
			field    *FieldDescriptor
			fieldIdx = -1
		)
		if lastIdx >= 0 && desc.Fields[lastIdx].ID == key.FieldID {
			// Proto encoders typically emit fields in ascending, descriptor
			// order; re-checking the last match first avoids a lookup on
			// the common path of repeated fields or adjacent singular ones.
			field, fieldIdx = &desc.Fields[lastIdx], lastIdx
		} else if idx, ok := intRangeLookup(desc.FieldIDs, key.FieldID); ok {
			field, fieldIdx = &desc.Fields[idx], idx
			lastIdx = idx
		}

		data, prefixLen, err := scanPayload(c, key.WireType)
		if err != nil {
			return nil, nil, err
		}

		if field == nil {
			t.unknown++
			members = append(members, scannedMember{key: key, data: data, prefixLen: prefixLen})
			continue
		}

		if field.Label == LabelRepeated {
			n, err := tallyRepeated(c, field, key.WireType, data)
			if err != nil {
				return nil, nil, err
			}
			t.counts[fieldIdx] += n
		}

		members = append(members, scannedMember{
			key: key, field: field, fieldIdx: fieldIdx, data: data, prefixLen: prefixLen,
		})
	}

	return members, t, nil
}

// scanPayload consumes exactly one record's payload per spec.md §4.4 step 3,
// returning the payload bytes (excluding the key) and, for LEN records, the
// number of bytes the length prefix itself occupied.
func scanPayload(c *cursor, wt WireType) (data []byte, prefixLen int, err error) {
	switch wt {
	case WireVarint:
		_, n, code := readULEB128[uint64](c.data, 0)
		if code != errCodeOK {
			return nil, 0, c.fail(code)
		}
		data = c.data[:n]
		c.data = c.data[n:]
		return data, 0, nil

	case WireI64:
		if len(c.data) < 8 {
			return nil, 0, c.fail(errCodeInvalidData)
		}
		data, c.data = c.data[:8], c.data[8:]
		return data, 0, nil

	case WireI32:
		if len(c.data) < 4 {
			return nil, 0, c.fail(errCodeInvalidData)
		}
		data, c.data = c.data[:4], c.data[4:]
		return data, 0, nil

	case WireLen:
		plen, payloadLen, err := c.scanLengthPrefixedData()
		if err != nil {
			return nil, 0, err
		}
		data = c.data[:payloadLen]
		c.data = c.data[payloadLen:]
		return data, plen, nil

	default:
		// WireSGroup/WireEGroup pass decodeKey's range check but carry no
		// payload this decoder knows how to skip; groups are unsupported.
		return nil, 0, c.fail(errCodeInvalidType)
	}
}

// tallyRepeated computes how many elements a single scanned record
// contributes to a REPEATED field's count, per spec.md §4.4 step 4.
func tallyRepeated(c *cursor, field *FieldDescriptor, wt WireType, data []byte) (int, error) {
	if wt != WireLen || !(field.packed() || isPackableType(field.Type)) {
		return 1, nil
	}
	if !isPackableType(field.Type) {
		// A LEN record against a non-packable repeated type (STRING, BYTES,
		// MESSAGE) is just one element, framed normally.
		return 1, nil
	}

	switch {
	case is32BitFixed(field.Type):
		if len(data)%4 != 0 {
			return 0, c.fail(errCodeInvalidType)
		}
		return len(data) / 4, nil

	case is64BitFixed(field.Type):
		if len(data)%8 != 0 {
			return 0, c.fail(errCodeInvalidType)
		}
		return len(data) / 8, nil

	case field.Type == TypeBool:
		return len(data), nil

	case isVarintType(field.Type):
		n := 0
		for _, b := range data {
			if b&0x80 == 0 {
				n++
			}
		}
		return n, nil

	default:
		return 0, c.fail(errCodeInvalidType)
	}
}
