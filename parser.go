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
)

// defaultRecursionLimit bounds message nesting (spec.md §9) to guard
// against stack exhaustion on hostile input.
const defaultRecursionLimit = 100

// parse is spec.md §4.6's second pass: it dispatches every scanned member
// in scan order to a type-specific writer.
func parse(ctx *Context, c *cursor, m *Message, members []scannedMember) error {
	for _, sm := range members {
		if sm.field == nil {
			cp := make([]byte, len(sm.data))
			copy(cp, sm.data)
			m.unknown = append(m.unknown, MessageUnknownField{Key: sm.key, Data: cp})
			continue
		}

		f := sm.field
		switch f.Label {
		case LabelRequired:
			if err := parseRequiredMember(ctx, c, m, sm); err != nil {
				return err
			}
			m.setRequiredBit(sm.fieldIdx)

		case LabelRepeated:
			if sm.key.WireType == WireLen && isPackableType(f.Type) {
				// A LEN record against a packable element type is always
				// the packed representation; scan's tally already counted
				// it this way.
				if err := parsePacked(ctx, m, sm); err != nil {
					return err
				}
			} else if err := parseRepeatedElement(ctx, c, m, sm); err != nil {
				return err
			}

		default: // LabelOptional, and the evolution sentinel LabelError
			if f.oneof() {
				if err := parseOneofMember(ctx, c, m, sm); err != nil {
					return err
				}
				continue
			}
			if err := parseRequiredMember(ctx, c, m, sm); err != nil {
				return err
			}
			m.setPresenceBit(sm.fieldIdx)
		}
	}

	return checkRequired(m)
}

func checkRequired(m *Message) error {
	for i, f := range m.desc.Fields {
		if f.Label == LabelRequired && !m.requiredBit(i) {
			return parseErr(errCodeFieldMissing, 0)
		}
	}
	return nil
}

// parseOneofMember clears any previously-set sibling in the field's oneof
// group, records the new discriminator, then stores the value exactly as a
// required member would.
func parseOneofMember(ctx *Context, c *cursor, m *Message, sm scannedMember) error {
	f := sm.field
	if prev := m.oneof[f.OneofIndex]; prev != 0 && prev != f.ID {
		if idx, ok := intRangeLookup(m.desc.FieldIDs, prev); ok {
			sib := &m.desc.Fields[idx]
			clear(m.data[sib.Offset : sib.Offset+uintptr(repeatedEleSize(sib.Type))])
			m.presence[idx/8] &^= 1 << uint(idx%8)
		}
	}
	m.oneof[f.OneofIndex] = f.ID
	if err := parseRequiredMember(ctx, c, m, sm); err != nil {
		return err
	}
	m.setPresenceBit(sm.fieldIdx)
	return nil
}

// parseRequiredMember decodes sm's value and stores it at field.Offset. The
// one repeated case it handles is a REPEATED MESSAGE member handed over by
// parseRepeatedElement, whose decoded sub-message is appended to the field's
// List instead; every other repeated element is decoded and appended by
// parseRepeatedElement itself.
func parseRequiredMember(ctx *Context, c *cursor, m *Message, sm scannedMember) error {
	f := sm.field
	p := m.fieldPtr(sm.fieldIdx)

	switch f.Type {
	case TypeUint32:
		v, err := decodeVarint[uint32](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		*(*uint32)(p) = v

	case TypeInt32:
		// int32's wire encoding sign-extends negative values across a full
		// 10-byte varint, so the accumulator must be read at 64-bit width
		// before truncating; decoding directly at uint32 width would reject
		// that sign extension as overflow.
		v, err := decodeVarint[uint64](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		*(*uint32)(p) = uint32(v)

	case TypeSint32:
		v, err := decodeVarint[uint32](c, sm.data, modeSint)
		if err != nil {
			return err
		}
		*(*uint32)(p) = v

	case TypeEnum:
		v, err := decodeVarint[uint64](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		*(*int32)(p) = canonicalizeEnum(f, int32(uint32(v)))

	case TypeInt64, TypeUint64:
		v, err := decodeVarint[uint64](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		*(*uint64)(p) = v

	case TypeSint64:
		v, err := decodeVarint[uint64](c, sm.data, modeSint)
		if err != nil {
			return err
		}
		*(*uint64)(p) = v

	case TypeSfixed32, TypeFixed32:
		if len(sm.data) != 4 {
			return c.fail(errCodeInvalidData)
		}
		*(*uint32)(p) = binary.LittleEndian.Uint32(sm.data)

	case TypeFloat:
		if len(sm.data) != 4 {
			return c.fail(errCodeInvalidData)
		}
		*(*float32)(p) = math.Float32frombits(binary.LittleEndian.Uint32(sm.data))

	case TypeSfixed64, TypeFixed64:
		if len(sm.data) != 8 {
			return c.fail(errCodeInvalidData)
		}
		*(*uint64)(p) = binary.LittleEndian.Uint64(sm.data)

	case TypeDouble:
		if len(sm.data) != 8 {
			return c.fail(errCodeInvalidData)
		}
		*(*float64)(p) = math.Float64frombits(binary.LittleEndian.Uint64(sm.data))

	case TypeBool:
		if len(sm.data) < 1 {
			return c.fail(errCodeInvalidData)
		}
		*(*bool)(p) = sm.data[0] != 0

	case TypeString:
		if sm.key.WireType != WireLen {
			return c.fail(errCodeInvalidType)
		}
		s := string(sm.data) // owned copy: string(...) of a []byte always copies
		*(*string)(p) = s
		m.keep = append(m.keep, s)

	case TypeBytes:
		if sm.key.WireType != WireLen {
			return c.fail(errCodeInvalidType)
		}
		b := make([]byte, len(sm.data))
		copy(b, sm.data)
		*(*[]byte)(p) = b
		m.keep = append(m.keep, b)

	case TypeMessage:
		if sm.key.WireType != WireLen {
			return c.fail(errCodeInvalidType)
		}
		if f.Sub == nil {
			return c.fail(errCodeDescriptorMissing)
		}
		if f.Label == LabelRepeated {
			sub, err := deserializeNested(ctx, c, f.Sub, sm.data)
			if err != nil {
				return err
			}
			l := (*List)(p)
			listAppend(l, sub)
			return nil
		}
		existing := *(*(*Message))(p)
		if existing == nil {
			existing = &Message{}
			*(*(*Message))(p) = existing
			m.keep = append(m.keep, existing)
		}
		if err := deserializeInto(ctx, c, f.Sub, existing, nil); err != nil {
			return err
		}
		if err := parseSubmessage(ctx, c, f.Sub, existing, sm.data); err != nil {
			return err
		}

	default:
		return c.fail(errCodeInvalidType)
	}

	return nil
}

// parseRepeatedElement decodes one unpacked element and appends it to the
// field's List.
func parseRepeatedElement(ctx *Context, c *cursor, m *Message, sm scannedMember) error {
	f := sm.field
	l := (*List)(m.fieldPtr(sm.fieldIdx))

	switch f.Type {
	case TypeUint32:
		v, err := decodeVarint[uint32](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		listAppend(l, v)

	case TypeInt32:
		v, err := decodeVarint[uint64](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		listAppend(l, uint32(v))

	case TypeSint32:
		v, err := decodeVarint[uint32](c, sm.data, modeSint)
		if err != nil {
			return err
		}
		listAppend(l, v)

	case TypeEnum:
		v, err := decodeVarint[uint64](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		listAppend(l, canonicalizeEnum(f, int32(uint32(v))))

	case TypeInt64, TypeUint64:
		v, err := decodeVarint[uint64](c, sm.data, modeUint)
		if err != nil {
			return err
		}
		listAppend(l, v)

	case TypeSint64:
		v, err := decodeVarint[uint64](c, sm.data, modeSint)
		if err != nil {
			return err
		}
		listAppend(l, v)

	case TypeSfixed32, TypeFixed32:
		if len(sm.data) != 4 {
			return c.fail(errCodeInvalidData)
		}
		listAppend(l, binary.LittleEndian.Uint32(sm.data))

	case TypeFloat:
		if len(sm.data) != 4 {
			return c.fail(errCodeInvalidData)
		}
		listAppend(l, math.Float32frombits(binary.LittleEndian.Uint32(sm.data)))

	case TypeSfixed64, TypeFixed64:
		if len(sm.data) != 8 {
			return c.fail(errCodeInvalidData)
		}
		listAppend(l, binary.LittleEndian.Uint64(sm.data))

	case TypeDouble:
		if len(sm.data) != 8 {
			return c.fail(errCodeInvalidData)
		}
		listAppend(l, math.Float64frombits(binary.LittleEndian.Uint64(sm.data)))

	case TypeBool:
		if len(sm.data) < 1 {
			return c.fail(errCodeInvalidData)
		}
		listAppend(l, sm.data[0] != 0)

	case TypeString:
		if sm.key.WireType != WireLen {
			return c.fail(errCodeInvalidType)
		}
		s := string(sm.data)
		listAppend(l, s)

	case TypeBytes:
		if sm.key.WireType != WireLen {
			return c.fail(errCodeInvalidType)
		}
		b := make([]byte, len(sm.data))
		copy(b, sm.data)
		listAppend(l, b)

	case TypeMessage:
		return parseRequiredMember(ctx, c, m, sm) // repeated message path lives there

	default:
		return c.fail(errCodeInvalidType)
	}

	return nil
}

// parsePacked decodes a packed-repeated LEN record, appending each element
// to the field's preallocated List until the payload is exhausted.
func parsePacked(ctx *Context, m *Message, sm scannedMember) error {
	f := sm.field
	l := (*List)(m.fieldPtr(sm.fieldIdx))
	data := sm.data
	pc := newCursor(data, nil)

	for !pc.atEOF() {
		switch {
		case is32BitFixed(f.Type):
			v, err := pc.readInt32()
			if err != nil {
				return err
			}
			switch f.Type {
			case TypeFloat:
				listAppend(l, math.Float32frombits(v))
			default:
				listAppend(l, v)
			}

		case is64BitFixed(f.Type):
			v, err := pc.readInt64()
			if err != nil {
				return err
			}
			switch f.Type {
			case TypeDouble:
				listAppend(l, math.Float64frombits(v))
			default:
				listAppend(l, v)
			}

		case f.Type == TypeBool:
			v, err := pc.readBool()
			if err != nil {
				return err
			}
			listAppend(l, v)

		case f.Type == TypeEnum:
			v, err := readCursorVarint[uint64](pc, modeUint)
			if err != nil {
				return err
			}
			listAppend(l, canonicalizeEnum(f, int32(uint32(v))))

		case f.Type == TypeSint32:
			v, err := readCursorVarint[uint32](pc, modeSint)
			if err != nil {
				return err
			}
			listAppend(l, v)

		case f.Type == TypeSint64:
			v, err := readCursorVarint[uint64](pc, modeSint)
			if err != nil {
				return err
			}
			listAppend(l, v)

		case f.Type == TypeInt32:
			v, err := readCursorVarint[uint64](pc, modeUint)
			if err != nil {
				return err
			}
			listAppend(l, uint32(v))

		case f.Type == TypeUint32:
			v, err := readCursorVarint[uint32](pc, modeUint)
			if err != nil {
				return err
			}
			listAppend(l, v)

		case f.Type == TypeInt64 || f.Type == TypeUint64:
			v, err := readCursorVarint[uint64](pc, modeUint)
			if err != nil {
				return err
			}
			listAppend(l, v)

		default:
			return pc.fail(errCodeInvalidType)
		}
	}

	return nil
}

// decodeVarint reads a single varint of width bits(T) out of a scanned
// member's already-isolated payload (not out of the live cursor, since the
// scanner already consumed exactly these bytes); c is only used to build the
// returned error, whose offset is therefore c's position (see ParseError),
// not the position of this member.
func decodeVarint[T varintWidth](c *cursor, data []byte, mode varintMode) (T, error) {
	v, n, code := readVarint128[T](data, 0, mode)
	if code != errCodeOK || n != len(data) {
		if code == errCodeOK {
			code = errCodeInvalidData
		}
		return 0, c.fail(code)
	}
	return v, nil
}

// canonicalizeEnum maps a raw wire value through the field's alias table,
// preserving the original value as the map key but substituting the
// canonical tag the descriptor designates, per spec.md §9 Open Question (a).
func canonicalizeEnum(f *FieldDescriptor, raw int32) int32 {
	if f.EnumAlias == nil {
		return raw
	}
	if canon, ok := f.EnumAlias[raw]; ok {
		return canon
	}
	return raw
}

// deserializeNested decodes a brand-new sub-message (used for REPEATED
// MESSAGE fields, which allocate one *Message per element) honoring the
// Context's recursion limit.
func deserializeNested(ctx *Context, c *cursor, desc *MessageDescriptor, payload []byte) (*Message, error) {
	m := &Message{}
	if err := deserializeInto(ctx, c, desc, m, nil); err != nil {
		return nil, err
	}
	if err := parseSubmessage(ctx, c, desc, m, payload); err != nil {
		return nil, err
	}
	return m, nil
}

// parseSubmessage runs the full scan/allocate/parse pipeline against payload
// using a child cursor, honoring the shared recursion counter.
func parseSubmessage(ctx *Context, c *cursor, desc *MessageDescriptor, m *Message, payload []byte) error {
	if c.depth+1 > ctx.recursionLimit() {
		return c.fail(errCodeRecursionDepth)
	}

	child := c.withData(payload)
	child.depth = c.depth + 1
	ctx.logf(child.depth, "entering %s (%d bytes)", desc.Name, len(payload))

	members, t, err := scan(child, desc)
	if err != nil {
		return err
	}
	if !child.atEOF() {
		return child.fail(errCodeInvalidData)
	}
	if err := allocateRepeated(m, t, ctx.allocFunc()); err != nil {
		return err
	}
	return parse(ctx, child, m, members)
}
