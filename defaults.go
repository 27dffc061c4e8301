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

import "unsafe"

// deserializeInto is spec.md §4.7's initializer: it stamps m with desc,
// allocates its storage region and bookkeeping bitmaps, and brings every
// field to its default value, before the scan/allocate/parse pipeline ever
// looks at wire bytes. c is only used to attribute a validation failure to
// the right byte offset.
// buf, when non-nil, is used as the message's storage region directly
// (spec.md §4.1's caller-allocated byte region) rather than one freshly
// allocated on the heap; it must be at least desc.SizeofMessage bytes and is
// zeroed before defaults are applied, since callers may be reusing it across
// deserializations. Nested sub-messages never pass a buf: each owns a
// heap-allocated region, rooted via the parent's keep list.
func deserializeInto(ctx *Context, c *cursor, desc *MessageDescriptor, m *Message, buf []byte) error {
	if err := desc.validate(); err != nil {
		return c.fail(errCodeDescriptorMissing)
	}

	if buf != nil {
		if len(buf) < desc.SizeofMessage {
			return c.fail(errCodeAlloc)
		}
		m.data = buf[:desc.SizeofMessage]
		clear(m.data)
	} else {
		m.data = make([]byte, desc.SizeofMessage)
	}

	m.desc = desc
	m.presence = make([]byte, bitmapSize(len(desc.Fields)))
	m.required = make([]byte, bitmapSize(len(desc.Fields)))
	if len(desc.Oneofs) > 0 {
		m.oneof = make([]uint32, len(desc.Oneofs))
	}

	if desc.MessageInit != nil {
		desc.MessageInit(m.data)
		return nil
	}

	return applyDefaults(m)
}

// applyDefaults writes each field's declared default value into m.data.
// REPEATED fields are left as their zero List (empty, per spec.md §4.5)
// since repetition has no meaningful default. STRING and MESSAGE fields are
// left zero-valued too: a zero string already reads as "", and a nil
// *Message is the correct "absent sub-message" representation, so writing
// either into storage would only duplicate what accessors can already
// report cheaply. See DESIGN.md's Open Question notes.
func applyDefaults(m *Message) error {
	for i := range m.desc.Fields {
		f := &m.desc.Fields[i]
		if f.Label == LabelRepeated || f.Default == nil {
			continue
		}
		if f.Type == TypeString || f.Type == TypeMessage {
			continue
		}

		dst := m.fieldPtr(i)

		switch f.Type {
		case TypeBytes:
			b := make([]byte, len(f.Default))
			copy(b, f.Default)
			*(*[]byte)(dst) = b
			m.keep = append(m.keep, b)

		case TypeBool:
			if len(f.Default) != 1 {
				return parseErr(errCodeInvalidData, 0)
			}
			*(*bool)(dst) = f.Default[0] != 0

		default:
			width := repeatedEleSize(f.Type)
			if len(f.Default) != width {
				return parseErr(errCodeInvalidData, 0)
			}
			copy(unsafe.Slice((*byte)(dst), width), f.Default)
		}
	}

	return nil
}
