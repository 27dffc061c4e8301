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

// Sizes of the value representations repeatedEleSize reports, computed once
// as compile-time constants (unsafe.Sizeof of a fixed-layout expression is a
// Go constant).
const (
	sizeofString     = int(unsafe.Sizeof(string("")))
	sizeofBinaryData = int(unsafe.Sizeof([]byte(nil)))
	sizeofPointer    = int(unsafe.Sizeof(uintptr(0)))
)

// List is repeated-field storage: a pointer to element-sized backing memory
// plus a length and capacity, matching spec.md §3. Element size is
// determined at runtime from the owning field's type; List itself carries no
// type information; listAt/listAppend below interpret Data using the type T
// the caller already knows statically from a FieldType switch.
type List struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

func listAt[T any](l *List, i int) *T {
	var zero T
	stride := unsafe.Sizeof(zero)
	return (*T)(unsafe.Add(l.Data, uintptr(i)*stride))
}

// listAppend writes v at list.Len and increments Len. The caller must ensure
// Len < Cap; the allocator pass guarantees this by sizing Cap exactly from
// the scanner's tally before the parser ever calls listAppend.
func listAppend[T any](l *List, v T) {
	*listAt[T](l, l.Len) = v
	l.Len++
}

func listGet[T any](l *List, i int) T {
	return *listAt[T](l, i)
}

// MessageUnknownField is a wire record whose field id was not present in
// the message descriptor, retained verbatim so later encoders can
// round-trip it. Its lifetime is tied to the containing Message.
type MessageUnknownField struct {
	Key  Key
	Data []byte // owned copy of the payload, excluding the key
}

// Message is a decoded message instance: the descriptor-driven field
// storage region (data, addressed at the offsets recorded in
// desc.Fields[i].Offset) plus the bookkeeping spec.md §3 calls the
// "header" — the descriptor pointer, a presence bitmap for optional
// fields, oneof discriminators, and the unknown-fields list.
//
// data is a plain []byte, so any pointer-containing value written into it
// (a string header, a slice header, a *Message) is invisible to the garbage
// collector at the point it's embedded; such values are additionally
// appended to keep, which is itself a normal Go slice and therefore a real
// GC root, so nothing decoded here escapes collection early. See
// DESIGN.md for why this retains spec.md's "byte region with offset-based
// raw access" shape rather than representing fields as ordinary struct
// members.
type Message struct {
	desc     *MessageDescriptor
	data     []byte
	presence []byte // bitmap, one bit per field index, meaningful only for OPTIONAL fields
	required []byte // bitmap, one bit per field index, meaningful only for REQUIRED fields
	oneof    []uint32
	unknown  []MessageUnknownField
	keep     []any // GC roots for pointer-containing values embedded in data
}

// Descriptor returns the schema this message was decoded against.
func (m *Message) Descriptor() *MessageDescriptor { return m.desc }

// IsInit reports whether the message has been initialized (stamped with a
// non-nil descriptor). Matches spec.md §3's isInit() predicate.
func (m *Message) IsInit() bool { return m.desc != nil }

// UnknownFields returns the fields captured because their ids were absent
// from the descriptor, in the order they appeared on the wire.
func (m *Message) UnknownFields() []MessageUnknownField { return m.unknown }

func bitmapSize(fields int) int { return (fields + 7) / 8 }

func (m *Message) presenceBit(idx int) bool {
	return m.presence[idx/8]&(1<<uint(idx%8)) != 0
}

func (m *Message) setPresenceBit(idx int) {
	m.presence[idx/8] |= 1 << uint(idx%8)
}

func (m *Message) requiredBit(idx int) bool {
	return m.required[idx/8]&(1<<uint(idx%8)) != 0
}

func (m *Message) setRequiredBit(idx int) {
	m.required[idx/8] |= 1 << uint(idx%8)
}

// Present reports whether field idx carries a value: always true for
// REQUIRED fields once parsed, true for REPEATED fields with at least one
// element, and the presence-bitmap bit for OPTIONAL fields otherwise.
func (m *Message) Present(idx int) bool {
	f := &m.desc.Fields[idx]
	switch f.Label {
	case LabelRepeated:
		l := (*List)(m.fieldPtr(idx))
		return l.Len > 0
	case LabelRequired:
		return m.requiredBit(idx)
	default:
		return m.presenceBit(idx)
	}
}

// WhichOneof reports the field id of the member of oneof group groupIdx
// (an index into Descriptor().Oneofs) that decoded, and whether any member
// was present at all; ok is false and fieldID is 0 if none arrived on the
// wire. Setting a later sibling always overwrites an earlier one, matching
// protobuf's "last one wins" rule for oneofs.
func (m *Message) WhichOneof(groupIdx int) (fieldID uint32, ok bool) {
	id := m.oneof[groupIdx]
	return id, id != 0
}

// fieldPtr returns a pointer to the raw storage for field index idx.
func (m *Message) fieldPtr(idx int) unsafe.Pointer {
	return addOffset(m.data, m.desc.Fields[idx].Offset)
}

func addOffset(data []byte, offset uintptr) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(unsafe.SliceData(data)), offset)
}
