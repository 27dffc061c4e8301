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

import "fmt"

// MessageDescriptorMagic is the sentinel every valid MessageDescriptor must
// carry in its Magic field; it lets deserializeInto tell a real descriptor
// from a zeroed or otherwise garbage pointer before trusting its offsets.
const MessageDescriptorMagic uint32 = 0x50444e31 // "PDN1"

// FieldType is the closed set of scalar/compound protobuf field kinds the
// decoder understands.
type FieldType uint8

const (
	TypeError FieldType = iota // unreachable; descriptor-evolution sentinel
	TypeInt32
	TypeSint32
	TypeUint32
	TypeSfixed32
	TypeFixed32
	TypeFloat
	TypeInt64
	TypeSint64
	TypeUint64
	TypeSfixed64
	TypeFixed64
	TypeDouble
	TypeBool
	TypeEnum
	TypeString
	TypeBytes
	TypeMessage
	TypeGroup // unreachable; wire type deprecated
)

// String implements fmt.Stringer.
func (t FieldType) String() string {
	switch t {
	case TypeInt32:
		return "INT32"
	case TypeSint32:
		return "SINT32"
	case TypeUint32:
		return "UINT32"
	case TypeSfixed32:
		return "SFIXED32"
	case TypeFixed32:
		return "FIXED32"
	case TypeFloat:
		return "FLOAT"
	case TypeInt64:
		return "INT64"
	case TypeSint64:
		return "SINT64"
	case TypeUint64:
		return "UINT64"
	case TypeSfixed64:
		return "SFIXED64"
	case TypeFixed64:
		return "FIXED64"
	case TypeDouble:
		return "DOUBLE"
	case TypeBool:
		return "BOOL"
	case TypeEnum:
		return "ENUM"
	case TypeString:
		return "STRING"
	case TypeBytes:
		return "BYTES"
	case TypeMessage:
		return "MESSAGE"
	case TypeGroup:
		return "GROUP"
	default:
		return "ERROR"
	}
}

// Label is a field's cardinality.
type Label uint8

const (
	LabelError Label = iota // unused descriptor-evolution sentinel
	LabelRequired
	LabelOptional
	LabelRepeated
)

func (l Label) String() string {
	switch l {
	case LabelRequired:
		return "REQUIRED"
	case LabelOptional:
		return "OPTIONAL"
	case LabelRepeated:
		return "REPEATED"
	default:
		return "ERROR"
	}
}

// FieldFlag is a bitset of per-field modifiers living in FieldDescriptor.Flags.
type FieldFlag uint8

const (
	// FlagPacked marks a REPEATED, packable-type field as using the packed
	// wire encoding (a single LEN record holding the concatenation of
	// elements) rather than one record per element.
	FlagPacked FieldFlag = 1 << iota
	// FlagOneof marks a field as a member of a oneof group; setting it
	// clears any previously-set sibling and records the discriminator.
	FlagOneof
)

func (f FieldFlag) has(flag FieldFlag) bool { return f&flag != 0 }

// FieldDescriptor is an immutable description of one message field,
// including where its decoded value is stored.
type FieldDescriptor struct {
	Name        string
	ID          uint32
	Label       Label
	Type        FieldType
	Offset      uintptr            // byte offset of field storage from the message base
	QuantOffset uintptr            // offset of the associated element count, when stored separately
	Default     []byte             // raw default bytes, nil if the field has none
	Sub         *MessageDescriptor // descriptor for MESSAGE fields
	EnumAlias   map[int32]int32    // canonical tag for each aliased wire value, ENUM fields only
	Flags       FieldFlag
	OneofIndex  int // index into MessageDescriptor.Oneofs, valid iff Flags.has(FlagOneof)
}

func (f *FieldDescriptor) packed() bool { return f.Flags.has(FlagPacked) }
func (f *FieldDescriptor) oneof() bool  { return f.Flags.has(FlagOneof) }

// OneofGroup names one oneof group; its decoded discriminator (which
// member's field id last arrived on the wire, 0 meaning "unset") lives in
// Message.oneof, indexed the same way, and is reachable through
// Message.WhichOneof.
type OneofGroup struct {
	Name string
}

// MessageInitFunc, when present on a MessageDescriptor, replaces the default
// zero-fill-then-apply-defaults initialization in deserializeInto.
type MessageInitFunc func(buf []byte)

// MessageDescriptor is an immutable, read-only schema for one message type.
// Fields and FieldIDs must be parallel and sorted ascending on id, per
// spec.md §3's invariant, to support intRangeLookup.
type MessageDescriptor struct {
	Magic         uint32
	Name          string
	SizeofMessage int
	Fields        []FieldDescriptor
	FieldIDs      []uint32
	Oneofs        []OneofGroup
	RequiredCount int // number of fields with Label == LabelRequired
	MessageInit   MessageInitFunc
}

// validate checks the external contract spec.md §6 requires of a descriptor
// before the decoder will trust it.
func (d *MessageDescriptor) validate() error {
	if d.Magic != MessageDescriptorMagic {
		return fmt.Errorf("protodyn: descriptor %q has invalid magic %#x", d.Name, d.Magic)
	}
	if len(d.Fields) != len(d.FieldIDs) {
		return fmt.Errorf("protodyn: descriptor %q: fields/field_ids length mismatch", d.Name)
	}
	for i, f := range d.Fields {
		if f.ID != d.FieldIDs[i] {
			return fmt.Errorf("protodyn: descriptor %q: fields[%d].id %d != field_ids[%d] %d", d.Name, i, f.ID, i, d.FieldIDs[i])
		}
		if i > 0 && d.FieldIDs[i-1] >= d.FieldIDs[i] {
			return fmt.Errorf("protodyn: descriptor %q: field_ids not strictly ascending at %d", d.Name, i)
		}
		if int(f.Offset) >= d.SizeofMessage {
			return fmt.Errorf("protodyn: descriptor %q: field %q offset %d >= sizeof_message %d", d.Name, f.Name, f.Offset, d.SizeofMessage)
		}
		if f.Type == TypeError || f.Type == TypeGroup {
			return fmt.Errorf("protodyn: descriptor %q: field %q has unsupported type %v", d.Name, f.Name, f.Type)
		}
		if (f.Type == TypeMessage) && f.Sub == nil {
			return parseErr(errCodeDescriptorMissing, 0)
		}
	}
	return nil
}

// intRangeLookup finds the index of value in the ascending sequence ids,
// returning (index, true) or (0, false). Implementations may linear-scan
// while the sequence is small; we switch to binary search past a small
// threshold, matching spec.md §4.3's "implementations may linear-scan while
// small" guidance.
func intRangeLookup(ids []uint32, value uint32) (int, bool) {
	const linearThreshold = 8
	if len(ids) <= linearThreshold {
		for i, id := range ids {
			if id == value {
				return i, true
			}
			if id > value {
				break
			}
		}
		return 0, false
	}

	lo, hi := 0, len(ids)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case ids[mid] == value:
			return mid, true
		case ids[mid] < value:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// repeatedEleSize returns the per-type element width used to size a
// repeated field's backing list.
func repeatedEleSize(t FieldType) int {
	switch t {
	case TypeInt32, TypeSint32, TypeUint32, TypeSfixed32, TypeFixed32, TypeFloat, TypeEnum:
		return 4
	case TypeInt64, TypeSint64, TypeUint64, TypeSfixed64, TypeFixed64, TypeDouble:
		return 8
	case TypeBool:
		return 1
	case TypeString:
		return sizeofString
	case TypeBytes:
		return sizeofBinaryData
	case TypeMessage:
		return sizeofPointer
	default:
		panic(fmt.Sprintf("protodyn: repeatedEleSize: unsupported type %v", t))
	}
}

// isPackableType reports whether t may use the packed wire representation
// when repeated. Every scalar/enum type is packable; STRING, BYTES, and
// MESSAGE are never packed (each element is already length-delimited).
func isPackableType(t FieldType) bool {
	switch t {
	case TypeString, TypeBytes, TypeMessage:
		return false
	default:
		return true
	}
}

// is32BitFixed / is64BitFixed classify a packable type's fixed-width framing
// for packed-repeated scanning (spec.md §4.4 step 4) and parsing.
func is32BitFixed(t FieldType) bool {
	switch t {
	case TypeSfixed32, TypeFixed32, TypeFloat:
		return true
	default:
		return false
	}
}

func is64BitFixed(t FieldType) bool {
	switch t {
	case TypeSfixed64, TypeFixed64, TypeDouble:
		return true
	default:
		return false
	}
}

func isVarintType(t FieldType) bool {
	switch t {
	case TypeInt32, TypeSint32, TypeUint32, TypeInt64, TypeSint64, TypeUint64, TypeEnum, TypeBool:
		return true
	default:
		return false
	}
}
