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

// Package compiler lowers real protobuf descriptors (protoreflect, loaded
// from a FileDescriptorSet or a generated package's registry) into the
// protodyn.MessageDescriptor shape the decoder core consumes.
//
// The decoder core never imports this package: a MessageDescriptor can be
// built by hand just as easily, and Compile exists only to make the core
// exercisable against real .proto-derived schemas instead of hand-built
// ones. Unlike the layout compiler this package is modeled on, there is no
// code generation step and no profile-guided archetype selection: every
// field gets a naturally aligned, sequential offset, since the decoder
// addresses storage purely by offset and has no hot/cold split to optimize
// for.
package compiler

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"unsafe"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/protodyn/protodyn"
)

// Compile lowers md (and, transitively, every message type reachable
// through its fields) into a *protodyn.MessageDescriptor.
func Compile(md protoreflect.MessageDescriptor) (*protodyn.MessageDescriptor, error) {
	return lower(md, make(map[protoreflect.FullName]*protodyn.MessageDescriptor))
}

// lower recurses over md's message-typed fields, memoizing on full name so
// that recursive and diamond-shaped message graphs terminate and share a
// single descriptor per type, the way the teacher's compiler memoizes on
// its symbols map.
func lower(md protoreflect.MessageDescriptor, seen map[protoreflect.FullName]*protodyn.MessageDescriptor) (*protodyn.MessageDescriptor, error) {
	if d, ok := seen[md.FullName()]; ok {
		return d, nil
	}

	desc := &protodyn.MessageDescriptor{
		Magic: protodyn.MessageDescriptorMagic,
		Name:  string(md.FullName()),
	}
	seen[md.FullName()] = desc

	oneofIndex := make(map[protoreflect.Name]int)
	oneofs := md.Oneofs()
	for i := 0; i < oneofs.Len(); i++ {
		o := oneofs.Get(i)
		if o.IsSynthetic() {
			// Synthetic oneofs back proto3 `optional` fields; the field
			// already gets presence tracking via the message's own
			// presence bitmap, so it needs no discriminator slot.
			continue
		}
		oneofIndex[o.Name()] = len(desc.Oneofs)
		desc.Oneofs = append(desc.Oneofs, protodyn.OneofGroup{Name: string(o.Name())})
	}

	var offset uintptr
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.Kind() == protoreflect.GroupKind {
			return nil, fmt.Errorf("compiler: %s: field %s uses the legacy group encoding, which this decoder does not support", md.FullName(), fd.Name())
		}

		ft := fieldType(fd)
		if ft == protodyn.TypeError {
			return nil, fmt.Errorf("compiler: %s: field %s has unsupported kind %v", md.FullName(), fd.Name(), fd.Kind())
		}

		lbl := fieldLabel(fd)

		var sub *protodyn.MessageDescriptor
		if ft == protodyn.TypeMessage {
			var err error
			sub, err = lower(fd.Message(), seen)
			if err != nil {
				return nil, err
			}
		}

		width := storageWidth(lbl, ft)
		offset = alignUp(offset, width)

		field := protodyn.FieldDescriptor{
			Name:    string(fd.Name()),
			ID:      uint32(fd.Number()),
			Label:   lbl,
			Type:    ft,
			Offset:  offset,
			Default: defaultBytes(fd),
			Sub:     sub,
		}

		if lbl == protodyn.LabelRepeated && fd.IsPacked() {
			field.Flags |= protodyn.FlagPacked
		}
		if o := fd.ContainingOneof(); o != nil && !o.IsSynthetic() {
			field.Flags |= protodyn.FlagOneof
			field.OneofIndex = oneofIndex[o.Name()]
		}
		if lbl == protodyn.LabelRequired {
			desc.RequiredCount++
		}

		desc.Fields = append(desc.Fields, field)
		offset += width
	}

	// Fields are declared on md in source order, which need not be ascending
	// by field number; the decoder's lookup requires FieldIDs ascending, so
	// sort now rather than asking every descriptor producer to do it.
	slices.SortFunc(desc.Fields, func(a, b protodyn.FieldDescriptor) int {
		return int(a.ID) - int(b.ID)
	})
	desc.FieldIDs = make([]uint32, len(desc.Fields))
	for i, f := range desc.Fields {
		desc.FieldIDs[i] = f.ID
	}

	desc.SizeofMessage = int(offset)
	return desc, nil
}

func alignUp(offset, width uintptr) uintptr {
	if width == 0 {
		return offset
	}
	return (offset + width - 1) &^ (width - 1)
}

// storageWidth returns the number of bytes a field's storage occupies:
// sizeof(protodyn.List) for any REPEATED field regardless of element kind,
// or the element's own natural width for a singular field.
func storageWidth(lbl protodyn.Label, ft protodyn.FieldType) uintptr {
	if lbl == protodyn.LabelRepeated {
		return unsafe.Sizeof(protodyn.List{})
	}

	switch ft {
	case protodyn.TypeInt32, protodyn.TypeSint32, protodyn.TypeUint32,
		protodyn.TypeSfixed32, protodyn.TypeFixed32, protodyn.TypeFloat, protodyn.TypeEnum:
		return 4
	case protodyn.TypeInt64, protodyn.TypeSint64, protodyn.TypeUint64,
		protodyn.TypeSfixed64, protodyn.TypeFixed64, protodyn.TypeDouble:
		return 8
	case protodyn.TypeBool:
		return 1
	case protodyn.TypeString:
		return unsafe.Sizeof(string(""))
	case protodyn.TypeBytes:
		return unsafe.Sizeof([]byte(nil))
	case protodyn.TypeMessage:
		return unsafe.Sizeof((*protodyn.Message)(nil))
	default:
		return 8
	}
}

func fieldLabel(fd protoreflect.FieldDescriptor) protodyn.Label {
	switch fd.Cardinality() {
	case protoreflect.Repeated:
		return protodyn.LabelRepeated
	case protoreflect.Required:
		return protodyn.LabelRequired
	default:
		return protodyn.LabelOptional
	}
}

func fieldType(fd protoreflect.FieldDescriptor) protodyn.FieldType {
	switch fd.Kind() {
	case protoreflect.Int32Kind:
		return protodyn.TypeInt32
	case protoreflect.Sint32Kind:
		return protodyn.TypeSint32
	case protoreflect.Uint32Kind:
		return protodyn.TypeUint32
	case protoreflect.Sfixed32Kind:
		return protodyn.TypeSfixed32
	case protoreflect.Fixed32Kind:
		return protodyn.TypeFixed32
	case protoreflect.FloatKind:
		return protodyn.TypeFloat
	case protoreflect.Int64Kind:
		return protodyn.TypeInt64
	case protoreflect.Sint64Kind:
		return protodyn.TypeSint64
	case protoreflect.Uint64Kind:
		return protodyn.TypeUint64
	case protoreflect.Sfixed64Kind:
		return protodyn.TypeSfixed64
	case protoreflect.Fixed64Kind:
		return protodyn.TypeFixed64
	case protoreflect.DoubleKind:
		return protodyn.TypeDouble
	case protoreflect.BoolKind:
		return protodyn.TypeBool
	case protoreflect.EnumKind:
		return protodyn.TypeEnum
	case protoreflect.StringKind:
		return protodyn.TypeString
	case protoreflect.BytesKind:
		return protodyn.TypeBytes
	case protoreflect.MessageKind:
		return protodyn.TypeMessage
	default:
		return protodyn.TypeError
	}
}

// defaultBytes renders fd's explicit proto2 default (absent entirely in
// proto3 except for enums' implicit zero, which this decoder already
// applies by zero-filling) into the raw storage-width bytes
// FieldDescriptor.Default expects. STRING, BYTES, and MESSAGE defaults are
// intentionally omitted for STRING/MESSAGE, matching the decoder's
// documented deferral; BYTES is the one variable-width kind with a
// meaningful literal default, so it is rendered as its own content rather
// than a fixed-width copy.
func defaultBytes(fd protoreflect.FieldDescriptor) []byte {
	if fd.Cardinality() == protoreflect.Repeated || !fd.HasDefault() {
		return nil
	}

	v := fd.Default()
	switch fd.Kind() {
	case protoreflect.BoolKind:
		if v.Bool() {
			return []byte{1}
		}
		return []byte{0}

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v.Int()))
		return buf[:]

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v.Uint()))
		return buf[:]

	case protoreflect.EnumKind:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v.Enum()))
		return buf[:]

	case protoreflect.FloatKind:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v.Float())))
		return buf[:]

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.Int()))
		return buf[:]

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v.Uint())
		return buf[:]

	case protoreflect.DoubleKind:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float()))
		return buf[:]

	case protoreflect.BytesKind:
		return append([]byte(nil), v.Bytes()...)

	default:
		return nil
	}
}
