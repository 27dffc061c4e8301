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

package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protodyn/protodyn"
	"github.com/protodyn/protodyn/compiler"
)

func label(l descriptorpb.FieldDescriptorProto_Label) *descriptorpb.FieldDescriptorProto_Label {
	return &l
}

func kind(k descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto_Type {
	return &k
}

// buildFile marks a hand-built FileDescriptorProto as proto2 and returns it;
// each test then turns it into a protoreflect.FileDescriptor with
// protodesc.NewFile, the same on-ramp protoc-gen plugins use, so the
// compiler package is exercised against the real protoreflect API rather
// than a hand-rolled stand-in.
func buildFile(t *testing.T, fdp *descriptorpb.FileDescriptorProto) *descriptorpb.FileDescriptorProto {
	t.Helper()
	fdp.Syntax = proto.String("proto2")
	return fdp
}

func TestCompileScalarFields(t *testing.T) {
	fdp := buildFile(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("test.proto"),
		Package: proto.String("test"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("M"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("a"), Number: proto.Int32(2), Label: label(descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL), Type: kind(descriptorpb.FieldDescriptorProto_TYPE_INT32)},
					{Name: proto.String("b"), Number: proto.Int32(1), Label: label(descriptorpb.FieldDescriptorProto_LABEL_REQUIRED), Type: kind(descriptorpb.FieldDescriptorProto_TYPE_STRING)},
					{Name: proto.String("c"), Number: proto.Int32(3), Label: label(descriptorpb.FieldDescriptorProto_LABEL_REPEATED), Type: kind(descriptorpb.FieldDescriptorProto_TYPE_UINT64), Options: &descriptorpb.FieldOptions{Packed: proto.Bool(true)}},
				},
			},
		},
	})

	fd, err := protodesc.NewFile(fdp, nil)
	require.NoError(t, err)

	md := fd.Messages().Get(0)
	desc, err := compiler.Compile(md)
	require.NoError(t, err)

	assert.Equal(t, protodyn.MessageDescriptorMagic, desc.Magic)
	require.Len(t, desc.Fields, 3)

	// Fields must come back sorted ascending by id regardless of
	// declaration order.
	assert.Equal(t, []uint32{1, 2, 3}, desc.FieldIDs)

	byName := make(map[string]protodyn.FieldDescriptor, 3)
	for _, f := range desc.Fields {
		byName[f.Name] = f
	}

	assert.Equal(t, protodyn.LabelRequired, byName["b"].Label)
	assert.Equal(t, protodyn.TypeString, byName["b"].Type)
	assert.Equal(t, protodyn.LabelRepeated, byName["c"].Label)
	assert.NotZero(t, byName["c"].Flags&protodyn.FlagPacked)
	assert.Equal(t, 1, desc.RequiredCount)
}

func TestCompileNestedMessage(t *testing.T) {
	fdp := buildFile(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("nested.proto"),
		Package: proto.String("test"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Inner"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("x"), Number: proto.Int32(1), Label: label(descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL), Type: kind(descriptorpb.FieldDescriptorProto_TYPE_INT32)},
				},
			},
			{
				Name: proto.String("Outer"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("sub"), Number: proto.Int32(1), Label: label(descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL), Type: kind(descriptorpb.FieldDescriptorProto_TYPE_MESSAGE), TypeName: proto.String(".test.Inner")},
				},
			},
		},
	})

	fd, err := protodesc.NewFile(fdp, nil)
	require.NoError(t, err)

	outerMD := fd.Messages().ByName("Outer")
	require.NotNil(t, outerMD)

	desc, err := compiler.Compile(outerMD)
	require.NoError(t, err)
	require.Len(t, desc.Fields, 1)
	require.NotNil(t, desc.Fields[0].Sub)
	assert.Equal(t, "test.Inner", desc.Fields[0].Sub.Name)
}

func TestCompileRejectsGroups(t *testing.T) {
	fdp := buildFile(t, &descriptorpb.FileDescriptorProto{
		Name:    proto.String("group.proto"),
		Package: proto.String("test"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("G"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{Name: proto.String("grp"), Number: proto.Int32(1), Label: label(descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL), Type: kind(descriptorpb.FieldDescriptorProto_TYPE_GROUP), TypeName: proto.String(".test.G")},
				},
			},
		},
	})

	fd, err := protodesc.NewFile(fdp, nil)
	require.NoError(t, err)

	_, err = compiler.Compile(fd.Messages().Get(0))
	assert.Error(t, err)
}
