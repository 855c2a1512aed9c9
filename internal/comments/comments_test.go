package comments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func location(path []int32, leading, trailing string) *descriptorpb.SourceCodeInfo_Location {
	loc := &descriptorpb.SourceCodeInfo_Location{Path: path}
	if leading != "" {
		loc.LeadingComments = proto.String(leading)
	}
	if trailing != "" {
		loc.TrailingComments = proto.String(trailing)
	}
	return loc
}

func shopFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("acme/shop.proto"),
		Package: proto.String("acme.shop"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Order"),
			Field: []*descriptorpb.FieldDescriptorProto{
				{Name: proto.String("id"), Number: proto.Int32(1)},
				{Name: proto.String("sku"), Number: proto.Int32(2), OneofIndex: proto.Int32(0)},
			},
			OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("item")}},
			NestedType: []*descriptorpb.DescriptorProto{{
				Name:  proto.String("Line"),
				Field: []*descriptorpb.FieldDescriptorProto{{Name: proto.String("qty"), Number: proto.Int32(1)}},
			}},
		}},
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name:  proto.String("State"),
			Value: []*descriptorpb.EnumValueDescriptorProto{{Name: proto.String("OPEN"), Number: proto.Int32(0)}},
		}},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("Orders"),
			Method: []*descriptorpb.MethodDescriptorProto{{Name: proto.String("Get")}},
		}},
		Extension: []*descriptorpb.FieldDescriptorProto{{Name: proto.String("note"), Number: proto.Int32(100)}},
		SourceCodeInfo: &descriptorpb.SourceCodeInfo{Location: []*descriptorpb.SourceCodeInfo_Location{
			location([]int32{4, 0}, " An order.\n", ""),
			location([]int32{4, 0, 2, 0}, "", " primary key\n"),
			location([]int32{4, 0, 2, 1}, " leading\n", " trailing\n"),
			location([]int32{4, 0, 8, 0}, " what was bought\n", ""),
			location([]int32{4, 0, 3, 0, 2, 0}, " quantity\n", ""),
			location([]int32{5, 0}, " lifecycle\n", ""),
			location([]int32{5, 0, 2, 0}, " just placed\n", ""),
			location([]int32{6, 0}, " order api\n", ""),
			location([]int32{6, 0, 2, 0}, " fetch one\n", ""),
			location([]int32{7, 0}, " free text\n", ""),
			location([]int32{4, 0, 1}, " the name token\n", ""),
			location([]int32{4}, " all messages\n", ""),
			location([]int32{4, 0, 2, 0, 1}, "", ""),
		}},
	}
}

var allKinds = map[string]int32{
	KindMessage:   50001,
	KindField:     50002,
	KindOneof:     50003,
	KindEnum:      50004,
	KindEnumValue: 50005,
	KindService:   50006,
	KindMethod:    50007,
	KindExtension: 50008,
}

func TestApply_AllKinds(t *testing.T) {
	fdp := shopFile()
	written := Apply(fdp, allKinds)
	assert.Equal(t, 10, written)

	order := fdp.MessageType[0]
	assert.Equal(t, []string{"An order."}, Read(order.Options, 50001))
	assert.Equal(t, []string{"primary key"}, Read(order.Field[0].Options, 50002))
	assert.Equal(t, []string{"leading"}, Read(order.Field[1].Options, 50002), "leading comment wins")
	assert.Equal(t, []string{"what was bought"}, Read(order.OneofDecl[0].Options, 50003))
	assert.Equal(t, []string{"quantity"}, Read(order.NestedType[0].Field[0].Options, 50002))
	assert.Nil(t, order.NestedType[0].Options)

	state := fdp.EnumType[0]
	assert.Equal(t, []string{"lifecycle"}, Read(state.Options, 50004))
	assert.Equal(t, []string{"just placed"}, Read(state.Value[0].Options, 50005))

	svc := fdp.Service[0]
	assert.Equal(t, []string{"order api"}, Read(svc.Options, 50006))
	assert.Equal(t, []string{"fetch one"}, Read(svc.Method[0].Options, 50007))

	assert.Equal(t, []string{"free text"}, Read(fdp.Extension[0].Options, 50008))
}

func TestApply_OnlyConfiguredKinds(t *testing.T) {
	fdp := shopFile()
	written := Apply(fdp, map[string]int32{KindMethod: 60000})
	assert.Equal(t, 1, written)

	assert.Nil(t, fdp.MessageType[0].Options)
	assert.Nil(t, fdp.Service[0].Options)
	assert.Equal(t, []string{"fetch one"}, Read(fdp.Service[0].Method[0].Options, 60000))
}

func TestApply_PresentLeadingCommentWins(t *testing.T) {
	fdp := shopFile()
	fdp.SourceCodeInfo.Location = []*descriptorpb.SourceCodeInfo_Location{
		{Path: []int32{4, 0}, LeadingComments: proto.String(""), TrailingComments: proto.String(" after\n")},
		{Path: []int32{5, 0}, TrailingComments: proto.String(" after enum\n")},
		{Path: []int32{6, 0}},
	}

	assert.Equal(t, 2, Apply(fdp, allKinds))
	assert.Equal(t, []string{""}, Read(fdp.MessageType[0].Options, 50001))
	assert.Equal(t, []string{"after enum"}, Read(fdp.EnumType[0].Options, 50004))
	assert.Nil(t, fdp.Service[0].Options)
}

func TestApply_SkipsGoogleFiles(t *testing.T) {
	fdp := shopFile()
	fdp.Name = proto.String("google/protobuf/thing.proto")

	assert.Zero(t, Apply(fdp, allKinds))
	assert.Nil(t, fdp.MessageType[0].Options)
}

func TestApply_EmptyTable(t *testing.T) {
	fdp := shopFile()
	assert.Zero(t, Apply(fdp, nil))
}

func TestApply_KeepsExistingUnknownFields(t *testing.T) {
	fdp := shopFile()
	Apply(fdp, allKinds)
	Apply(fdp, allKinds)

	assert.Equal(t, []string{"An order.", "An order."}, Read(fdp.MessageType[0].Options, 50001))
}

func TestApply_SurvivesMarshal(t *testing.T) {
	fdp := shopFile()
	Apply(fdp, allKinds)

	data, err := proto.Marshal(fdp)
	require.NoError(t, err)

	var decoded descriptorpb.FileDescriptorProto
	require.NoError(t, proto.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"primary key"}, Read(decoded.MessageType[0].Field[0].Options, 50002))
}

func TestApplySet(t *testing.T) {
	set := &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{shopFile(), shopFile()}}
	assert.Equal(t, 20, ApplySet(set, allKinds))
}

func TestResolve_OutOfRange(t *testing.T) {
	fdp := shopFile()
	tests := [][]int32{
		{4, 3},
		{4, 0, 2, 9},
		{5, 0, 2, 4},
		{6, 1},
		{6, 0, 2, 3},
		{7, 2},
		{8, 0},
		{4, 0, 2, 0, 5},
	}
	for _, path := range tests {
		kind, _ := resolve(fdp, path)
		assert.Empty(t, kind, "path %v", path)
	}
}

func TestRead_Nil(t *testing.T) {
	assert.Nil(t, Read(nil, 1))
}
