package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func record(payload []byte) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func TestExtract_SingleRecord(t *testing.T) {
	buf := record([]byte("hello"))

	payload, rest, err := Extract(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
	assert.Empty(t, rest)
}

func TestExtract_MultiByteLength(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 300)
	buf := record(payload)

	// 300 needs two varint bytes: 0xAC 0x02
	assert.Equal(t, []byte{0x0A, 0xAC, 0x02}, buf[:3])

	got, rest, err := Extract(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Empty(t, rest)
}

func TestExtract_ReturnsRemainder(t *testing.T) {
	buf := append(record([]byte("one")), record([]byte("two"))...)

	payload, rest, err := Extract(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), payload)
	assert.Equal(t, record([]byte("two")), rest)
}

func TestExtract_PayloadDoesNotAliasRemainder(t *testing.T) {
	buf := append(record([]byte("one")), record([]byte("two"))...)

	payload, _, err := Extract(buf)
	require.NoError(t, err)
	_ = append(payload, 'X')

	_, rest, err := Extract(buf)
	require.NoError(t, err)
	assert.Equal(t, record([]byte("two")), rest, "appending to a payload must not clobber the next record")
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "empty", buf: nil},
		{name: "wrong tag", buf: []byte{0x12, 0x01, 0x00}},
		{name: "truncated varint", buf: []byte{0x0A, 0x80}},
		{name: "overlong varint", buf: append([]byte{0x0A}, bytes.Repeat([]byte{0xFF}, 11)...)},
		{name: "length exceeds buffer", buf: []byte{0x0A, 0x05, 'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Extract(tt.buf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFrame))

			var mfe *MalformedFrameError
			require.ErrorAs(t, err, &mfe)
			assert.NotEmpty(t, mfe.Reason)
		})
	}
}

func TestExtractSingle(t *testing.T) {
	payload, err := ExtractSingle(record([]byte("only")))
	require.NoError(t, err)
	assert.Equal(t, []byte("only"), payload)

	_, err = ExtractSingle(append(record([]byte("only")), 0x00))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Contains(t, err.Error(), "does not match")
}

func TestSplit_DescriptorSet(t *testing.T) {
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			{Name: proto.String("a.proto"), Package: proto.String("a")},
			{Name: proto.String("b.proto"), Package: proto.String("b"), Dependency: []string{"a.proto"}},
			{Name: proto.String("c.proto")},
		},
	}
	buf, err := proto.Marshal(set)
	require.NoError(t, err)

	records, err := Split(buf)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, rec := range records {
		fd := &descriptorpb.FileDescriptorProto{}
		require.NoError(t, proto.Unmarshal(rec, fd))
		assert.Equal(t, set.File[i].GetName(), fd.GetName())
	}
}

func TestSplit_PreservesUnknownBytes(t *testing.T) {
	fd := &descriptorpb.FileDescriptorProto{Name: proto.String("x.proto")}
	// field 9999 is not part of FileDescriptorProto
	unknown := protowire.AppendTag(nil, 9999, protowire.VarintType)
	unknown = protowire.AppendVarint(unknown, 42)
	fd.ProtoReflect().SetUnknown(unknown)

	inner, err := proto.Marshal(fd)
	require.NoError(t, err)

	records, err := Split(record(inner))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, inner, records[0])
}

func TestSplit_ReportsOffset(t *testing.T) {
	buf := append(record([]byte("ok")), 0x12, 0x00)

	_, err := Split(buf)
	var mfe *MalformedFrameError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, 4, mfe.Offset)
}

func TestSplit_Empty(t *testing.T) {
	records, err := Split(nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}
