package compiler

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/dbsmedya/protomod/internal/frame"
	"github.com/dbsmedya/protomod/internal/registry"
	"github.com/dbsmedya/protomod/internal/stub"
)

// UnitsFromDescriptorSet splits a serialized FileDescriptorSet produced
// elsewhere into compiled units. Each unit's descriptor is the record's bytes
// as found in bin. Records are decoded only to read names and imports; a file
// whose imports cannot all be found still yields a unit, with placeholder
// types in its stub.
func UnitsFromDescriptorSet(bin []byte) ([]registry.CompiledUnit, error) {
	records, err := frame.Split(bin)
	if err != nil {
		return nil, err
	}

	local := new(protoregistry.Files)
	res := &setResolver{local: local}
	units := make([]registry.CompiledUnit, 0, len(records))

	for i, rec := range records {
		fdp := &descriptorpb.FileDescriptorProto{}
		if err := proto.Unmarshal(rec, fdp); err != nil {
			return nil, fmt.Errorf("record %d is not a file descriptor: %w", i, err)
		}

		fd, err := protodesc.FileOptions{AllowUnresolvable: true}.New(fdp, res)
		if err != nil {
			return nil, fmt.Errorf("failed to link %q: %w", fdp.GetName(), err)
		}
		if err := local.RegisterFile(fd); err != nil {
			return nil, fmt.Errorf("descriptor set repeats %q: %w", fdp.GetName(), err)
		}

		units = append(units, registry.CompiledUnit{
			Name:         fd.Path(),
			Package:      string(fd.Package()),
			Descriptor:   rec,
			Dependencies: Dependencies(fd),
			Stub:         stub.Generate(fd),
		})
	}
	return units, nil
}

// setResolver resolves against the files read so far, then the global registry.
type setResolver struct {
	local *protoregistry.Files
}

func (r *setResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	fd, err := r.local.FindFileByPath(path)
	if errors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalFiles.FindFileByPath(path)
	}
	return fd, err
}

func (r *setResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	d, err := r.local.FindDescriptorByName(name)
	if errors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalFiles.FindDescriptorByName(name)
	}
	return d, err
}
