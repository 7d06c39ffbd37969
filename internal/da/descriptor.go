package da

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/movementlabsxyz/suzuka/internal/utils"
)

const (
	protoPackage = "movementlabs.protocol_units.da.m1.light_node.v1beta1"
	ServiceName  = protoPackage + ".LightNodeService"

	batchWriteMethod           = ServiceName + ".BatchWrite"
	streamReadFromHeightMethod = ServiceName + ".StreamReadFromHeight"
)

var (
	descOnce sync.Once
	descFile protoreflect.FileDescriptor
	descErr  error
)

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Type:   typ.Enum(),
	}
}

func messageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := field(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String("." + protoPackage + "." + typeName)
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func inOneof(f *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(index)
	return f
}

// lightNodeFileDescriptor mirrors light_node.proto of the M1 DA light node.
func lightNodeFileDescriptor() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("movementlabs/protocol_units/da/m1/light_node/v1beta1/light_node.proto"),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Blob"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("blob_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field("data", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					field("height", 3, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					field("timestamp", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				},
			},
			{
				Name: proto.String("BlobResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					inOneof(messageField("passed_through_blob", 1, "Blob"), 0),
					inOneof(messageField("sequenced_blob_intent", 2, "Blob"), 0),
					inOneof(messageField("sequenced_blob_block", 3, "Blob"), 0),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("blob_type")}},
			},
			{
				Name:  proto.String("BlobWrite"),
				Field: []*descriptorpb.FieldDescriptorProto{field("data", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES)},
			},
			{
				Name:  proto.String("BatchWriteRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{repeated(messageField("blobs", 1, "BlobWrite"))},
			},
			{
				Name:  proto.String("BatchWriteResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{repeated(messageField("blobs", 1, "BlobResponse"))},
			},
			{
				Name:  proto.String("StreamReadFromHeightRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{field("height", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64)},
			},
			{
				Name:  proto.String("StreamReadFromHeightResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{messageField("blob", 1, "BlobResponse")},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("LightNodeService"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:            proto.String("StreamReadFromHeight"),
						InputType:       proto.String("." + protoPackage + ".StreamReadFromHeightRequest"),
						OutputType:      proto.String("." + protoPackage + ".StreamReadFromHeightResponse"),
						ServerStreaming: proto.Bool(true),
					},
					{
						Name:       proto.String("BatchWrite"),
						InputType:  proto.String("." + protoPackage + ".BatchWriteRequest"),
						OutputType: proto.String("." + protoPackage + ".BatchWriteResponse"),
					},
				},
			},
		},
	}
}

func fileDescriptor() (protoreflect.FileDescriptor, error) {
	descOnce.Do(func() {
		descFile, descErr = protodesc.NewFile(lightNodeFileDescriptor(), nil)
		if descErr != nil {
			descErr = fmt.Errorf("failed to build light node descriptor: %w", descErr)
		}
	})
	return descFile, descErr
}

// newMessage returns an empty dynamic message of the named type.
func newMessage(name protoreflect.Name) (*dynamicpb.Message, error) {
	fd, err := fileDescriptor()
	if err != nil {
		return nil, err
	}
	md := fd.Messages().ByName(name)
	if md == nil {
		return nil, fmt.Errorf("message %s not found in light node descriptor", name)
	}
	return dynamicpb.NewMessage(md), nil
}

// methodDescriptor resolves "pkg.Service.Method" against the descriptor.
func methodDescriptor(methodFullName string) (protoreflect.MethodDescriptor, error) {
	_, method, err := utils.ParseMethodFullName(methodFullName)
	if err != nil {
		return nil, err
	}
	fd, err := fileDescriptor()
	if err != nil {
		return nil, err
	}
	svc := fd.Services().ByName("LightNodeService")
	md := svc.Methods().ByName(protoreflect.Name(method))
	if md == nil {
		return nil, fmt.Errorf("method %s not found in light node descriptor", methodFullName)
	}
	return md, nil
}

var blobTypeFields = map[BlobType]protoreflect.Name{
	PassedThroughBlob:   "passed_through_blob",
	SequencedBlobIntent: "sequenced_blob_intent",
	SequencedBlobBlock:  "sequenced_blob_block",
}

func setField(msg protoreflect.Message, name protoreflect.Name, v protoreflect.Value) {
	msg.Set(msg.Descriptor().Fields().ByName(name), v)
}

func getField(msg protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return msg.Get(msg.Descriptor().Fields().ByName(name))
}

func blobToMessage(msg protoreflect.Message, b *Blob) {
	setField(msg, "blob_id", protoreflect.ValueOfString(b.BlobID))
	setField(msg, "data", protoreflect.ValueOfBytes(b.Data))
	setField(msg, "height", protoreflect.ValueOfUint64(b.Height))
	setField(msg, "timestamp", protoreflect.ValueOfUint64(b.Timestamp))
}

func blobFromMessage(msg protoreflect.Message) *Blob {
	return &Blob{
		BlobID:    getField(msg, "blob_id").String(),
		Data:      getField(msg, "data").Bytes(),
		Height:    getField(msg, "height").Uint(),
		Timestamp: getField(msg, "timestamp").Uint(),
	}
}

func blobResponseToMessage(msg protoreflect.Message, r *BlobResponse) error {
	if r == nil {
		return nil
	}
	name, ok := blobTypeFields[r.Type]
	if !ok {
		return fmt.Errorf("unknown blob type %s", r.Type)
	}
	fd := msg.Descriptor().Fields().ByName(name)
	inner := msg.NewField(fd)
	if r.Blob != nil {
		blobToMessage(inner.Message(), r.Blob)
	}
	msg.Set(fd, inner)
	return nil
}

// blobResponseFromMessage returns nil when no oneof member is set.
func blobResponseFromMessage(msg protoreflect.Message) *BlobResponse {
	oneof := msg.Descriptor().Oneofs().ByName("blob_type")
	fd := msg.WhichOneof(oneof)
	if fd == nil {
		return nil
	}
	for typ, name := range blobTypeFields {
		if fd.Name() == name {
			return &BlobResponse{Type: typ, Blob: blobFromMessage(msg.Get(fd).Message())}
		}
	}
	return nil
}

func encodeBatchWriteRequest(req *BatchWriteRequest) (*dynamicpb.Message, error) {
	msg, err := newMessage("BatchWriteRequest")
	if err != nil {
		return nil, err
	}
	list := msg.Mutable(msg.Descriptor().Fields().ByName("blobs")).List()
	for _, blob := range req.Blobs {
		item := list.NewElement()
		setField(item.Message(), "data", protoreflect.ValueOfBytes(blob.Data))
		list.Append(item)
	}
	return msg, nil
}

func decodeBatchWriteRequest(msg protoreflect.Message) *BatchWriteRequest {
	list := getField(msg, "blobs").List()
	req := &BatchWriteRequest{Blobs: make([]BlobWrite, 0, list.Len())}
	for i := range list.Len() {
		req.Blobs = append(req.Blobs, BlobWrite{Data: getField(list.Get(i).Message(), "data").Bytes()})
	}
	return req
}

func encodeBatchWriteResponse(resp *BatchWriteResponse) (*dynamicpb.Message, error) {
	msg, err := newMessage("BatchWriteResponse")
	if err != nil {
		return nil, err
	}
	list := msg.Mutable(msg.Descriptor().Fields().ByName("blobs")).List()
	for _, blob := range resp.Blobs {
		item := list.NewElement()
		if err := blobResponseToMessage(item.Message(), blob); err != nil {
			return nil, err
		}
		list.Append(item)
	}
	return msg, nil
}

func decodeBatchWriteResponse(msg protoreflect.Message) *BatchWriteResponse {
	list := getField(msg, "blobs").List()
	resp := &BatchWriteResponse{Blobs: make([]*BlobResponse, 0, list.Len())}
	for i := range list.Len() {
		resp.Blobs = append(resp.Blobs, blobResponseFromMessage(list.Get(i).Message()))
	}
	return resp
}

func encodeStreamRequest(req *StreamReadFromHeightRequest) (*dynamicpb.Message, error) {
	msg, err := newMessage("StreamReadFromHeightRequest")
	if err != nil {
		return nil, err
	}
	setField(msg, "height", protoreflect.ValueOfUint64(req.Height))
	return msg, nil
}

func decodeStreamRequest(msg protoreflect.Message) *StreamReadFromHeightRequest {
	return &StreamReadFromHeightRequest{Height: getField(msg, "height").Uint()}
}

func encodeStreamResponse(resp *StreamReadFromHeightResponse) (*dynamicpb.Message, error) {
	msg, err := newMessage("StreamReadFromHeightResponse")
	if err != nil {
		return nil, err
	}
	if resp.Blob == nil {
		return msg, nil
	}
	fd := msg.Descriptor().Fields().ByName("blob")
	inner := msg.NewField(fd)
	if err := blobResponseToMessage(inner.Message(), resp.Blob); err != nil {
		return nil, err
	}
	msg.Set(fd, inner)
	return msg, nil
}

func decodeStreamResponse(msg protoreflect.Message) (*StreamReadFromHeightResponse, error) {
	fd := msg.Descriptor().Fields().ByName("blob")
	if !msg.Has(fd) {
		return &StreamReadFromHeightResponse{}, nil
	}
	inner, err := utils.GetNestedField(msg, "blob")
	if err != nil {
		return nil, err
	}
	return &StreamReadFromHeightResponse{Blob: blobResponseFromMessage(inner.Message())}, nil
}
