// Package da talks to the M1 DA light node: the service that totally orders blobs and streams
// them back by height.
package da

import (
	"context"
	"fmt"
)

// BlobType tags how the light node delivered a blob. Only sequenced blocks are executable.
type BlobType int

const (
	PassedThroughBlob BlobType = iota + 1
	SequencedBlobIntent
	SequencedBlobBlock
)

func (t BlobType) String() string {
	switch t {
	case PassedThroughBlob:
		return "PassedThroughBlob"
	case SequencedBlobIntent:
		return "SequencedBlobIntent"
	case SequencedBlobBlock:
		return "SequencedBlobBlock"
	default:
		return fmt.Sprintf("BlobType(%d)", int(t))
	}
}

type Blob struct {
	BlobID    string
	Data      []byte
	Height    uint64
	Timestamp uint64
}

type BlobResponse struct {
	Type BlobType
	Blob *Blob
}

type BlobWrite struct {
	Data []byte
}

type BatchWriteRequest struct {
	Blobs []BlobWrite
}

type BatchWriteResponse struct {
	Blobs []*BlobResponse
}

type StreamReadFromHeightRequest struct {
	Height uint64
}

// StreamReadFromHeightResponse carries one blob; Blob is nil when the server sent an empty envelope.
type StreamReadFromHeightResponse struct {
	Blob *BlobResponse
}

// BlobStream yields responses in DA order. Recv returns io.EOF when the stream ends.
type BlobStream interface {
	Recv() (*StreamReadFromHeightResponse, error)
}

// LightNodeClient is the subset of the light node API the node consumes.
type LightNodeClient interface {
	BatchWrite(ctx context.Context, req *BatchWriteRequest) (*BatchWriteResponse, error)
	StreamReadFromHeight(ctx context.Context, req *StreamReadFromHeightRequest) (BlobStream, error)
}
