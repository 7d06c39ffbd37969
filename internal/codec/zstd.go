package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// MaxDecompressedSize bounds a single decompressed blob.
const MaxDecompressedSize = 64 << 20

var ErrMsgTooLarge = errors.New("msg too large to be compressed")

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func initZstd() {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	})
}

func compress(payload []byte) ([]byte, error) {
	if len(payload) > MaxDecompressedSize {
		return nil, fmt.Errorf("%w: (%d) > (%d)", ErrMsgTooLarge, len(payload), MaxDecompressedSize)
	}
	initZstd()
	if zstdErr != nil {
		return nil, fmt.Errorf("failed to initialise zstd: %w", zstdErr)
	}
	return zstdEncoder.EncodeAll(payload, []byte{byte(FormatZstd)}), nil
}

func decompress(payload []byte) ([]byte, error) {
	initZstd()
	if zstdErr != nil {
		return nil, fmt.Errorf("failed to initialise zstd: %w", zstdErr)
	}
	out, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress blob: %w", err)
	}
	return out, nil
}
