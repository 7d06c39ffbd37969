// Package codec encodes transactions and blocks for the DA wire. Every encoding starts with a
// format marker so a decoder accepts whatever any writer produced.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

// Format identifies an encoding by its first byte.
type Format byte

const (
	FormatBinary Format = 0x01
	FormatZstd   Format = 0x02
	FormatJSON   Format = '{'
)

var (
	ErrEmptyInput    = errors.New("empty input")
	ErrUnknownFormat = errors.New("unknown encoding format")
)

// ParseFormat maps a configuration value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "binary":
		return FormatBinary, nil
	case "zstd":
		return FormatZstd, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatZstd:
		return "zstd"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%#x)", byte(f))
	}
}

// Codec writes transactions and blocks in one format.
type Codec struct {
	format Format
}

func New(format Format) *Codec {
	return &Codec{format: format}
}

func (c *Codec) Format() Format {
	return c.format
}

func (c *Codec) EncodeTransaction(tx *models.SignedTransaction) ([]byte, error) {
	switch c.format {
	case FormatJSON:
		return json.Marshal(tx)
	case FormatBinary:
		return append([]byte{byte(FormatBinary)}, marshalTransaction(tx)...), nil
	case FormatZstd:
		return compress(marshalTransaction(tx))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, c.format)
	}
}

func (c *Codec) EncodeBlock(block *models.Block) ([]byte, error) {
	switch c.format {
	case FormatJSON:
		return json.Marshal(block)
	case FormatBinary:
		return append([]byte{byte(FormatBinary)}, marshalBlock(block)...), nil
	case FormatZstd:
		return compress(marshalBlock(block))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, c.format)
	}
}

// DecodeTransaction decodes a transaction in any supported format.
func DecodeTransaction(data []byte) (*models.SignedTransaction, error) {
	payload, format, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	if format == FormatJSON {
		var tx models.SignedTransaction
		if err := json.Unmarshal(payload, &tx); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction JSON: %w", err)
		}
		return &tx, nil
	}
	return unmarshalTransaction(payload)
}

// DecodeBlock decodes a block in any supported format.
func DecodeBlock(data []byte) (*models.Block, error) {
	payload, format, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	if format == FormatJSON {
		var block models.Block
		if err := json.Unmarshal(payload, &block); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block JSON: %w", err)
		}
		return &block, nil
	}
	return unmarshalBlock(payload)
}

// unwrap strips the format marker and decompresses when needed. JSON keeps its first byte.
func unwrap(data []byte) ([]byte, Format, error) {
	if len(data) == 0 {
		return nil, 0, ErrEmptyInput
	}
	switch Format(data[0]) {
	case FormatJSON:
		return data, FormatJSON, nil
	case FormatBinary:
		return data[1:], FormatBinary, nil
	case FormatZstd:
		payload, err := decompress(data[1:])
		if err != nil {
			return nil, 0, err
		}
		return payload, FormatZstd, nil
	default:
		return nil, 0, fmt.Errorf("%w: marker %#x", ErrUnknownFormat, data[0])
	}
}
