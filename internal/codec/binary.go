package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

var ErrMalformed = errors.New("malformed binary encoding")

const (
	txSender protowire.Number = iota + 1
	txSequenceNumber
	txPayload
	txMaxGasAmount
	txGasUnitPrice
	txExpiration
	txChainID
	txPublicKey
	txSignature
)

const (
	blockID protowire.Number = iota + 1
	blockParent
	blockTransaction
)

func marshalTransaction(tx *models.SignedTransaction) []byte {
	var b []byte
	b = appendBytes(b, txSender, tx.Sender[:])
	b = appendVarint(b, txSequenceNumber, tx.SequenceNumber)
	b = appendBytes(b, txPayload, tx.Payload)
	b = appendVarint(b, txMaxGasAmount, tx.MaxGasAmount)
	b = appendVarint(b, txGasUnitPrice, tx.GasUnitPrice)
	b = appendVarint(b, txExpiration, tx.ExpirationTimestampSecs)
	b = appendVarint(b, txChainID, uint64(tx.ChainID))
	b = appendBytes(b, txPublicKey, tx.PublicKey)
	b = appendBytes(b, txSignature, tx.Signature)
	return b
}

func unmarshalTransaction(b []byte) (*models.SignedTransaction, error) {
	tx := &models.SignedTransaction{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == txSender && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if len(v) != len(tx.Sender) {
				return 0, fmt.Errorf("%w: sender has %d bytes", ErrMalformed, len(v))
			}
			copy(tx.Sender[:], v)
			return n, nil
		case num == txPayload && typ == protowire.BytesType:
			return consumeBytesInto(b, &tx.Payload)
		case num == txPublicKey && typ == protowire.BytesType:
			return consumeBytesInto(b, &tx.PublicKey)
		case num == txSignature && typ == protowire.BytesType:
			return consumeBytesInto(b, &tx.Signature)
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return n, nil
			}
			switch num {
			case txSequenceNumber:
				tx.SequenceNumber = v
			case txMaxGasAmount:
				tx.MaxGasAmount = v
			case txGasUnitPrice:
				tx.GasUnitPrice = v
			case txExpiration:
				tx.ExpirationTimestampSecs = v
			case txChainID:
				tx.ChainID = uint8(v)
			}
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

func marshalBlock(block *models.Block) []byte {
	var b []byte
	b = appendBytes(b, blockID, block.ID[:])
	b = appendBytes(b, blockParent, block.Parent[:])
	for _, t := range block.Transactions {
		b = appendBytes(b, blockTransaction, t.Data)
	}
	return b
}

func unmarshalBlock(b []byte) (*models.Block, error) {
	block := &models.Block{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		switch num {
		case blockID:
			h, err := models.HashValueFromSlice(v)
			if err != nil {
				return 0, fmt.Errorf("%w: block id: %w", ErrMalformed, err)
			}
			block.ID = h
		case blockParent:
			h, err := models.HashValueFromSlice(v)
			if err != nil {
				return 0, fmt.Errorf("%w: block parent: %w", ErrMalformed, err)
			}
			block.Parent = h
		case blockTransaction:
			block.Transactions = append(block.Transactions, models.Transaction{Data: append([]byte(nil), v...)})
		}
		return n, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode block: %w", err)
	}
	return block, nil
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func consumeBytesInto(b []byte, dst *[]byte) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

// consumeFields walks every field in b. The callback returns the number of bytes it consumed
// after the tag, or a negative protowire error code.
func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
