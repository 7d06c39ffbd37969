package models

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignedTransaction(t *testing.T, seq uint64) *SignedTransaction {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tx := &SignedTransaction{
		Sender:         AccountAddressFromPublicKey(key.Public().(ed25519.PublicKey)),
		SequenceNumber: seq,
		Payload:        []byte("transfer"),
		ChainID:        4,
	}
	tx.Sign(key)
	return tx
}

func TestSignedTransactionVerify(t *testing.T) {
	tx := newSignedTransaction(t, 1)
	assert.NoError(t, tx.Verify())

	tampered := *tx
	tampered.SequenceNumber = 2
	assert.ErrorIs(t, tampered.Verify(), ErrInvalidSignature)

	wrongSender := *tx
	wrongSender.Sender = AccountAddress{0x01}
	assert.ErrorIs(t, wrongSender.Verify(), ErrInvalidSignature)
}

func TestParseAccountAddress(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    byte
		wantErr bool
	}{
		{name: "short literal", input: "0x1", want: 0x01},
		{name: "odd length", input: "cafe1", want: 0xe1},
		{name: "too long", input: "0x" + string(make([]byte, 66)), wantErr: true},
		{name: "not hex", input: "0xzz", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAccountAddress(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, addr[31])
		})
	}
}

func TestNewBlockIDDependsOnParent(t *testing.T) {
	txs := []Transaction{{Data: []byte("a")}, {Data: []byte("b")}}
	first := NewBlock(HashValue{}, txs)
	second := NewBlock(first.ID, txs)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, NewBlock(HashValue{}, txs).ID)
	assert.Equal(t, 2*HashLength+2*(1+HashLength), first.Weight())
}

func TestBlockCommitmentEvent(t *testing.T) {
	c := BlockCommitment{Height: 3, Commitment: Sha3([]byte("x"))}
	accepted := AcceptedCommitment(c)
	got, ok := accepted.Accepted()
	assert.True(t, ok)
	assert.Equal(t, c, got)
	_, _, rejected := accepted.Rejected()
	assert.False(t, rejected)

	r := RejectedCommitment(7, RejectionInvalidCommitment)
	height, reason, ok := r.Rejected()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), height)
	assert.Equal(t, RejectionInvalidCommitment, reason)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"rejected","height":7,"reason":"InvalidCommitment"}`, string(data))
}

func TestHashValueText(t *testing.T) {
	h := Sha3([]byte("hello"))
	text, err := h.MarshalText()
	require.NoError(t, err)

	var parsed HashValue
	require.NoError(t, parsed.UnmarshalText(append([]byte("0x"), text...)))
	assert.Equal(t, h, parsed)

	_, err = HashValueFromSlice([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidHashLength)
}
