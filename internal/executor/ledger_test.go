package executor

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/suzuka/internal/models"
)

func newLedger(t *testing.T, dir string) *Ledger {
	t.Helper()
	l, err := NewLedger(LedgerConfig{Dir: dir, CacheSize: 2})
	require.NoError(t, err)
	return l
}

type account struct {
	key  ed25519.PrivateKey
	addr models.AccountAddress
}

func newAccount(t *testing.T) account {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return account{key: key, addr: models.AccountAddressFromPublicKey(pub)}
}

func (a account) tx(seq uint64) *models.SignedTransaction {
	tx := &models.SignedTransaction{Sender: a.addr, SequenceNumber: seq, Payload: []byte("noop"), ChainID: 4}
	tx.Sign(a.key)
	return tx
}

func executableBlock(data string, txs ...*models.SignedTransaction) models.ExecutableBlock {
	verified := make([]models.SignatureVerifiedTransaction, 0, len(txs))
	for _, tx := range txs {
		verified = append(verified, models.SignatureVerifiedTransaction{Valid: true, UserTransaction: tx})
	}
	return models.NewExecutableBlock(sha256.Sum256([]byte(data)), models.ExecutableTransactions{Unsharded: verified})
}

func TestExecuteBlockAdvancesHead(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "")
	defer l.Close()
	alice := newAccount(t)

	head, err := l.BlockHeadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head)

	first, err := l.ExecuteBlock(ctx, Opt, executableBlock("b1", alice.tx(0), alice.tx(1)))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Height)

	second, err := l.ExecuteBlock(ctx, Opt, executableBlock("b2", alice.tx(2)))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Height)
	assert.NotEqual(t, first.Commitment, second.Commitment)

	head, err = l.BlockHeadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), head)

	seq, err := l.SequenceNumber(ctx, alice.addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	stored, err := l.Commitment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, stored)

	_, err = l.Commitment(ctx, 9)
	assert.ErrorIs(t, err, ErrCommitmentNotFound)
}

func TestExecuteBlockSkipsInvalidTransactions(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "")
	defer l.Close()
	alice := newAccount(t)

	forged := alice.tx(0)
	forged.Payload = []byte("tampered")
	gap := alice.tx(5)

	_, err := l.ExecuteBlock(ctx, Opt, executableBlock("b1", forged, gap))
	require.NoError(t, err)

	seq, err := l.SequenceNumber(ctx, alice.addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)
}

func TestCommitmentIsDeterministic(t *testing.T) {
	ctx := context.Background()
	alice := newAccount(t)
	txs := []*models.SignedTransaction{alice.tx(0), alice.tx(1)}

	var commitments []models.BlockCommitment
	for range 2 {
		l := newLedger(t, "")
		c, err := l.ExecuteBlock(ctx, Fin, executableBlock("same", txs...))
		require.NoError(t, err)
		commitments = append(commitments, c)
		require.NoError(t, l.Close())
	}
	assert.Equal(t, commitments[0], commitments[1])
}

func TestReplayIsRejected(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, "")
	defer l.Close()

	_, err := l.ExecuteBlock(ctx, Opt, executableBlock("b1"))
	require.NoError(t, err)
	_, err = l.ExecuteBlock(ctx, Opt, executableBlock("b1"))
	assert.ErrorIs(t, err, ErrBlockReplay)

	// evict b1 from the cache; the persisted index still catches it
	for _, data := range []string{"b2", "b3", "b4"} {
		_, err = l.ExecuteBlock(ctx, Opt, executableBlock(data))
		require.NoError(t, err)
	}
	assert.False(t, l.executed.Contains(executableBlock("b1").BlockHash))
	_, err = l.ExecuteBlock(ctx, Opt, executableBlock("b1"))
	assert.ErrorIs(t, err, ErrBlockReplay)

	head, err := l.BlockHeadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), head)
}

func TestLedgerPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	l := newLedger(t, dir)
	c, err := l.ExecuteBlock(ctx, Opt, executableBlock("b1"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l = newLedger(t, dir)
	defer l.Close()
	head, err := l.BlockHeadHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.Height, head)
	_, err = l.ExecuteBlock(ctx, Opt, executableBlock("b1"))
	assert.ErrorIs(t, err, ErrBlockReplay)
}

func TestUnknownFinalityMode(t *testing.T) {
	l := newLedger(t, "")
	defer l.Close()
	_, err := l.ExecuteBlock(context.Background(), FinalityMode(7), executableBlock("b1"))
	assert.ErrorIs(t, err, ErrUnknownFinalityMode)
}
