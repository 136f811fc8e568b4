package storage

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchBufferedFlushOnComplete(t *testing.T) {
	memory := NewMemoryStore()
	chain := NewChain([]Backend{memory})
	ctx := context.Background()

	batch, err := chain.BeginBatch(ctx)
	require.NoError(t, err)

	require.NoError(t, batch.Save(KeyData, []byte("data")))
	require.NoError(t, batch.Save(KeyVersion, []byte("3.1.0")))

	_, err = memory.Load(ctx, KeyData)
	assert.ErrorIs(t, err, ErrNotFound, "staged writes must not land before Complete")

	require.NoError(t, batch.Complete(ctx))

	value, err := memory.Load(ctx, KeyData)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), value)
	value, err = memory.Load(ctx, KeyVersion)
	require.NoError(t, err)
	assert.Equal(t, []byte("3.1.0"), value)
}

func TestBatchLoadObservesStagedWrites(t *testing.T) {
	memory := NewMemoryStore()
	chain := NewChain([]Backend{memory})
	ctx := context.Background()

	require.NoError(t, memory.Save(ctx, KeyVersion, []byte("3.0.0")))

	batch, err := chain.BeginBatch(ctx)
	require.NoError(t, err)
	defer batch.Abort()

	require.NoError(t, batch.Save(KeyData, []byte("staged")))

	value, err := batch.Load(ctx, KeyData)
	require.NoError(t, err)
	assert.Equal(t, []byte("staged"), value)

	value, err = batch.Load(ctx, KeyVersion)
	require.NoError(t, err)
	assert.Equal(t, []byte("3.0.0"), value, "unstaged keys read through the chain")
}

func TestBatchAbortDiscards(t *testing.T) {
	memory := NewMemoryStore()
	chain := NewChain([]Backend{memory})
	ctx := context.Background()

	batch, err := chain.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Save(KeyData, []byte("doomed")))
	batch.Abort()

	_, err = memory.Load(ctx, KeyData)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatchSingleInFlight(t *testing.T) {
	chain := NewChain([]Backend{NewMemoryStore()})
	ctx := context.Background()

	first, err := chain.BeginBatch(ctx)
	require.NoError(t, err)

	_, err = chain.BeginBatch(ctx)
	assert.ErrorIs(t, err, ErrBatchOpen)

	require.NoError(t, first.Complete(ctx))

	second, err := chain.BeginBatch(ctx)
	require.NoError(t, err)
	second.Abort()

	third, err := chain.BeginBatch(ctx)
	require.NoError(t, err, "an aborted batch releases the slot")
	third.Abort()
}

func TestBatchDoneRejectsFurtherUse(t *testing.T) {
	chain := NewChain([]Backend{NewMemoryStore()})
	ctx := context.Background()

	batch, err := chain.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Complete(ctx))

	assert.ErrorIs(t, batch.Save(KeyData, []byte("late")), ErrBatchDone)
	_, err = batch.Load(ctx, KeyData)
	assert.ErrorIs(t, err, ErrBatchDone)
	assert.ErrorIs(t, batch.Complete(ctx), ErrBatchDone)
	batch.Abort() // no-op after completion
}

func TestBatchRidesTransactionalTier(t *testing.T) {
	badger, err := NewBadgerStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer badger.Close()

	memory := NewMemoryStore()
	chain := NewChain([]Backend{badger, memory})
	ctx := context.Background()

	batch, err := chain.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Save(KeyData, []byte("data")))
	require.NoError(t, batch.Save(KeySensitive, []byte("envelopes")))
	require.NoError(t, batch.Complete(ctx))

	value, err := badger.Load(ctx, KeyData)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), value)

	_, err = memory.Load(ctx, KeyData)
	assert.ErrorIs(t, err, ErrNotFound, "the batch rides the transactional tier only")
}

func TestBatchTransactionalAbort(t *testing.T) {
	badger, err := NewBadgerStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer badger.Close()

	chain := NewChain([]Backend{badger})
	ctx := context.Background()

	batch, err := chain.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Save(KeyData, []byte("doomed")))
	batch.Abort()

	_, err = badger.Load(ctx, KeyData)
	assert.ErrorIs(t, err, ErrNotFound)
}
