package storage

import (
	"context"
	"sync"
)

// Batch stages a multi-key write so related payloads (data, sensitive
// values, version) land together. When the chain's first transactional
// tier is available the batch rides its native write set; otherwise
// writes are buffered and flushed through the chain on Complete.
//
// Only one batch may be in flight per chain at a time.
type Batch struct {
	chain  *Chain
	tier   BackendBatch // nil in buffered mode
	staged map[string][]byte
	order  []string

	mu   sync.Mutex
	done bool
}

// BeginBatch starts a batch. Returns ErrBatchOpen while another batch
// from this chain is still in flight.
func (c *Chain) BeginBatch(ctx context.Context) (*Batch, error) {
	c.batchMu.Lock()
	if c.batchOpen {
		c.batchMu.Unlock()
		return nil, ErrBatchOpen
	}
	c.batchOpen = true
	c.batchMu.Unlock()

	b := &Batch{
		chain:  c,
		staged: make(map[string][]byte),
	}
	for _, backend := range c.backends {
		t, ok := backend.(Transactional)
		if !ok {
			continue
		}
		tier, err := t.BeginBatch(ctx)
		if err != nil {
			c.log.Warn().Err(err).Str("backend", backend.Name()).Msg("batch unavailable, buffering writes")
			break
		}
		b.tier = tier
		break
	}
	return b, nil
}

// Save stages a write. The value is visible to Load on this batch
// before Complete.
func (b *Batch) Save(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return ErrBatchDone
	}
	if b.tier != nil {
		if err := b.tier.Save(key, value); err != nil {
			return err
		}
	}
	if _, seen := b.staged[key]; !seen {
		b.order = append(b.order, key)
	}
	staged := make([]byte, len(value))
	copy(staged, value)
	b.staged[key] = staged
	return nil
}

// Load returns the staged value for key when one exists, otherwise
// reads through the chain.
func (b *Batch) Load(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return nil, ErrBatchDone
	}
	if staged, ok := b.staged[key]; ok {
		out := make([]byte, len(staged))
		copy(out, staged)
		b.mu.Unlock()
		return out, nil
	}
	b.mu.Unlock()
	return b.chain.Load(ctx, key)
}

// Complete commits the batch. In transactional mode the tier flushes
// atomically; in buffered mode each staged write goes through the
// chain in staging order, stopping at the first failure.
func (b *Batch) Complete(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return ErrBatchDone
	}
	b.finish()

	if b.tier != nil {
		return b.tier.Flush()
	}
	for _, key := range b.order {
		if err := b.chain.Save(ctx, key, b.staged[key]); err != nil {
			return err
		}
	}
	return nil
}

// Abort discards all staged writes. Aborting a finished batch is a
// no-op.
func (b *Batch) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.finish()
	if b.tier != nil {
		b.tier.Cancel()
	}
}

func (b *Batch) finish() {
	b.done = true
	b.chain.batchMu.Lock()
	b.chain.batchOpen = false
	b.chain.batchMu.Unlock()
}
