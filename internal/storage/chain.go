package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Chain fans settings I/O out over an ordered list of backends, most
// durable first. Every backend call is isolated: a panicking or failing
// tier degrades the chain instead of crashing it.
//
// Reads are first-hit: divergent values in deeper tiers are not
// reconciled, the shallowest hit wins until the next save lands there.
type Chain struct {
	backends []Backend
	log      zerolog.Logger

	batchMu   sync.Mutex
	batchOpen bool
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger used for tier failures.
func WithLogger(log zerolog.Logger) ChainOption {
	return func(c *Chain) {
		c.log = log
	}
}

// NewChain builds a chain over backends in falling durability order.
func NewChain(backends []Backend, opts ...ChainOption) *Chain {
	c := &Chain{
		backends: backends,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backends returns the tiers in chain order.
func (c *Chain) Backends() []Backend {
	out := make([]Backend, len(c.backends))
	copy(out, c.backends)
	return out
}

// Save writes key to the first backend that accepts it. Deeper tiers
// are not written; they serve as fallbacks, not replicas. Returns
// ErrExhausted when every tier fails.
func (c *Chain) Save(ctx context.Context, key string, value []byte) error {
	var errs []error
	for _, b := range c.backends {
		err := c.trySave(ctx, b, key, value)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		c.log.Warn().Err(err).Str("backend", b.Name()).Str("key", key).Msg("save failed, falling through")
	}
	return fmt.Errorf("save %q: %w: %w", key, ErrExhausted, errors.Join(errs...))
}

// Load returns the value from the shallowest tier that has it,
// continuing past both misses and failures. Returns ErrNotFound when
// every tier misses and at least one answered, ErrExhausted when every
// tier failed outright.
func (c *Chain) Load(ctx context.Context, key string) ([]byte, error) {
	var (
		errs   []error
		missed bool
	)
	for _, b := range c.backends {
		value, err := c.tryLoad(ctx, b, key)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, ErrNotFound) {
			missed = true
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		c.log.Warn().Err(err).Str("backend", b.Name()).Str("key", key).Msg("load failed, falling through")
	}
	if missed {
		return nil, fmt.Errorf("load %q: %w", key, ErrNotFound)
	}
	return nil, fmt.Errorf("load %q: %w: %w", key, ErrExhausted, errors.Join(errs...))
}

// Remove deletes key from every tier so the value cannot resurrect
// from a deeper one on a later load. Tier failures are collected, not
// short-circuited.
func (c *Chain) Remove(ctx context.Context, key string) error {
	var errs []error
	for _, b := range c.backends {
		if err := c.tryRemove(ctx, b, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			c.log.Warn().Err(err).Str("backend", b.Name()).Str("key", key).Msg("remove failed")
		}
	}
	if len(errs) == len(c.backends) && len(errs) > 0 {
		return fmt.Errorf("remove %q: %w: %w", key, ErrExhausted, errors.Join(errs...))
	}
	return errors.Join(errs...)
}

// Close closes every backend and reports the joined failures.
func (c *Chain) Close() error {
	var errs []error
	for _, b := range c.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) trySave(ctx context.Context, b Backend, key string, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return b.Save(ctx, key, value)
}

func (c *Chain) tryLoad(ctx context.Context, b Backend, key string) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("backend panic: %v", r)
		}
	}()
	return b.Load(ctx, key)
}

func (c *Chain) tryRemove(ctx context.Context, b Backend, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return b.Remove(ctx, key)
}
