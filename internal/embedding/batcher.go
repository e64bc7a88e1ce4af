package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Batcher defaults.
const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
	DefaultBatchDelay  = 200 * time.Millisecond
)

// Input is one text to embed, identified by a caller key (the digest).
type Input struct {
	Key  string
	Text string
}

// Outcome holds vectors and per-item errors aligned with the inputs. A nil vector
// with a nil error means the item was not attempted before cancellation.
type Outcome struct {
	Vectors [][]float32
	Errors  []error
	Created int
	Failed  int
}

// Batcher requests embeddings in bounded sub-batches with a delay between them.
type Batcher struct {
	embedder    Embedder
	BatchSize   int
	Concurrency int
	Delay       time.Duration
	CallTimeout time.Duration
}

// NewBatcher creates a Batcher over embedder with default sizing.
func NewBatcher(embedder Embedder) *Batcher {
	return &Batcher{
		embedder:    embedder,
		BatchSize:   DefaultBatchSize,
		Concurrency: DefaultConcurrency,
		Delay:       DefaultBatchDelay,
		CallTimeout: DefaultCallTimeout,
	}
}

// EmbedAll embeds every input. Per-item failures are logged and counted, never
// returned. The only error returned is the context's, in which case the outcome
// holds whatever completed before cancellation.
func (b *Batcher) EmbedAll(ctx context.Context, inputs []Input) (*Outcome, error) {
	out := &Outcome{Vectors: make([][]float32, len(inputs))}
	if len(inputs) == 0 {
		return out, nil
	}
	if b.embedder == nil {
		return nil, errors.New("batcher has no embedder")
	}

	batchSize := b.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	errs := make([]error, len(inputs))
	out.Errors = errs
	var cancelled error

	for start := 0; start < len(inputs); start += batchSize {
		if start > 0 && b.Delay > 0 {
			timer := time.NewTimer(b.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}

		end := min(start+batchSize, len(inputs))
		b.embedBatch(ctx, inputs, start, end, concurrency, out.Vectors, errs)

		log.Debug().
			Int("from", start).
			Int("to", end).
			Int("total", len(inputs)).
			Msg("Embedding sub-batch completed")
	}

	dim := 0
	for i, vec := range out.Vectors {
		if vec == nil {
			if errs[i] != nil {
				out.Failed++
			}
			continue
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			out.Vectors[i] = nil
			errs[i] = fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
			out.Failed++
			log.Warn().
				Str("key", inputs[i].Key).
				Int("dim", len(vec)).
				Int("expected", dim).
				Msg("Embedding dimension mismatch, dropping item")
			continue
		}
		out.Created++
	}

	if cancelled == nil {
		cancelled = ctx.Err()
	}
	return out, cancelled
}

func (b *Batcher) embedBatch(ctx context.Context, inputs []Input, start, end, concurrency int, vectors [][]float32, errs []error) {
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	for i := start; i < end; i++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			vec, err := b.embedOne(ctx, inputs[i].Text)
			if err != nil && ctx.Err() != nil {
				// Cancelled calls are not attempted items
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[i] = err
				log.Warn().
					Err(err).
					Str("key", inputs[i].Key).
					Msg("Embedding failed, dropping item")
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Batcher) embedOne(ctx context.Context, text string) ([]float32, error) {
	if b.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.CallTimeout)
		defer cancel()
	}

	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	if hasNonFinite(vec) {
		return nil, fmt.Errorf("embedding has non-finite values")
	}
	return vec, nil
}
