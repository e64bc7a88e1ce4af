package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputs(texts ...string) []Input {
	out := make([]Input, len(texts))
	for i, text := range texts {
		out[i] = Input{Key: text, Text: text}
	}
	return out
}

func TestBatcher_AlignedOutcome(t *testing.T) {
	embedder := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if text == "bad" {
			return nil, errors.New("provider error")
		}
		return []float32{float32(len(text)), 1}, nil
	})

	b := NewBatcher(embedder)
	b.BatchSize = 2
	b.Delay = 0

	out, err := b.EmbedAll(context.Background(), inputs("a", "bad", "ccc", "dd", "bad"))
	require.NoError(t, err)

	require.Len(t, out.Vectors, 5)
	assert.Equal(t, []float32{1, 1}, out.Vectors[0])
	assert.Nil(t, out.Vectors[1])
	assert.Equal(t, []float32{3, 1}, out.Vectors[2])
	assert.Equal(t, []float32{2, 1}, out.Vectors[3])
	assert.Nil(t, out.Vectors[4])
	assert.Equal(t, 3, out.Created)
	assert.Equal(t, 2, out.Failed)
	assert.EqualError(t, out.Errors[1], "provider error")
	assert.NoError(t, out.Errors[0])
}

func TestBatcher_Empty(t *testing.T) {
	out, err := NewBatcher(nil).EmbedAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Vectors)
}

func TestBatcher_ConcurrencyBound(t *testing.T) {
	var inflight, peak atomic.Int32
	embedder := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return []float32{1}, nil
	})

	b := NewBatcher(embedder)
	b.BatchSize = 20
	b.Concurrency = 3
	b.Delay = 0

	out, err := b.EmbedAll(context.Background(), inputs("1", "2", "3", "4", "5", "6", "7", "8", "9", "10"))
	require.NoError(t, err)
	assert.Equal(t, 10, out.Created)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatcher_DelayBetweenSubBatches(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time
	embedder := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		return []float32{1}, nil
	})

	b := NewBatcher(embedder)
	b.BatchSize = 1
	b.Delay = 30 * time.Millisecond

	start := time.Now()
	_, err := b.EmbedAll(context.Background(), inputs("a", "b", "c"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Len(t, times, 3)
}

func TestBatcher_PerCallTimeout(t *testing.T) {
	embedder := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if text == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []float32{1, 2}, nil
	})

	b := NewBatcher(embedder)
	b.CallTimeout = 20 * time.Millisecond

	start := time.Now()
	out, err := b.EmbedAll(context.Background(), inputs("fast", "slow"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Failed)
}

func TestBatcher_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	embedder := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return []float32{1}, nil
	})

	b := NewBatcher(embedder)
	b.BatchSize = 1
	b.Delay = time.Millisecond

	out, err := b.EmbedAll(ctx, inputs("a", "b", "c", "d"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, out.Created)
	assert.Nil(t, out.Vectors[2])
	assert.Nil(t, out.Vectors[3])
}

func TestBatcher_DimensionGuard(t *testing.T) {
	embedder := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if text == "odd" {
			return []float32{1, 2, 3}, nil
		}
		return []float32{1, 2}, nil
	})

	b := NewBatcher(embedder)
	b.Delay = 0

	out, err := b.EmbedAll(context.Background(), inputs("a", "odd", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 1, out.Failed)
	assert.Nil(t, out.Vectors[1])
	require.Len(t, out.Errors, 3)
	assert.ErrorIs(t, out.Errors[1], ErrDimensionMismatch)
	assert.NoError(t, out.Errors[0])
	assert.NoError(t, out.Errors[2])
}

func TestBatcher_RejectsNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	embedder := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{nan, 1}, nil
	})

	out, err := NewBatcher(embedder).EmbedAll(context.Background(), inputs("a"))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Created)
	assert.Equal(t, 1, out.Failed)
}
