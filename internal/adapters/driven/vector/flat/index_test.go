package flat

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestIndex_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	ids := []domain.Sid{domain.SidOf(0, 0, 0), domain.SidOf(0, 0, 1), domain.SidOf(0, 1, 0)}
	vectors := [][]float32{{1, 0}, {0, 1}, {10, 1}}
	require.NoError(t, idx.Add(ctx, 0, ids, vectors))
	assert.Equal(t, 3, idx.Len(0))

	hits, err := idx.Query(ctx, 0, []float32{5, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, ids[0], hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, ids[2], hits[1].ID)
	assert.Equal(t, ids[1], hits[2].ID)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-6)
}

func TestIndex_QueryUnknownDomain(t *testing.T) {
	idx := New(2)

	hits, err := idx.Query(context.Background(), 9, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_QueryOversamplesAndTruncates(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	var ids []domain.Sid
	var vectors [][]float32
	for i := 0; i < 100; i++ {
		ids = append(ids, domain.SidOf(1, 0, uint16(i)))
		angle := float64(i) * 0.01
		vectors = append(vectors, []float32{float32(math.Cos(angle)), float32(math.Sin(angle))})
	}
	require.NoError(t, idx.Add(ctx, 1, ids, vectors))

	// k=1 still yields MinCandidates hits.
	hits, err := idx.Query(ctx, 1, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, hits, MinCandidates)

	// k=10 asks for 80.
	hits, err = idx.Query(ctx, 1, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 80)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
	}
}

func TestIndex_QueryDeduplicates(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	sid := domain.SidOf(0, 0, 0)
	require.NoError(t, idx.Add(ctx, 0, []domain.Sid{sid}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Add(ctx, 0, []domain.Sid{sid}, [][]float32{{0.9, 0.1}}))
	assert.Equal(t, 2, idx.Len(0))

	hits, err := idx.Query(ctx, 0, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)

	ids, err := idx.IDs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.Sid{sid}, ids)
}

func TestIndex_QueryAllowedDocuments(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	require.NoError(t, idx.Add(ctx, 3,
		[]domain.Sid{domain.SidOf(3, 0, 0), domain.SidOf(3, 1, 0), domain.SidOf(3, 2, 0)},
		[][]float32{{1, 0}, {1, 0.1}, {1, 0.2}}))

	hits, err := idx.Query(ctx, 3, []float32{1, 0}, 5, []uint16{1, 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, uint16(0), h.ID.DocumentID())
	}
}

func TestIndex_QueryEmptyAllowList(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	require.NoError(t, idx.Add(ctx, 0,
		[]domain.Sid{domain.SidOf(0, 0, 0), domain.SidOf(0, 1, 0)},
		[][]float32{{1, 0}, {0, 1}}))

	hits, err := idx.Query(ctx, 0, []float32{1, 0}, 5, []uint16{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Query(ctx, 0, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestIndex_RemoveDocument(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	keep := []domain.Sid{domain.SidOf(4, 0, 0), domain.SidOf(4, 2, 0)}
	drop := []domain.Sid{domain.SidOf(4, 1, 0), domain.SidOf(4, 1, 1), domain.SidOf(4, 1, 65535)}
	require.NoError(t, idx.Add(ctx, 4, append(append([]domain.Sid{}, keep...), drop...),
		[][]float32{{1, 0}, {1, 0}, {0, 1}, {0, 1}, {0, 1}}))

	removed, err := idx.RemoveDocument(ctx, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 2, idx.Len(4))

	ids, err := idx.IDs(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, keep, ids)

	// Removing again, or an absent document, is a no-op.
	removed, err = idx.RemoveDocument(ctx, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = idx.RemoveDocument(ctx, 77, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestIndex_RemoveDocument_ScopedToDomain(t *testing.T) {
	ctx := context.Background()
	idx := New(1)

	// A document id shared by two domains only disappears from the named one.
	require.NoError(t, idx.Add(ctx, 5, []domain.Sid{domain.SidOf(5, 1, 0)}, [][]float32{{1}}))
	require.NoError(t, idx.Add(ctx, 6, []domain.Sid{domain.SidOf(6, 1, 0)}, [][]float32{{1}}))

	removed, err := idx.RemoveDocument(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, idx.Len(5))
	assert.Equal(t, 1, idx.Len(6))
}

func TestIndex_RemoveDocument_LastSid(t *testing.T) {
	ctx := context.Background()
	idx := New(1)

	last := domain.Sid(math.MaxUint64 &^ 0xFFFF)
	require.NoError(t, idx.Add(ctx, math.MaxUint16, []domain.Sid{last}, [][]float32{{1}}))

	removed, err := idx.RemoveDocument(ctx, math.MaxUint16, math.MaxUint16)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err := idx.IDs(ctx, math.MaxUint16)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndex_RemoveDomain(t *testing.T) {
	ctx := context.Background()
	idx := New(1)

	require.NoError(t, idx.EnsureDomain(ctx, 2))
	require.NoError(t, idx.Add(ctx, 2, []domain.Sid{domain.SidOf(2, 0, 0)}, [][]float32{{1}}))
	assert.Equal(t, []uint16{2}, idx.Domains())

	require.NoError(t, idx.RemoveDomain(ctx, 2))
	assert.Equal(t, 0, idx.Len(2))
	assert.Empty(t, idx.Domains())

	hits, err := idx.Query(ctx, 2, []float32{1}, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Validation(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	err := idx.Add(ctx, 0, []domain.Sid{1, 2}, [][]float32{{1, 0, 0}})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = idx.Add(ctx, 0, []domain.Sid{1}, [][]float32{{1, 0}})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	require.NoError(t, idx.EnsureDomain(ctx, 0))
	_, err = idx.Query(ctx, 0, []float32{1}, 1, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestIndex_AdoptsFirstDimension(t *testing.T) {
	ctx := context.Background()
	idx := New(0)

	require.NoError(t, idx.Add(ctx, 0, []domain.Sid{0}, [][]float32{{1, 2, 3, 4}}))
	assert.Equal(t, 4, idx.Dimensions())

	err := idx.Add(ctx, 0, []domain.Sid{1}, [][]float32{{1, 2}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestIndex_MixedBatchLeavesDimensionUnset(t *testing.T) {
	ctx := context.Background()
	idx := New(0)

	err := idx.Add(ctx, 0, []domain.Sid{0, 1}, [][]float32{{1, 2, 3}, {1, 2}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, idx.Dimensions())
	assert.Equal(t, 0, idx.Len(0))

	// A consistent batch of another size is still accepted.
	require.NoError(t, idx.Add(ctx, 0, []domain.Sid{0}, [][]float32{{1, 2}}))
	assert.Equal(t, 2, idx.Dimensions())
}

func TestIndex_StoresNormalisedCopies(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	v := []float32{3, 4}
	require.NoError(t, idx.Add(ctx, 0, []domain.Sid{0}, [][]float32{v}))
	assert.Equal(t, []float32{3, 4}, v)

	hits, err := idx.Query(ctx, 0, []float32{3, 4}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestIndex_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	var wg sync.WaitGroup
	for d := 0; d < 8; d++ {
		wg.Add(1)
		go func(dom uint16) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sid := domain.SidOf(dom, uint16(i%5), uint16(i))
				assert.NoError(t, idx.Add(ctx, dom, []domain.Sid{sid}, [][]float32{{1, float32(i)}}))
				_, err := idx.Query(ctx, dom, []float32{1, 1}, 3, nil)
				assert.NoError(t, err)
				if i%10 == 9 {
					_, err = idx.RemoveDocument(ctx, dom, uint16(i%5))
					assert.NoError(t, err)
				}
			}
		}(uint16(d))
	}
	wg.Wait()
	assert.Len(t, idx.Domains(), 8)
}

func TestIndex_Close(t *testing.T) {
	ctx := context.Background()
	idx := New(1)
	require.NoError(t, idx.Add(ctx, 0, []domain.Sid{0}, [][]float32{{1}}))

	require.NoError(t, idx.Close())
	assert.Equal(t, 0, idx.Len(0))
}
