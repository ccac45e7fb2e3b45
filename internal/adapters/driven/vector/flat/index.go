package flat

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/samber/oops"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Oversampling applied by Query: at least MinCandidates, or k*OversampleFactor.
const (
	OversampleFactor = 8
	MinCandidates    = 64
)

// Index holds one partition per domain.
type Index struct {
	mu         sync.RWMutex
	dimensions int
	partitions map[uint16]*partition
}

// partition is the exact-search store of one domain.
type partition struct {
	mu      sync.RWMutex
	ids     []domain.Sid
	vectors [][]float32
	live    *roaring64.Bitmap
}

// New creates an empty index. A dimensions value of 0 adopts the dimension
// of the first vector added.
func New(dimensions int) *Index {
	return &Index{
		dimensions: dimensions,
		partitions: make(map[uint16]*partition),
	}
}

// Dimensions returns the vector size the index accepts, or 0 if not yet known.
func (x *Index) Dimensions() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimensions
}

// EnsureDomain creates the partition if absent.
func (x *Index) EnsureDomain(_ context.Context, domainID uint16) error {
	x.partition(domainID, true)
	return nil
}

// partition returns the domain's partition, creating it when create is set.
func (x *Index) partition(domainID uint16, create bool) *partition {
	x.mu.RLock()
	p := x.partitions[domainID]
	x.mu.RUnlock()
	if p != nil || !create {
		return p
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if p = x.partitions[domainID]; p == nil {
		p = &partition{live: roaring64.New()}
		x.partitions[domainID] = p
	}
	return p
}

// checkDimensions validates a batch against the index dimension, adopting
// the batch's size only when every vector agrees and none is known yet.
func (x *Index) checkDimensions(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	want := x.dimensions
	if want == 0 {
		want = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != want {
			return oops.Code("vector.dimension_mismatch").In("flat").
				With("expected", want, "actual", len(v), "position", i).
				Wrapf(domain.ErrValidation, "vector %d has %d dimensions, index expects %d", i, len(v), want)
		}
	}
	x.dimensions = want
	return nil
}

// Add normalises and appends vectors. Ids already present are appended again.
func (x *Index) Add(_ context.Context, domainID uint16, ids []domain.Sid, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return oops.Code("vector.length_mismatch").In("flat").
			With("ids", len(ids), "vectors", len(vectors)).
			Wrapf(domain.ErrValidation, "%d ids for %d vectors", len(ids), len(vectors))
	}
	if err := x.checkDimensions(vectors); err != nil {
		return err
	}

	normalised := make([][]float32, len(vectors))
	for i, v := range vectors {
		normalised[i] = domain.Normalize(v)
	}

	p := x.partition(domainID, true)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, ids...)
	p.vectors = append(p.vectors, normalised...)
	for _, id := range ids {
		p.live.Add(uint64(id))
	}
	return nil
}

// RemoveDomain drops the partition.
func (x *Index) RemoveDomain(_ context.Context, domainID uint16) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.partitions, domainID)
	return nil
}

// RemoveDocument drops every entry of one document within one domain.
func (x *Index) RemoveDocument(_ context.Context, domainID, documentID uint16) (int, error) {
	p := x.partition(domainID, false)
	if p == nil {
		return 0, nil
	}
	return p.removeRange(domain.ScopedDocumentRange(domainID, documentID)), nil
}

// removeRange deletes entries whose id lies in r and returns how many were removed.
func (p *partition) removeRange(r domain.SidRange) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.anyLiveIn(r) {
		return 0
	}

	kept := 0
	for i, id := range p.ids {
		if r.Contains(id) {
			continue
		}
		p.ids[kept] = p.ids[i]
		p.vectors[kept] = p.vectors[i]
		kept++
	}
	removed := len(p.ids) - kept
	for i := kept; i < len(p.ids); i++ {
		p.vectors[i] = nil
	}
	p.ids = p.ids[:kept]
	p.vectors = p.vectors[:kept]

	lo, hi := uint64(r.Min), uint64(r.Max)
	if hi == math.MaxUint64 {
		p.live.RemoveRange(lo, hi)
		p.live.Remove(hi)
	} else {
		p.live.RemoveRange(lo, hi+1)
	}
	return removed
}

// anyLiveIn reports whether the live set intersects r.
func (p *partition) anyLiveIn(r domain.SidRange) bool {
	upTo := p.live.Rank(uint64(r.Max))
	if r.Min == 0 {
		return upTo > 0
	}
	return upTo > p.live.Rank(uint64(r.Min)-1)
}

// Query returns the nearest entries of one partition. A nil allowedDocs
// admits every document; a non-nil empty one admits none.
func (x *Index) Query(_ context.Context, domainID uint16, vector []float32, k int, allowedDocs []uint16) ([]driven.VectorHit, error) {
	p := x.partition(domainID, false)
	if p == nil {
		return nil, nil
	}
	if dims := x.Dimensions(); dims != 0 && len(vector) != dims {
		return nil, oops.Code("vector.dimension_mismatch").In("flat").
			With("expected", dims, "actual", len(vector)).
			Wrapf(domain.ErrValidation, "query has %d dimensions, index expects %d", len(vector), dims)
	}

	if allowedDocs != nil && len(allowedDocs) == 0 {
		return nil, nil
	}

	var allowed *roaring.Bitmap
	if allowedDocs != nil {
		allowed = roaring.New()
		for _, d := range allowedDocs {
			allowed.Add(uint32(d))
		}
	}

	q := domain.Normalize(vector)
	n := max(k*OversampleFactor, MinCandidates)

	p.mu.RLock()
	type scored struct {
		id  domain.Sid
		sim float64
	}
	candidates := make([]scored, 0, len(p.ids))
	for i, id := range p.ids {
		if allowed != nil && !allowed.Contains(uint32(id.DocumentID())) {
			continue
		}
		candidates = append(candidates, scored{id: id, sim: domain.Dot(q, p.vectors[i])})
	}
	p.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	seen := make(map[domain.Sid]struct{}, len(candidates))
	hits := make([]driven.VectorHit, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.id]; dup {
			continue
		}
		seen[c.id] = struct{}{}
		hits = append(hits, driven.VectorHit{ID: c.id, Similarity: c.sim})
	}
	return hits, nil
}

// IDs returns the distinct live ids of a partition in ascending order.
func (x *Index) IDs(_ context.Context, domainID uint16) ([]domain.Sid, error) {
	p := x.partition(domainID, false)
	if p == nil {
		return nil, nil
	}
	p.mu.RLock()
	raw := p.live.ToArray()
	p.mu.RUnlock()

	ids := make([]domain.Sid, len(raw))
	for i, v := range raw {
		ids[i] = domain.Sid(v)
	}
	return ids, nil
}

// Len returns the number of entries in a partition, duplicates included.
func (x *Index) Len(domainID uint16) int {
	p := x.partition(domainID, false)
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ids)
}

// Domains returns the ids of all partitions in ascending order.
func (x *Index) Domains() []uint16 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]uint16, 0, len(x.partitions))
	for id := range x.partitions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close drops every partition.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.partitions = make(map[uint16]*partition)
	return nil
}
