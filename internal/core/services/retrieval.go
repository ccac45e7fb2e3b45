package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// DefaultHydrateConcurrency bounds how many partitions load at once.
const DefaultHydrateConcurrency = 4

// temporaryKeyPrefix marks keys derived by TemporaryDomainKey.
const temporaryKeyPrefix = "web_search_"

// RetrievalOption configures a RetrievalService.
type RetrievalOption func(*RetrievalService)

// WithMinScore sets the default re-rank threshold used when a search passes none.
func WithMinScore(minScore float64) RetrievalOption {
	return func(s *RetrievalService) {
		s.minScore = minScore
	}
}

// WithHydrateConcurrency sets how many domains hydrate in parallel.
func WithHydrateConcurrency(n int) RetrievalOption {
	return func(s *RetrievalService) {
		if n > 0 {
			s.hydrateConcurrency = n
		}
	}
}

// RetrievalService owns the relational store, the vector index and the
// models used for ingestion and search.
type RetrievalService struct {
	store     driven.SemanticStore
	index     driven.VectorIndex
	embedder  driven.EmbeddingService
	reranker  driven.Reranker
	segmenter driven.Segmenter

	minScore           float64
	hydrateConcurrency int

	stateMu sync.RWMutex
	state   domain.LifecycleState

	// writeMu serialises mutations so the store rows and the index partition
	// change together.
	writeMu sync.Mutex
}

// NewRetrievalService creates a retrieval service. Call Hydrate before use.
func NewRetrievalService(
	store driven.SemanticStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	reranker driven.Reranker,
	segmenter driven.Segmenter,
	opts ...RetrievalOption,
) *RetrievalService {
	s := &RetrievalService{
		store:              store,
		index:              index,
		embedder:           embedder,
		reranker:           reranker,
		segmenter:          segmenter,
		minScore:           domain.DefaultMinRerankScore,
		hydrateConcurrency: DefaultHydrateConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TemporaryDomainKey derives a stable key for an ad-hoc domain built for one query.
func TemporaryDomainKey(query string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(query)))
	return temporaryKeyPrefix + id.String()
}

// State reports the lifecycle state.
func (s *RetrievalService) State() domain.LifecycleState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *RetrievalService) setState(state domain.LifecycleState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
	logger.Debug("retrieval state: %s", state)
}

func (s *RetrievalService) requireReady() error {
	if state := s.State(); state != domain.StateReady {
		return fmt.Errorf("%w: state is %s", domain.ErrNotReady, state)
	}
	return nil
}

// Hydrate purges temporary domains and rebuilds every persistent partition
// from the stored atoms. Running it again yields the same index.
func (s *RetrievalService) Hydrate(ctx context.Context) error {
	logger.Section("Hydration")
	defer logger.Timer("hydration")()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.setState(domain.StateHydrating)

	if err := s.hydrate(ctx); err != nil {
		s.setState(domain.StateUninitialized)
		return err
	}

	s.setState(domain.StateReady)
	return nil
}

func (s *RetrievalService) hydrate(ctx context.Context) error {
	temporary := true
	scratch, err := s.store.ListDomains(ctx, &temporary)
	if err != nil {
		return fmt.Errorf("list temporary domains: %w", err)
	}
	for _, d := range scratch {
		if _, err := s.store.UnsetDomain(ctx, d.ID); err != nil {
			return fmt.Errorf("purge temporary domain %q: %w", d.Key, err)
		}
		if err := s.index.RemoveDomain(ctx, d.ID); err != nil {
			return fmt.Errorf("drop partition %d: %w", d.ID, err)
		}
		logger.Debug("purged temporary domain %q (%d)", d.Key, d.ID)
	}

	temporary = false
	persistent, err := s.store.ListDomains(ctx, &temporary)
	if err != nil {
		return fmt.Errorf("list domains: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.hydrateConcurrency)
	for _, d := range persistent {
		g.Go(func() error {
			n, err := s.loadPartition(gctx, d.ID)
			if err != nil {
				return fmt.Errorf("hydrate domain %q: %w", d.Key, err)
			}
			logger.Debug("hydrated domain %q (%d): %d atoms", d.Key, d.ID, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("hydrated %d domains, purged %d temporary", len(persistent), len(scratch))
	return nil
}

// loadPartition replaces a domain's partition with its persisted atoms.
func (s *RetrievalService) loadPartition(ctx context.Context, domainID uint16) (int, error) {
	atoms, err := s.store.ListAtoms(ctx, domainID)
	if err != nil {
		return 0, err
	}
	return s.replacePartition(ctx, domainID, atoms)
}

// replacePartition drops the partition and adds atoms back in one batch.
func (s *RetrievalService) replacePartition(ctx context.Context, domainID uint16, atoms []domain.Atom) (int, error) {
	if err := s.index.RemoveDomain(ctx, domainID); err != nil {
		return 0, err
	}
	if err := s.index.EnsureDomain(ctx, domainID); err != nil {
		return 0, err
	}
	if len(atoms) == 0 {
		return 0, nil
	}

	ids := make([]domain.Sid, len(atoms))
	vectors := make([][]float32, len(atoms))
	for i := range atoms {
		ids[i] = atoms[i].ID
		vectors[i] = atoms[i].Vector
	}
	if err := s.index.Add(ctx, domainID, ids, vectors); err != nil {
		return 0, err
	}
	return len(atoms), nil
}

// AddDomain creates the domain or returns the existing one with that key.
func (s *RetrievalService) AddDomain(ctx context.Context, key string, temporary bool, description string) (*domain.SemanticDomain, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: domain key is required", domain.ErrValidation)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	d := &domain.SemanticDomain{Key: key, Meta: description, Temporary: temporary}
	res, err := s.store.SetDomain(ctx, d, false)
	if err != nil {
		return nil, fmt.Errorf("add domain %q: %w", key, err)
	}
	if err := s.index.EnsureDomain(ctx, d.ID); err != nil {
		return nil, fmt.Errorf("create partition %d: %w", d.ID, err)
	}
	if res.Created {
		logger.Info("created domain %q (%d)", d.Key, d.ID)
	}
	return d, nil
}

// resolve looks ref up as a key, then as a decimal id.
func (s *RetrievalService) resolve(ctx context.Context, ref string) (*domain.SemanticDomain, error) {
	d, err := s.store.GetDomainByKey(ctx, ref)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return d, err
	}

	id, parseErr := strconv.ParseUint(ref, 10, 16)
	if parseErr != nil {
		return nil, fmt.Errorf("domain %q: %w", ref, domain.ErrNotFound)
	}
	return s.store.GetDomain(ctx, uint16(id))
}

// HasDomain reports whether ref resolves to a domain.
func (s *RetrievalService) HasDomain(ctx context.Context, ref string) (bool, error) {
	_, err := s.resolve(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// GetDomain resolves ref.
func (s *RetrievalService) GetDomain(ctx context.Context, ref string) (*domain.SemanticDomain, error) {
	return s.resolve(ctx, ref)
}

// ListDomains returns all domains ordered by id.
func (s *RetrievalService) ListDomains(ctx context.Context) ([]domain.SemanticDomain, error) {
	return s.store.ListDomains(ctx, nil)
}

// RemoveDomain deletes the domain with its documents and atoms, then drops its partition.
func (s *RetrievalService) RemoveDomain(ctx context.Context, ref string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	d, err := s.resolve(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	removed, err := s.store.UnsetDomain(ctx, d.ID)
	if err != nil {
		return false, fmt.Errorf("remove domain %q: %w", d.Key, err)
	}
	if err := s.index.RemoveDomain(ctx, d.ID); err != nil {
		return removed, fmt.Errorf("drop partition %d: %w", d.ID, err)
	}
	logger.Info("removed domain %q (%d)", d.Key, d.ID)
	return removed, nil
}

// AddDocument segments and embeds text, then stores it as the atoms of the
// document keyed by key. Atoms left from an earlier version are removed first.
func (s *RetrievalService) AddDocument(
	ctx context.Context, domainID uint16, key, text string, mtime time.Time, description string,
) (*domain.SemanticDocument, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: document key is required", domain.ErrValidation)
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if _, err := s.store.GetDomain(ctx, domainID); err != nil {
		return nil, err
	}

	logger.Debug("ingesting %s into domain %d", key, domainID)

	chunks, err := s.segmenter.Segment(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", key, err)
	}
	if len(chunks) > domain.MaxComponent+1 {
		return nil, fmt.Errorf("%w: %s has %d chunks, at most %d fit a document",
			domain.ErrValidation, key, len(chunks), domain.MaxComponent+1)
	}

	var vectors [][]float32
	if len(chunks) > 0 {
		stop := logger.Timer("vectorize")
		vectors, err = s.embedder.EmbedBatch(ctx, chunks)
		stop()
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", key, err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("%w: %d embeddings for %d chunks of %s",
				domain.ErrConsistency, len(vectors), len(chunks), key)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc := &domain.SemanticDocument{DomainID: domainID, Key: key, Meta: description, Mtime: mtime}
	ids, err := s.writeAtoms(ctx, doc, chunks, vectors)
	if err != nil {
		return nil, err
	}

	if _, err := s.index.RemoveDocument(ctx, domainID, doc.ID); err != nil {
		return nil, fmt.Errorf("clear index for %s: %w", key, err)
	}
	if len(ids) > 0 {
		if err := s.index.Add(ctx, domainID, ids, vectors); err != nil {
			return nil, fmt.Errorf("index %s: %w", key, err)
		}
	}

	logger.Debug("indexed %s as document %d with %d atoms", key, doc.ID, len(ids))
	return doc, nil
}

// writeAtoms upserts doc and replaces its atoms in one transaction.
func (s *RetrievalService) writeAtoms(
	ctx context.Context, doc *domain.SemanticDocument, chunks []string, vectors [][]float32,
) (ids []domain.Sid, err error) {
	defer logger.Timer("add_atoms")()

	txCtx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = s.store.Rollback(txCtx)
		}
	}()

	if _, err = s.store.SetDocument(txCtx, doc, false); err != nil {
		return nil, fmt.Errorf("store document %s: %w", doc.Key, err)
	}
	if _, err = s.store.UnsetAtoms(txCtx, doc.DomainID, doc.ID); err != nil {
		return nil, fmt.Errorf("clear atoms of %s: %w", doc.Key, err)
	}

	ids = make([]domain.Sid, len(chunks))
	for i, chunk := range chunks {
		ids[i] = domain.SidOf(doc.DomainID, doc.ID, uint16(i))
		atom := &domain.Atom{ID: ids[i], Text: chunk, Vector: vectors[i]}
		if err = s.store.SetAtom(txCtx, atom); err != nil {
			return nil, fmt.Errorf("store atom %s: %w", ids[i], err)
		}
	}

	if err = s.store.Commit(txCtx); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetDocument looks a document up by key within a domain.
func (s *RetrievalService) GetDocument(ctx context.Context, domainID uint16, key string) (*domain.SemanticDocument, error) {
	return s.store.GetDocumentByKey(ctx, domainID, key)
}

// ListDocuments returns a domain's documents ordered by id.
func (s *RetrievalService) ListDocuments(ctx context.Context, domainID uint16) ([]domain.SemanticDocument, error) {
	if _, err := s.store.GetDomain(ctx, domainID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, domainID)
}

// RemoveDocument drops the document's index entries, then its rows.
func (s *RetrievalService) RemoveDocument(ctx context.Context, domainID, documentID uint16) (bool, error) {
	if err := s.requireReady(); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := s.index.RemoveDocument(ctx, domainID, documentID)
	if err != nil {
		return false, fmt.Errorf("remove document %d from index: %w", documentID, err)
	}
	removed, err := s.store.UnsetDocument(ctx, domainID, documentID)
	if err != nil {
		return false, fmt.Errorf("remove document %d: %w", documentID, err)
	}
	logger.Debug("removed document %d/%d (%d index entries)", domainID, documentID, n)
	return removed, nil
}

// Search embeds query, gathers oversampled candidates from the domain's
// partition, re-ranks their text against the raw query and groups the
// survivors by document key in document order.
func (s *RetrievalService) Search(
	ctx context.Context, ref, query string, opts domain.SearchOptions,
) (domain.SearchResults, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrValidation)
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if s.reranker == nil {
		return nil, domain.ErrRerankerUnavailable
	}

	d, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	minScore := s.minScore
	if opts.MinScore > 0 {
		minScore = opts.MinScore
	}

	logger.Section("Search")
	logger.Debug("domain=%q query=%q top_k=%d min_score=%.2f", d.Key, query, topK, minScore)
	defer logger.Timer("search")()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Query(ctx, d.ID, vector, topK, opts.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	logger.Debug("%d candidates from partition %d", len(hits), d.ID)
	if len(hits) == 0 {
		return domain.SearchResults{}, nil
	}

	candidates, err := s.hydrateCandidates(ctx, d.ID, hits)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return domain.SearchResults{}, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.atom.Text
	}
	ranked, err := s.reranker.Rerank(ctx, query, texts, minScore, topK)
	if err != nil {
		return nil, fmt.Errorf("rerank with %s: %w", s.reranker.Name(), err)
	}

	results := make(domain.SearchResults)
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("%w: %s ranked index %d of %d candidates",
				domain.ErrConsistency, s.reranker.Name(), r.Index, len(candidates))
		}
		c := candidates[r.Index]
		results[c.key] = append(results[c.key], domain.SearchHit{
			AtomID: c.atom.ID,
			Score:  r.Score,
			Text:   c.atom.Text,
		})
	}
	for key := range results {
		group := results[key]
		sort.Slice(group, func(i, j int) bool { return group[i].AtomID < group[j].AtomID })
	}

	logger.Debug("%d hits across %d documents", results.Len(), len(results))
	return results, nil
}

// candidate is an index hit joined with its atom and document key.
type candidate struct {
	atom *domain.Atom
	key  string
}

// hydrateCandidates loads the atoms and document keys behind index hits,
// preserving hit order. Hits with no stored atom are skipped.
func (s *RetrievalService) hydrateCandidates(ctx context.Context, domainID uint16, hits []driven.VectorHit) ([]candidate, error) {
	ids := make([]domain.Sid, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	atoms, err := s.store.GetAtoms(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load atoms: %w", err)
	}

	docIDs := make(map[uint16]struct{})
	for _, a := range atoms {
		docIDs[a.DocumentID()] = struct{}{}
	}

	var (
		mu   sync.Mutex
		keys = make(map[uint16]string, len(docIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.hydrateConcurrency)
	for docID := range docIDs {
		g.Go(func() error {
			doc, err := s.store.GetDocument(gctx, domainID, docID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load document %d: %w", docID, err)
			}
			mu.Lock()
			keys[docID] = doc.Key
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(hits))
	for _, h := range hits {
		a, ok := atoms[h.ID]
		if !ok {
			logger.Warn("index entry %s has no stored atom; reconcile domain %d", h.ID, domainID)
			continue
		}
		key, ok := keys[a.DocumentID()]
		if !ok {
			logger.Warn("atom %s has no stored document; reconcile domain %d", h.ID, domainID)
			continue
		}
		candidates = append(candidates, candidate{atom: a, key: key})
	}
	return candidates, nil
}

// Reconcile rebuilds one domain's partition from its persisted atoms and
// reports how far the partition had drifted.
func (s *RetrievalService) Reconcile(ctx context.Context, domainID uint16) (*domain.ReconcileReport, error) {
	if _, err := s.store.GetDomain(ctx, domainID); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	before := s.index.Len(domainID)
	indexed, err := s.index.IDs(ctx, domainID)
	if err != nil {
		return nil, err
	}
	atoms, err := s.store.ListAtoms(ctx, domainID)
	if err != nil {
		return nil, fmt.Errorf("list atoms of domain %d: %w", domainID, err)
	}

	live := roaring64.New()
	for _, id := range indexed {
		live.Add(uint64(id))
	}
	stored := roaring64.New()
	for i := range atoms {
		stored.Add(uint64(atoms[i].ID))
	}

	report := &domain.ReconcileReport{
		DomainID: domainID,
		Before:   before,
		Missing:  int(roaring64.AndNot(stored, live).GetCardinality()),
		Stale:    int(roaring64.AndNot(live, stored).GetCardinality()),
	}

	n, err := s.replacePartition(ctx, domainID, atoms)
	if err != nil {
		return nil, fmt.Errorf("reload domain %d: %w", domainID, err)
	}
	report.Indexed = n

	logger.Info("reconciled domain %d: indexed=%d missing=%d stale=%d", domainID, n, report.Missing, report.Stale)
	return report, nil
}
