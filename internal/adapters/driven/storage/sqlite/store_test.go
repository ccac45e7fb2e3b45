package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "sercha-rag-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

// createTestDomain creates a persistent domain and returns its id.
func createTestDomain(t *testing.T, store *Store, key string) uint16 {
	t.Helper()
	res, err := store.SetDomain(context.Background(), &domain.SemanticDomain{Key: key}, false)
	require.NoError(t, err)
	return res.ID
}

// createTestDocument creates a document in the given domain and returns its id.
func createTestDocument(t *testing.T, store *Store, domainID uint16, key string) uint16 {
	t.Helper()
	res, err := store.SetDocument(context.Background(), &domain.SemanticDocument{
		DomainID: domainID,
		Key:      key,
		Mtime:    fixedNow,
	}, false)
	require.NoError(t, err)
	return res.ID
}

func countRows(t *testing.T, store *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.Equal(t, DatabaseFile, filepath.Base(store.Path()))
	_, err := os.Stat(store.Path())
	assert.NoError(t, err)

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	createTestDomain(t, store, "alpha")
	require.NoError(t, store.Close())

	reopened, err := NewStore(tempDir)
	require.NoError(t, err)
	defer reopened.Close()

	d, err := reopened.GetDomainByKey(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), d.ID)
}

// ==================== Domains ====================

func TestSetDomain_SequentialIDs(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.Equal(t, uint16(0), createTestDomain(t, store, "a"))
	assert.Equal(t, uint16(1), createTestDomain(t, store, "b"))
	assert.Equal(t, uint16(2), createTestDomain(t, store, "c"))
}

func TestSetDomain_CreateOrGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	first := &domain.SemanticDomain{Key: "recipes", Meta: "cooking"}
	res, err := store.SetDomain(ctx, first, false)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, fixedNow.Unix(), first.Created.Unix())

	again := &domain.SemanticDomain{Key: "recipes", Meta: "ignored", Temporary: true}
	res, err = store.SetDomain(ctx, again, false)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, uint16(0), res.ID)

	// Existing row is returned unchanged.
	assert.Equal(t, "cooking", again.Meta)
	assert.False(t, again.Temporary)
}

func TestSetDomain_ExplicitID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	res, err := store.SetDomain(ctx, &domain.SemanticDomain{ID: 7, Key: "seven"}, true)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), res.ID)

	// Next sequential id continues after the max.
	assert.Equal(t, uint16(8), createTestDomain(t, store, "eight"))

	_, err = store.SetDomain(ctx, &domain.SemanticDomain{ID: 7, Key: "other"}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	// Nothing was partially applied.
	_, err = store.GetDomainByKey(ctx, "other")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSetDomain_IDSpaceExhausted(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.SetDomain(ctx, &domain.SemanticDomain{ID: domain.MaxComponent, Key: "last"}, true)
	require.NoError(t, err)

	_, err = store.SetDomain(ctx, &domain.SemanticDomain{Key: "overflow"}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, 0, store.Depth(ctx))
}

func TestSetDomain_EmptyKey(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.SetDomain(context.Background(), &domain.SemanticDomain{}, false)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestGetDomain_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetDomain(context.Background(), 42)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.GetDomainByKey(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListDomains_FilterTemporary(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	createTestDomain(t, store, "persistent")
	_, err := store.SetDomain(ctx, &domain.SemanticDomain{Key: "scratch", Temporary: true}, false)
	require.NoError(t, err)

	all, err := store.ListDomains(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	yes := true
	temp, err := store.ListDomains(ctx, &yes)
	require.NoError(t, err)
	require.Len(t, temp, 1)
	assert.Equal(t, "scratch", temp[0].Key)
	assert.True(t, temp[0].Temporary)

	no := false
	persistent, err := store.ListDomains(ctx, &no)
	require.NoError(t, err)
	require.Len(t, persistent, 1)
	assert.Equal(t, "persistent", persistent[0].Key)
}

func TestUnsetDomain_Cascades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	docID := createTestDocument(t, store, domID, "doc.md")
	for i := uint16(0); i < 3; i++ {
		require.NoError(t, store.SetAtom(ctx, &domain.Atom{
			ID:     domain.SidOf(domID, docID, i),
			Text:   "text",
			Vector: []float32{1, 0},
		}))
	}
	other := createTestDomain(t, store, "other")
	otherDoc := createTestDocument(t, store, other, "keep.md")
	require.NoError(t, store.SetAtom(ctx, &domain.Atom{
		ID: domain.SidOf(other, otherDoc, 0), Text: "keep", Vector: []float32{0, 1},
	}))

	removed, err := store.UnsetDomain(ctx, domID)
	require.NoError(t, err)
	assert.True(t, removed)

	docs, err := store.ListDocuments(ctx, domID)
	require.NoError(t, err)
	assert.Empty(t, docs)
	atoms, err := store.ListAtoms(ctx, domID)
	require.NoError(t, err)
	assert.Empty(t, atoms)

	assert.Equal(t, 1, countRows(t, store, "semantic_atom"))
	assert.Equal(t, 1, countRows(t, store, "semantic_document"))

	removed, err = store.UnsetDomain(ctx, domID)
	require.NoError(t, err)
	assert.False(t, removed)
}

// ==================== Documents ====================

func TestSetDocument_SequentialAndStable(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	assert.Equal(t, uint16(0), createTestDocument(t, store, domID, "a.md"))
	assert.Equal(t, uint16(1), createTestDocument(t, store, domID, "b.md"))
	assert.Equal(t, uint16(2), createTestDocument(t, store, domID, "c.md"))

	later := fixedNow.Add(time.Hour)
	doc := &domain.SemanticDocument{DomainID: domID, Key: "b.md", Mtime: later, Meta: "updated"}
	res, err := store.SetDocument(ctx, doc, false)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, uint16(1), res.ID)

	got, err := store.GetDocument(ctx, domID, 1)
	require.NoError(t, err)
	assert.Equal(t, "b.md", got.Key)
	assert.Equal(t, "updated", got.Meta)
	assert.Equal(t, later.Unix(), got.Mtime.Unix())
}

func TestSetDocument_IDsScopedToDomain(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	first := createTestDomain(t, store, "first")
	second := createTestDomain(t, store, "second")

	createTestDocument(t, store, first, "a.md")
	createTestDocument(t, store, first, "b.md")
	assert.Equal(t, uint16(0), createTestDocument(t, store, second, "a.md"))
}

func TestSetDocument_ExplicitIDConflict(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	createTestDocument(t, store, domID, "owner.md")

	_, err := store.SetDocument(ctx, &domain.SemanticDocument{DomainID: domID, ID: 0, Key: "intruder.md"}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = store.GetDocumentByKey(ctx, domID, "intruder.md")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSetDocument_UnknownDomain(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.SetDocument(context.Background(), &domain.SemanticDocument{DomainID: 9, Key: "x"}, false)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUnsetDocument_CascadesToAtoms(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	keep := createTestDocument(t, store, domID, "keep.md")
	drop := createTestDocument(t, store, domID, "drop.md")
	require.NoError(t, store.SetAtom(ctx, &domain.Atom{ID: domain.SidOf(domID, keep, 0), Text: "k", Vector: []float32{1}}))
	require.NoError(t, store.SetAtom(ctx, &domain.Atom{ID: domain.SidOf(domID, drop, 0), Text: "d", Vector: []float32{1}}))

	removed, err := store.UnsetDocument(ctx, domID, drop)
	require.NoError(t, err)
	assert.True(t, removed)

	atoms, err := store.ListAtoms(ctx, domID)
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, keep, atoms[0].DocumentID())

	removed, err = store.UnsetDocument(ctx, domID, drop)
	require.NoError(t, err)
	assert.False(t, removed)
}

// ==================== Atoms ====================

func TestSetAtom_RoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	docID := createTestDocument(t, store, domID, "doc.md")
	sid := domain.SidOf(domID, docID, 2)

	require.NoError(t, store.SetAtom(ctx, &domain.Atom{ID: sid, Text: "hello", Vector: []float32{0.5, -1.25, 3}}))

	got, err := store.GetAtom(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, sid, got.ID)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, []float32{0.5, -1.25, 3}, got.Vector)
	assert.Equal(t, fixedNow.Unix(), got.Created.Unix())

	// Same Sid replaces text and vector.
	require.NoError(t, store.SetAtom(ctx, &domain.Atom{ID: sid, Text: "bye", Vector: []float32{1}}))
	got, err = store.GetAtom(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "bye", got.Text)
	assert.Equal(t, []float32{1}, got.Vector)
}

func TestSetAtom_HighDomainID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	// Sids of domains >= 0x8000 are negative once stored as signed integers.
	_, err := store.SetDomain(ctx, &domain.SemanticDomain{ID: 0xFFFE, Key: "high"}, true)
	require.NoError(t, err)
	docID := createTestDocument(t, store, 0xFFFE, "doc.md")
	sid := domain.SidOf(0xFFFE, docID, 65535)

	require.NoError(t, store.SetAtom(ctx, &domain.Atom{ID: sid, Text: "edge", Vector: []float32{1}}))

	atoms, err := store.ListAtoms(ctx, 0xFFFE)
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, sid, atoms[0].ID)
}

func TestSetAtom_Validation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	docID := createTestDocument(t, store, domID, "doc.md")

	tests := []struct {
		name string
		atom *domain.Atom
	}{
		{"nil atom", nil},
		{"empty text", &domain.Atom{ID: domain.SidOf(domID, docID, 0), Vector: []float32{1}}},
		{"nil vector", &domain.Atom{ID: domain.SidOf(domID, docID, 0), Text: "x"}},
		{"unknown document", &domain.Atom{ID: domain.SidOf(domID, 99, 0), Text: "x", Vector: []float32{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SetAtom(ctx, tt.atom)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), err.Error())
		})
	}
	assert.Equal(t, 0, countRows(t, store, "semantic_atom"))
}

func TestGetAtoms_OmitsMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	docID := createTestDocument(t, store, domID, "doc.md")
	present := domain.SidOf(domID, docID, 0)
	require.NoError(t, store.SetAtom(ctx, &domain.Atom{ID: present, Text: "here", Vector: []float32{1}}))

	got, err := store.GetAtoms(ctx, []domain.Sid{present, domain.SidOf(domID, docID, 5)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "here", got[present].Text)

	empty, err := store.GetAtoms(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetAtom_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetAtom(context.Background(), domain.SidOf(1, 2, 3))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListAtoms_CorruptBlob(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	docID := createTestDocument(t, store, domID, "doc.md")
	sid := domain.SidOf(domID, docID, 0)

	_, err := store.db.Exec(
		"INSERT INTO semantic_atom (id, domain_id, document_id, text, vector, created) VALUES (?, ?, ?, ?, ?, ?)",
		int64(sid), int(domID), int(docID), "broken", []byte{1, 2, 3, 4, 5}, fixedNow.Unix())
	require.NoError(t, err)

	_, err = store.ListAtoms(ctx, domID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConsistency))
}

func TestUnsetAtoms(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")
	docID := createTestDocument(t, store, domID, "doc.md")
	for i := uint16(0); i < 4; i++ {
		require.NoError(t, store.SetAtom(ctx, &domain.Atom{ID: domain.SidOf(domID, docID, i), Text: "t", Vector: []float32{1}}))
	}

	n, err := store.UnsetAtoms(ctx, domID, docID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// The document row survives.
	_, err = store.GetDocument(ctx, domID, docID)
	assert.NoError(t, err)
}

// ==================== Transactions ====================

func setDomainIn(t *testing.T, ctx context.Context, store *Store, key string) uint16 {
	t.Helper()
	res, err := store.SetDomain(ctx, &domain.SemanticDomain{Key: key}, false)
	require.NoError(t, err)
	return res.ID
}

func TestTransaction_NestedCommit(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	outer, err := store.Begin(context.Background())
	require.NoError(t, err)
	inner, err := store.Begin(outer)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Depth(inner))
	assert.Equal(t, 2, store.Depth(outer))

	setDomainIn(t, inner, store, "inner")

	require.NoError(t, store.Commit(inner))
	assert.Equal(t, 1, store.Depth(outer))

	// Not yet visible outside the transaction.
	assert.Equal(t, 0, countRows(t, store, "semantic_domain"))

	require.NoError(t, store.Commit(outer))
	assert.Equal(t, 0, store.Depth(outer))
	assert.Equal(t, 1, countRows(t, store, "semantic_domain"))
}

func TestTransaction_RollbackAtAnyDepth(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	outer, err := store.Begin(ctx)
	require.NoError(t, err)
	setDomainIn(t, outer, store, "outer")
	inner, err := store.Begin(outer)
	require.NoError(t, err)
	setDomainIn(t, inner, store, "inner")

	require.NoError(t, store.Rollback(inner))
	assert.Equal(t, 0, store.Depth(outer))

	_, err = store.GetDomainByKey(ctx, "outer")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = store.GetDomainByKey(ctx, "inner")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// A later Rollback is a no-op, and the outer Commit has nothing to commit.
	assert.NoError(t, store.Rollback(outer))
	err = store.Commit(outer)
	assert.True(t, errors.Is(err, domain.ErrTransaction))
}

func TestTransaction_FinishedContextDoesNotAutocommit(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	keep := createTestDomain(t, store, "keep")

	txCtx, err := store.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Rollback(txCtx))

	_, err = store.UnsetDomain(txCtx, keep)
	assert.Error(t, err)
	assert.Equal(t, 1, countRows(t, store, "semantic_domain"))
}

func TestTransaction_CommitWithoutBegin(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.Commit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransaction))
}

func TestTransaction_ReadersOutsideSeeCommittedState(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	keep := createTestDomain(t, store, "keep")

	txCtx, err := store.Begin(ctx)
	require.NoError(t, err)
	pending := setDomainIn(t, txCtx, store, "pending")

	// The writer sees its own row; a plain context does not.
	_, err = store.GetDomain(txCtx, pending)
	require.NoError(t, err)
	_, err = store.GetDomain(ctx, pending)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	domains, err := store.ListDomains(ctx, nil)
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, keep, domains[0].ID)

	require.NoError(t, store.Commit(txCtx))

	domains, err = store.ListDomains(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, domains, 2)
}

func TestTransaction_ConcurrentWritersAssignDistinctIDs(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	domID := createTestDomain(t, store, "d")

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithinTx(ctx, func(ctx context.Context) error {
				_, err := store.SetDocument(ctx, &domain.SemanticDocument{
					DomainID: domID,
					Key:      fmt.Sprintf("doc-%d.md", i),
					Mtime:    fixedNow,
				}, false)
				return err
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	docs, err := store.ListDocuments(ctx, domID)
	require.NoError(t, err)
	require.Len(t, docs, writers)
	seen := make(map[uint16]bool)
	for _, d := range docs {
		assert.False(t, seen[d.ID], "duplicate id %d", d.ID)
		seen[d.ID] = true
	}
}

func TestWithinTx_ErrorRollsBack(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		setDomainIn(t, ctx, store, "doomed")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countRows(t, store, "semantic_domain"))
}
