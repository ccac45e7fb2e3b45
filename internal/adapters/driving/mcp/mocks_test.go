package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	domains   []domain.SemanticDomain
	documents []domain.SemanticDocument
	results   domain.SearchResults
	err       error

	lastRef   string
	lastQuery string
	lastOpts  domain.SearchOptions
}

func (m *mockRetrievalService) Hydrate(_ context.Context) error { return m.err }

func (m *mockRetrievalService) State() domain.LifecycleState { return domain.StateReady }

func (m *mockRetrievalService) AddDomain(_ context.Context, key string, temporary bool, description string) (*domain.SemanticDomain, error) {
	return &domain.SemanticDomain{Key: key, Temporary: temporary, Meta: description}, m.err
}

func (m *mockRetrievalService) HasDomain(ctx context.Context, ref string) (bool, error) {
	_, err := m.GetDomain(ctx, ref)
	return err == nil, nil
}

func (m *mockRetrievalService) GetDomain(_ context.Context, ref string) (*domain.SemanticDomain, error) {
	for i := range m.domains {
		if m.domains[i].Key == ref {
			return &m.domains[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRetrievalService) ListDomains(_ context.Context) ([]domain.SemanticDomain, error) {
	return m.domains, m.err
}

func (m *mockRetrievalService) RemoveDomain(_ context.Context, _ string) (bool, error) {
	return false, m.err
}

func (m *mockRetrievalService) AddDocument(
	_ context.Context, domainID uint16, key, _ string, mtime time.Time, description string,
) (*domain.SemanticDocument, error) {
	return &domain.SemanticDocument{DomainID: domainID, Key: key, Mtime: mtime, Meta: description}, m.err
}

func (m *mockRetrievalService) GetDocument(_ context.Context, _ uint16, _ string) (*domain.SemanticDocument, error) {
	return nil, domain.ErrNotFound
}

func (m *mockRetrievalService) RemoveDocument(_ context.Context, _, _ uint16) (bool, error) {
	return false, m.err
}

func (m *mockRetrievalService) ListDocuments(_ context.Context, _ uint16) ([]domain.SemanticDocument, error) {
	return m.documents, m.err
}

func (m *mockRetrievalService) Search(
	_ context.Context, ref, query string, opts domain.SearchOptions,
) (domain.SearchResults, error) {
	m.lastRef, m.lastQuery, m.lastOpts = ref, query, opts
	return m.results, m.err
}

func (m *mockRetrievalService) Reconcile(_ context.Context, domainID uint16) (*domain.ReconcileReport, error) {
	return &domain.ReconcileReport{DomainID: domainID}, m.err
}
