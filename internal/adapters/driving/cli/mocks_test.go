package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/normalisers"
)

// mockRetrievalService records calls and serves canned domains and documents.
type mockRetrievalService struct {
	domains   []domain.SemanticDomain
	documents []domain.SemanticDocument
	results   domain.SearchResults
	reconcile *domain.ReconcileReport
	err       error

	added       []domain.SemanticDocument
	addedText   string
	removedRefs []string
	removedDocs []uint16
	lastOpts    domain.SearchOptions
	lastRef     string
	lastQuery   string
}

func (m *mockRetrievalService) Hydrate(_ context.Context) error { return m.err }

func (m *mockRetrievalService) State() domain.LifecycleState { return domain.StateReady }

func (m *mockRetrievalService) AddDomain(_ context.Context, key string, temporary bool, description string) (*domain.SemanticDomain, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.domains {
		if m.domains[i].Key == key {
			return &m.domains[i], nil
		}
	}
	d := domain.SemanticDomain{ID: uint16(len(m.domains)), Key: key, Temporary: temporary, Meta: description}
	m.domains = append(m.domains, d)
	return &d, nil
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

func (m *mockRetrievalService) RemoveDomain(_ context.Context, ref string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for i := range m.domains {
		if m.domains[i].Key == ref {
			m.removedRefs = append(m.removedRefs, ref)
			m.domains = append(m.domains[:i], m.domains[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRetrievalService) AddDocument(
	_ context.Context, domainID uint16, key, text string, mtime time.Time, description string,
) (*domain.SemanticDocument, error) {
	if m.err != nil {
		return nil, m.err
	}
	doc := domain.SemanticDocument{ID: uint16(len(m.added)), DomainID: domainID, Key: key, Mtime: mtime, Meta: description}
	m.added = append(m.added, doc)
	m.addedText = text
	return &doc, nil
}

func (m *mockRetrievalService) GetDocument(_ context.Context, domainID uint16, key string) (*domain.SemanticDocument, error) {
	for i := range m.documents {
		if m.documents[i].DomainID == domainID && m.documents[i].Key == key {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockRetrievalService) RemoveDocument(_ context.Context, _, documentID uint16) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.removedDocs = append(m.removedDocs, documentID)
	return true, nil
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
	if m.err != nil {
		return nil, m.err
	}
	if m.reconcile != nil {
		return m.reconcile, nil
	}
	return &domain.ReconcileReport{DomainID: domainID}, nil
}

// mockExpertiseService is a mock implementation of driving.ExpertiseService.
type mockExpertiseService struct {
	report  *domain.SyncReport
	results domain.SearchResults
	err     error

	lastDomain string
	lastTopK   int
}

func (m *mockExpertiseService) Sync(_ context.Context) (*domain.SyncReport, error) {
	return m.report, m.err
}

func (m *mockExpertiseService) Watch(ctx context.Context, onSync func(*domain.SyncReport)) error {
	if m.err != nil {
		return m.err
	}
	onSync(m.report)
	<-ctx.Done()
	return nil
}

func (m *mockExpertiseService) Search(_ context.Context, domainKey, _ string, topK int) (domain.SearchResults, error) {
	m.lastDomain, m.lastTopK = domainKey, topK
	return m.results, m.err
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings    domain.AppSettings
	validateErr error
	embedErr    error

	rerankProvider domain.RerankProvider
	rerankURL      string
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	m.settings.Embedding.APIKey = apiKey
	return nil
}

func (m *mockSettingsService) SetRerankProvider(provider domain.RerankProvider, baseURL string) error {
	m.rerankProvider, m.rerankURL = provider, baseURL
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validateErr }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) ValidateEmbeddingConfig() error { return m.embedErr }

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	retrieval *mockRetrievalService
	expertise *mockExpertiseService
	settings  *mockSettingsService
	config    *file.ConfigStore
}

// setupTestServices installs mocks for every command and restores the
// previous services and flag values on cleanup.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()

	store, err := file.NewConfigStore(t.TempDir())
	require.NoError(t, err)

	ts := &testServices{
		retrieval: &mockRetrievalService{
			domains: []domain.SemanticDomain{
				{ID: 0, Key: "bread", Meta: "Baking notes", Created: time.Unix(1700000000, 0)},
				{ID: 1, Key: "pizza", Created: time.Unix(1700000000, 0)},
			},
		},
		expertise: &mockExpertiseService{report: &domain.SyncReport{}},
		settings:  &mockSettingsService{settings: domain.DefaultAppSettings()},
		config:    store,
	}

	prev := Deps{
		Settings:    settingsService,
		Retrieval:   retrievalService,
		Expertise:   expertiseService,
		ConfigStore: configStore,
		Normalisers: normaliserRegistry,
	}
	SetDeps(Deps{
		Settings:    ts.settings,
		Retrieval:   ts.retrieval,
		Expertise:   ts.expertise,
		ConfigStore: ts.config,
		Normalisers: normalisers.NewDefaultRegistry(),
	})

	t.Cleanup(func() {
		SetDeps(prev)
		rootCmd.SetArgs(nil)
		resetFlags()
	})
	return ts
}

func resetFlags() {
	searchTopK = domain.DefaultTopK
	searchMinScore = 0
	searchJSON = false
	domainTemporary = false
	domainDescription = ""
	domainJSON = false
	documentKey = ""
	documentJSON = false
	expertiseTopK = domain.DefaultTopK
	expertiseJSON = false
	verbose = false
}
