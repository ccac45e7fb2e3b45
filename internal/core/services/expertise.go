package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure ExpertiseService implements the interface.
var _ driving.ExpertiseService = (*ExpertiseService)(nil)

// DefaultDebounce is how long Watch waits for the folder to settle before syncing.
const DefaultDebounce = 500 * time.Millisecond

// ExpertiseService mirrors an expertise folder into persistent domains.
// Every subdirectory is one domain named after it; each readable file below
// it is a document keyed by its slash-separated path relative to the folder.
type ExpertiseService struct {
	retrieval   driving.RetrievalService
	normalisers driven.NormaliserRegistry
	dir         string
	extensions  map[string]bool
	debounce    time.Duration
}

// NewExpertiseService creates an expertise service over settings.Dir.
func NewExpertiseService(
	retrieval driving.RetrievalService,
	normalisers driven.NormaliserRegistry,
	settings domain.ExpertiseSettings,
) *ExpertiseService {
	exts := make(map[string]bool, len(settings.Extensions))
	for _, ext := range settings.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}
	return &ExpertiseService{
		retrieval:   retrieval,
		normalisers: normalisers,
		dir:         settings.Dir,
		extensions:  exts,
		debounce:    DefaultDebounce,
	}
}

// SetDebounce overrides DefaultDebounce.
func (s *ExpertiseService) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Sync reconciles every subdirectory with its domain: files newer than their
// document are re-indexed, new files are indexed and documents whose file
// disappeared are removed.
func (s *ExpertiseService) Sync(ctx context.Context) (*domain.SyncReport, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("%w: expertise directory is not configured", domain.ErrValidation)
	}

	logger.Section("Expertise Sync")
	defer logger.Timer("expertise sync")()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read expertise directory: %w", err)
	}

	report := &domain.SyncReport{}
	for _, entry := range entries {
		if !entry.IsDir() || isHidden(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.syncDomain(ctx, entry.Name(), report); err != nil {
			return report, err
		}
	}

	logger.Info("expertise sync: indexed=%d removed=%d unchanged=%d failed=%d",
		report.Indexed, report.Removed, report.Unchanged, len(report.Failures))
	return report, nil
}

// syncDomain reconciles one subdirectory. Per-file failures go to report;
// only domain-level failures are returned.
func (s *ExpertiseService) syncDomain(ctx context.Context, name string, report *domain.SyncReport) error {
	d, err := s.retrieval.AddDomain(ctx, name, false, "Expertise domain "+name)
	if err != nil {
		return err
	}
	report.Domains = append(report.Domains, d.Key)

	files, err := s.scan(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("scan %s: %w", name, err)
	}

	existing, err := s.retrieval.ListDocuments(ctx, d.ID)
	if err != nil {
		return err
	}
	docs := make(map[string]domain.SemanticDocument, len(existing))
	for _, doc := range existing {
		docs[doc.Key] = doc
	}

	for key, mtime := range files {
		if doc, ok := docs[key]; ok && !mtime.After(doc.Mtime) {
			report.Unchanged++
			continue
		}
		if err := s.index(ctx, d.ID, key, mtime); err != nil {
			logger.Warn("failed to index %s: %v", key, err)
			report.Failures = append(report.Failures, domain.SyncFailure{Path: key, Err: err})
			continue
		}
		report.Indexed++
	}

	for key, doc := range docs {
		if _, ok := files[key]; ok {
			continue
		}
		logger.Debug("removing %s (missing in folder)", key)
		if _, err := s.retrieval.RemoveDocument(ctx, d.ID, doc.ID); err != nil {
			report.Failures = append(report.Failures, domain.SyncFailure{Path: key, Err: err})
			continue
		}
		report.Removed++
	}
	return nil
}

// index reads, normalises and ingests one file.
func (s *ExpertiseService) index(ctx context.Context, domainID uint16, key string, mtime time.Time) error {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := s.normalisers.Normalise(ctx, path, content)
	if err != nil {
		return err
	}
	logger.Debug("indexing %s", key)
	_, err = s.retrieval.AddDocument(ctx, domainID, key, result.Content, mtime, result.Title)
	return err
}

// scan returns the readable files below root keyed by their path relative to
// the expertise folder, with modification times truncated to seconds.
func (s *ExpertiseService) scan(root string) (map[string]time.Time, error) {
	files := make(map[string]time.Time)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isHidden(entry.Name()) && path != root {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !s.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = info.ModTime().Truncate(time.Second)
		return nil
	})
	return files, err
}

// Watch syncs once, then again after every burst of changes in the folder,
// until ctx is cancelled.
func (s *ExpertiseService) Watch(ctx context.Context, onSync func(*domain.SyncReport)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := s.watchTree(watcher, s.dir); err != nil {
		return err
	}

	resync := func() error {
		report, err := s.Sync(ctx)
		if err != nil {
			return err
		}
		if onSync != nil {
			onSync(report)
		}
		return nil
	}
	if err := resync(); err != nil {
		return err
	}

	timer := time.NewTimer(s.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !s.relevant(watcher, event) {
				continue
			}
			logger.Debug("expertise change: %s %s", event.Op, event.Name)
			timer.Reset(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("expertise watcher: %v", err)

		case <-timer.C:
			if err := resync(); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

// relevant reports whether event should trigger a sync. New directories
// are added to the watcher as a side effect.
func (s *ExpertiseService) relevant(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	if isHidden(filepath.Base(event.Name)) {
		return false
	}
	if event.Op == fsnotify.Chmod {
		return false
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watchTree(watcher, event.Name); err != nil {
				logger.Warn("watch %s: %v", event.Name, err)
			}
			return true
		}
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		return true
	}
	return s.extensions[strings.ToLower(filepath.Ext(event.Name))]
}

// watchTree adds root and every non-hidden directory below it.
func (s *ExpertiseService) watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && isHidden(entry.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Search queries one expertise domain by key.
func (s *ExpertiseService) Search(ctx context.Context, domainKey, query string, topK int) (domain.SearchResults, error) {
	d, err := s.retrieval.GetDomain(ctx, domainKey)
	if err != nil {
		return nil, err
	}
	if d.Key != domainKey {
		return nil, fmt.Errorf("expertise domain %q: %w", domainKey, domain.ErrNotFound)
	}
	return s.retrieval.Search(ctx, d.Key, query, domain.SearchOptions{TopK: topK})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
