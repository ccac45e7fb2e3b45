package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ==================== Document Store ====================

// SetDocument creates or updates a document by (domain, key).
// An existing key is updated in place and keeps its id and created time.
func (s *Store) SetDocument(ctx context.Context, doc *domain.SemanticDocument, explicitID bool) (domain.UpsertResult, error) {
	if doc == nil || doc.Key == "" {
		return domain.UpsertResult{}, invalidf(nil, "document key is required")
	}
	fields := []any{"domain_id", doc.DomainID, "key", doc.Key}

	var res domain.UpsertResult
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetDomain(ctx, doc.DomainID); err != nil {
			return err
		}

		existing, err := s.GetDocumentByKey(ctx, doc.DomainID, doc.Key)
		switch {
		case err == nil:
			_, err = s.conn(ctx).ExecContext(ctx, `
				UPDATE semantic_document SET meta = ?, mtime = ?
				WHERE domain_id = ? AND id = ?
			`, nullString(doc.Meta), doc.Mtime.Unix(), int(doc.DomainID), int(existing.ID))
			if err != nil {
				return dbErr(err, fields, "update document")
			}
			doc.ID = existing.ID
			doc.Created = existing.Created
			res = domain.UpsertResult{ID: existing.ID}
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		id := doc.ID
		if explicitID {
			owner, err := s.GetDocument(ctx, doc.DomainID, id)
			if err == nil {
				return invalidf(append(fields, "document_id", id, "owner", owner.Key),
					"document id %d already belongs to %q", id, owner.Key)
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		} else {
			next, err := s.nextID(ctx, "SELECT MAX(id) FROM semantic_document WHERE domain_id = ?", int(doc.DomainID))
			if err != nil {
				return err
			}
			id = next
		}

		created := s.now()
		_, err = s.conn(ctx).ExecContext(ctx, `
			INSERT INTO semantic_document (domain_id, id, key, meta, mtime, created)
			VALUES (?, ?, ?, ?, ?, ?)
		`, int(doc.DomainID), int(id), doc.Key, nullString(doc.Meta), doc.Mtime.Unix(), created.Unix())
		if err != nil {
			return dbErr(err, append(fields, "document_id", id), "insert document")
		}

		doc.ID = id
		doc.Created = time.Unix(created.Unix(), 0)
		res = domain.UpsertResult{ID: id, Created: true}
		return nil
	})
	return res, err
}

// GetDocument retrieves a document by domain and id.
func (s *Store) GetDocument(ctx context.Context, domainID, documentID uint16) (*domain.SemanticDocument, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, domain_id, key, meta, mtime, created
		FROM semantic_document WHERE domain_id = ? AND id = ?
	`, int(domainID), int(documentID))
	doc, err := scanDocument(row)
	if err != nil {
		return nil, dbErr(err, []any{"domain_id", domainID, "document_id", documentID}, "get document")
	}
	return doc, nil
}

// GetDocumentByKey retrieves a document by domain and key.
func (s *Store) GetDocumentByKey(ctx context.Context, domainID uint16, key string) (*domain.SemanticDocument, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, domain_id, key, meta, mtime, created
		FROM semantic_document WHERE domain_id = ? AND key = ?
	`, int(domainID), key)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, dbErr(err, []any{"domain_id", domainID, "key", key}, "get document by key")
	}
	return doc, nil
}

// ListDocuments returns a domain's documents ordered by id.
func (s *Store) ListDocuments(ctx context.Context, domainID uint16) ([]domain.SemanticDocument, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, domain_id, key, meta, mtime, created
		FROM semantic_document WHERE domain_id = ? ORDER BY id
	`, int(domainID))
	if err != nil {
		return nil, dbErr(err, []any{"domain_id", domainID}, "list documents")
	}
	defer rows.Close()

	var docs []domain.SemanticDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, dbErr(err, []any{"domain_id", domainID}, "scan document")
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// UnsetDocument deletes a document; its atoms follow by cascade.
func (s *Store) UnsetDocument(ctx context.Context, domainID, documentID uint16) (bool, error) {
	result, err := s.conn(ctx).ExecContext(ctx,
		"DELETE FROM semantic_document WHERE domain_id = ? AND id = ?", int(domainID), int(documentID))
	if err != nil {
		return false, dbErr(err, []any{"domain_id", domainID, "document_id", documentID}, "delete document")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, dbErr(err, nil, "delete document")
	}
	return n > 0, nil
}

func scanDocument(row scanner) (*domain.SemanticDocument, error) {
	var (
		doc     domain.SemanticDocument
		meta    sql.NullString
		mtime   int64
		created int64
	)
	if err := row.Scan(&doc.ID, &doc.DomainID, &doc.Key, &meta, &mtime, &created); err != nil {
		return nil, err
	}
	doc.Meta = meta.String
	doc.Mtime = time.Unix(mtime, 0)
	doc.Created = time.Unix(created, 0)
	return &doc, nil
}
