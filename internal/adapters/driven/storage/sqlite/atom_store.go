package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ==================== Atom Store ====================

// maxParams bounds the IN list of a single GetAtoms query.
const maxParams = 500

// SetAtom creates or replaces the atom at a.ID. The owning document must exist.
func (s *Store) SetAtom(ctx context.Context, a *domain.Atom) error {
	if a == nil {
		return invalidf(nil, "atom is nil")
	}
	fields := []any{"sid", a.ID.String()}
	if a.Text == "" {
		return invalidf(fields, "atom %s has empty text", a.ID)
	}
	if len(a.Vector) == 0 {
		return invalidf(fields, "atom %s has no vector", a.ID)
	}

	created := a.Created
	if created.IsZero() {
		created = s.now()
	}

	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO semantic_atom (id, domain_id, document_id, text, vector, created)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector
	`, int64(a.ID), int(a.ID.DomainID()), int(a.ID.DocumentID()), a.Text, domain.EncodeVector(a.Vector), created.Unix())
	if err != nil {
		return dbErr(err, fields, "set atom")
	}
	return nil
}

// GetAtom retrieves one atom by Sid.
func (s *Store) GetAtom(ctx context.Context, id domain.Sid) (*domain.Atom, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		"SELECT id, text, vector, created FROM semantic_atom WHERE id = ?", int64(id))
	a, err := scanAtom(row)
	if err != nil {
		return nil, s.atomErr(err, id, "get atom")
	}
	return a, nil
}

// GetAtoms retrieves the given atoms keyed by Sid; ids with no row are omitted.
func (s *Store) GetAtoms(ctx context.Context, ids []domain.Sid) (map[domain.Sid]*domain.Atom, error) {
	out := make(map[domain.Sid]*domain.Atom, len(ids))

	for start := 0; start < len(ids); start += maxParams {
		end := min(start+maxParams, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = int64(id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		rows, err := s.conn(ctx).QueryContext(ctx,
			"SELECT id, text, vector, created FROM semantic_atom WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return nil, dbErr(err, []any{"count", len(batch)}, "get atoms")
		}
		for rows.Next() {
			a, err := scanAtom(rows)
			if err != nil {
				rows.Close()
				return nil, s.atomErr(err, 0, "scan atom")
			}
			out[a.ID] = a
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, dbErr(err, nil, "get atoms")
		}
	}
	return out, nil
}

// ListAtoms returns every atom of a domain ordered by document then Sid.
func (s *Store) ListAtoms(ctx context.Context, domainID uint16) ([]domain.Atom, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, text, vector, created FROM semantic_atom
		WHERE domain_id = ? ORDER BY document_id, id
	`, int(domainID))
	if err != nil {
		return nil, dbErr(err, []any{"domain_id", domainID}, "list atoms")
	}
	defer rows.Close()

	var atoms []domain.Atom
	for rows.Next() {
		a, err := scanAtom(rows)
		if err != nil {
			return nil, s.atomErr(err, 0, "scan atom")
		}
		atoms = append(atoms, *a)
	}
	return atoms, rows.Err()
}

// UnsetAtoms deletes every atom of one document.
func (s *Store) UnsetAtoms(ctx context.Context, domainID, documentID uint16) (int, error) {
	result, err := s.conn(ctx).ExecContext(ctx,
		"DELETE FROM semantic_atom WHERE domain_id = ? AND document_id = ?", int(domainID), int(documentID))
	if err != nil {
		return 0, dbErr(err, []any{"domain_id", domainID, "document_id", documentID}, "delete atoms")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, dbErr(err, nil, "delete atoms")
	}
	return int(n), nil
}

// blobError marks a stored vector that could not be decoded.
type blobError struct {
	id  domain.Sid
	err error
}

func (e *blobError) Error() string { return e.err.Error() }
func (e *blobError) Unwrap() error { return e.err }

func (s *Store) atomErr(err error, id domain.Sid, op string) error {
	if be, ok := err.(*blobError); ok {
		return corruptf(be.err, []any{"sid", be.id.String()}, "%s: atom %s has an unreadable vector", op, be.id)
	}
	return dbErr(err, []any{"sid", id.String()}, op)
}

func scanAtom(row scanner) (*domain.Atom, error) {
	var (
		id      int64
		text    string
		blob    []byte
		created int64
	)
	if err := row.Scan(&id, &text, &blob, &created); err != nil {
		return nil, err
	}
	sid := domain.Sid(uint64(id))
	vector, err := domain.DecodeVector(blob)
	if err != nil {
		return nil, &blobError{id: sid, err: err}
	}
	return &domain.Atom{
		ID:      sid,
		Text:    text,
		Vector:  vector,
		Created: time.Unix(created, 0),
	}, nil
}
