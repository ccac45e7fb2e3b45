package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ==================== Domain Store ====================

// SetDomain creates the domain, or returns the existing domain with the same key
// unchanged. When explicitID is false the id is max(id)+1, or 0 for an empty table.
func (s *Store) SetDomain(ctx context.Context, d *domain.SemanticDomain, explicitID bool) (domain.UpsertResult, error) {
	if d == nil || d.Key == "" {
		return domain.UpsertResult{}, invalidf(nil, "domain key is required")
	}

	var res domain.UpsertResult
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.GetDomainByKey(ctx, d.Key)
		if err == nil {
			*d = *existing
			res = domain.UpsertResult{ID: existing.ID}
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		id := d.ID
		if explicitID {
			owner, err := s.GetDomain(ctx, id)
			if err == nil {
				return invalidf([]any{"domain_id", id, "owner", owner.Key},
					"domain id %d already belongs to %q", id, owner.Key)
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		} else {
			next, err := s.nextID(ctx, "SELECT MAX(id) FROM semantic_domain")
			if err != nil {
				return err
			}
			id = next
		}

		created := s.now()
		_, err = s.conn(ctx).ExecContext(ctx, `
			INSERT INTO semantic_domain (id, key, meta, created, temporary)
			VALUES (?, ?, ?, ?, ?)
		`, int(id), d.Key, nullString(d.Meta), created.Unix(), boolToInt(d.Temporary))
		if err != nil {
			return dbErr(err, []any{"domain_id", id, "key", d.Key}, "insert domain")
		}

		d.ID = id
		d.Created = time.Unix(created.Unix(), 0)
		res = domain.UpsertResult{ID: id, Created: true}
		return nil
	})
	return res, err
}

// GetDomain retrieves a domain by id.
func (s *Store) GetDomain(ctx context.Context, id uint16) (*domain.SemanticDomain, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, key, meta, created, temporary FROM semantic_domain WHERE id = ?
	`, int(id))
	d, err := scanDomain(row)
	if err != nil {
		return nil, dbErr(err, []any{"domain_id", id}, "get domain")
	}
	return d, nil
}

// GetDomainByKey retrieves a domain by key.
func (s *Store) GetDomainByKey(ctx context.Context, key string) (*domain.SemanticDomain, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, key, meta, created, temporary FROM semantic_domain WHERE key = ?
	`, key)
	d, err := scanDomain(row)
	if err != nil {
		return nil, dbErr(err, []any{"key", key}, "get domain by key")
	}
	return d, nil
}

// ListDomains returns domains ordered by id, optionally filtered by the temporary flag.
func (s *Store) ListDomains(ctx context.Context, temporary *bool) ([]domain.SemanticDomain, error) {
	query := "SELECT id, key, meta, created, temporary FROM semantic_domain"
	var args []any
	if temporary != nil {
		query += " WHERE temporary = ?"
		args = append(args, boolToInt(*temporary))
	}
	query += " ORDER BY id"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr(err, nil, "list domains")
	}
	defer rows.Close()

	var domains []domain.SemanticDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, dbErr(err, nil, "scan domain")
		}
		domains = append(domains, *d)
	}
	return domains, rows.Err()
}

// UnsetDomain deletes a domain; documents and atoms follow by cascade.
func (s *Store) UnsetDomain(ctx context.Context, id uint16) (bool, error) {
	result, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM semantic_domain WHERE id = ?", int(id))
	if err != nil {
		return false, dbErr(err, []any{"domain_id", id}, "delete domain")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, dbErr(err, []any{"domain_id", id}, "delete domain")
	}
	return n > 0, nil
}

// nextID evaluates a MAX(id) query and returns the next sequential id.
func (s *Store) nextID(ctx context.Context, query string, args ...any) (uint16, error) {
	var maxID sql.NullInt64
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&maxID); err != nil {
		return 0, dbErr(err, nil, "read max id")
	}
	if !maxID.Valid {
		return 0, nil
	}
	next := maxID.Int64 + 1
	if next > domain.MaxComponent {
		return 0, invalidf([]any{"next_id", next}, "id space exhausted: %d exceeds %d", next, domain.MaxComponent)
	}
	return uint16(next), nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDomain(row scanner) (*domain.SemanticDomain, error) {
	var (
		d         domain.SemanticDomain
		meta      sql.NullString
		created   int64
		temporary int
	)
	if err := row.Scan(&d.ID, &d.Key, &meta, &created, &temporary); err != nil {
		return nil, err
	}
	d.Meta = meta.String
	d.Created = time.Unix(created, 0)
	d.Temporary = temporary != 0
	return &d, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
