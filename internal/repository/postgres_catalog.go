package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, storage_key, category, owner_id, title, description, original_filename,
	size_bytes, content_type, checksum, version, metadata, source_job_id, trashed_at, created_at, updated_at`

// PostgresCatalog is a MetadataCatalog over a PostgreSQL documents table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a catalog on an existing pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

func (c *PostgresCatalog) Insert(ctx context.Context, rec *domain.DocumentRecord) error {
	meta, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rec.StorageKey, string(rec.Category), rec.OwnerID, rec.Title, rec.Description,
		rec.OriginalFilename, rec.SizeBytes, rec.ContentType, rec.Checksum, rec.Version,
		meta, nullString(rec.SourceJobID), rec.TrashedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return domain.ErrDuplicateKey
		}
		return fmt.Errorf("postgres: insert document: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) Get(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get document: %w", err)
	}
	return rec, nil
}

// Update patches only the supplied fields in one statement; version is bumped
// by the database so concurrent patches serialize on the row lock.
func (c *PostgresCatalog) Update(ctx context.Context, id, ownerID string, patch domain.MetadataPatch, now time.Time) (*domain.DocumentRecord, error) {
	var meta []byte
	if patch.Metadata != nil {
		var err error
		if meta, err = marshalMetadata(patch.Metadata); err != nil {
			return nil, err
		}
	}
	row := c.pool.QueryRow(ctx, `
		UPDATE documents SET
			title       = COALESCE($3, title),
			description = COALESCE($4, description),
			metadata    = COALESCE($5::jsonb, metadata),
			version     = version + 1,
			updated_at  = $6
		WHERE id = $1 AND owner_id = $2
		RETURNING `+documentColumns,
		id, ownerID, patch.Title, patch.Description, meta, now,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: update document: %w", err)
	}
	return rec, nil
}

func (c *PostgresCatalog) Delete(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	row := c.pool.QueryRow(ctx, `
		DELETE FROM documents WHERE id = $1 AND owner_id = $2
		RETURNING `+documentColumns, id, ownerID)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: delete document: %w", err)
	}
	return rec, nil
}

// SetTrashed flips trashed_at only when the row is in the opposite state.
func (c *PostgresCatalog) SetTrashed(ctx context.Context, id, ownerID string, trashedAt *time.Time, now time.Time) (*domain.DocumentRecord, error) {
	state := "trashed_at IS NOT NULL"
	if trashedAt != nil {
		state = "trashed_at IS NULL"
	}
	row := c.pool.QueryRow(ctx, `
		UPDATE documents SET trashed_at = $3, updated_at = $4
		WHERE id = $1 AND owner_id = $2 AND `+state+`
		RETURNING `+documentColumns,
		id, ownerID, trashedAt, now,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: set document trash state: %w", err)
	}
	return rec, nil
}

func (c *PostgresCatalog) List(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error) {
	filter = filter.Normalize()
	where, args := listPredicate(ownerID, filter)

	var total int
	if err := c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: count documents: %w", err)
	}

	dir := "ASC"
	if filter.Desc {
		dir = "DESC"
	}
	// filter.SortBy is whitelisted by Normalize.
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		documentColumns, where, filter.SortBy, dir, dir, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.DocumentRecord, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate documents: %w", err)
	}
	return &domain.ListResult{Items: items, Total: total}, nil
}

// listPredicate builds the WHERE clause and its positional arguments.
func listPredicate(ownerID string, filter domain.ListFilter) (string, []interface{}) {
	clauses := []string{"owner_id = $1", "trashed_at IS NULL"}
	if filter.Trashed {
		clauses[1] = "trashed_at IS NOT NULL"
	}
	args := []interface{}{ownerID}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Category != "" {
		add("category = $%d", string(filter.Category))
	}
	if filter.SourceJobID != "" {
		add("source_job_id = $%d", filter.SourceJobID)
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore)
	}
	if filter.Search != "" {
		add("(title ILIKE $%[1]d OR description ILIKE $%[1]d OR original_filename ILIKE $%[1]d)",
			"%"+escapeLike(filter.Search)+"%")
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanRecord(row pgx.Row) (*domain.DocumentRecord, error) {
	var (
		rec      domain.DocumentRecord
		category string
		meta     []byte
		sourceID *string
	)
	err := row.Scan(
		&rec.ID, &rec.StorageKey, &category, &rec.OwnerID, &rec.Title, &rec.Description,
		&rec.OriginalFilename, &rec.SizeBytes, &rec.ContentType, &rec.Checksum, &rec.Version,
		&meta, &sourceID, &rec.TrashedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Category = domain.Category(category)
	if sourceID != nil {
		rec.SourceJobID = *sourceID
	}
	if len(meta) > 0 {
		var m map[string]interface{}
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		if len(m) > 0 {
			rec.Metadata = m
		}
	}
	return &rec, nil
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		m = map[string]interface{}{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
