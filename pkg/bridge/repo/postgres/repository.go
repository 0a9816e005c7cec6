package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

//go:embed schema.sql
var schemaSQL string

// Constraint names from schema.sql
const (
	blobKeyConstraint   = "mapping_blob_key_unique"
	contentIDConstraint = "mapping_content_id_unique"
)

const mappingColumns = `id, blob_key, content_id, size_bytes, mime_type, content_store_id,
	display_name, network, file_count, content_created_at, source_last_modified,
	created_at, updated_at`

// DBTX is an interface that allows us to use either a connection pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements bridge.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// EnsureSchema creates the mapping tables if they do not exist. Tables are
// created in the connection's search_path.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch pgErr.ConstraintName {
			case blobKeyConstraint:
				return bridge.ErrDuplicateBlobKey
			case contentIDConstraint:
				return bridge.ErrDuplicateContentID
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23514": // check_violation
			return fmt.Errorf("constraint %s violated in %s", pgErr.ConstraintName, operation)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return bridge.ErrMappingNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) CreateMapping(ctx context.Context, record *bridge.MappingRecord) error {
	query := `
		INSERT INTO mapping (` + mappingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query,
			record.ID, record.BlobKey, record.ContentID, record.Size, record.MimeType,
			record.ContentStoreID, record.DisplayName, record.Network, record.FileCount,
			record.ContentCreatedAt, record.SourceLastModified,
			record.CreatedAt, record.UpdatedAt); err != nil {
			return err
		}
		return writeMetadata(ctx, tx, record.ID, record.Metadata)
	})
	if err != nil {
		return r.handlePostgresError("create mapping", err)
	}

	return nil
}

func (r *Repository) UpdateMapping(ctx context.Context, record *bridge.MappingRecord) error {
	query := `
		UPDATE mapping SET
			blob_key = $2, content_id = $3, size_bytes = $4, mime_type = $5,
			content_store_id = $6, display_name = $7, network = $8, file_count = $9,
			content_created_at = $10, source_last_modified = $11, updated_at = $12
		WHERE id = $1`

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query,
			record.ID, record.BlobKey, record.ContentID, record.Size, record.MimeType,
			record.ContentStoreID, record.DisplayName, record.Network, record.FileCount,
			record.ContentCreatedAt, record.SourceLastModified, record.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return bridge.ErrMappingNotFound
		}
		return writeMetadata(ctx, tx, record.ID, record.Metadata)
	})
	if errors.Is(err, bridge.ErrMappingNotFound) {
		return err
	}
	if err != nil {
		return r.handlePostgresError("update mapping", err)
	}

	return nil
}

func (r *Repository) GetMapping(ctx context.Context, id uuid.UUID) (*bridge.MappingRecord, error) {
	return r.getOne(ctx, "get mapping", `SELECT `+mappingColumns+` FROM mapping WHERE id = $1`, id)
}

func (r *Repository) GetMappingByBlobKey(ctx context.Context, blobKey string) (*bridge.MappingRecord, error) {
	return r.getOne(ctx, "get mapping by blob key", `SELECT `+mappingColumns+` FROM mapping WHERE blob_key = $1`, blobKey)
}

func (r *Repository) GetMappingByContentID(ctx context.Context, contentID string) (*bridge.MappingRecord, error) {
	return r.getOne(ctx, "get mapping by content id", `SELECT `+mappingColumns+` FROM mapping WHERE content_id = $1`, contentID)
}

func (r *Repository) getOne(ctx context.Context, operation, query string, arg interface{}) (*bridge.MappingRecord, error) {
	record, err := scanMapping(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}

	metadata, err := r.loadMetadata(ctx, []uuid.UUID{record.ID})
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	record.Metadata = metadata[record.ID]

	return record, nil
}

func (r *Repository) ListMappings(ctx context.Context, params bridge.ListMappingsParams) ([]*bridge.MappingRecord, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM mapping`).Scan(&total); err != nil {
		return nil, 0, r.handlePostgresError("count mappings", err)
	}

	query := `
		SELECT ` + mappingColumns + `
		FROM mapping
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, r.handlePostgresError("list mappings", err)
	}
	defer rows.Close()

	records := []*bridge.MappingRecord{}
	ids := []uuid.UUID{}
	for rows.Next() {
		record, err := scanMapping(rows)
		if err != nil {
			return nil, 0, r.handlePostgresError("scan mapping", err)
		}
		records = append(records, record)
		ids = append(ids, record.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.handlePostgresError("iterate mapping rows", err)
	}

	if len(ids) > 0 {
		metadata, err := r.loadMetadata(ctx, ids)
		if err != nil {
			return nil, 0, r.handlePostgresError("list mapping metadata", err)
		}
		for _, record := range records {
			record.Metadata = metadata[record.ID]
		}
	}

	return records, total, nil
}

func (r *Repository) loadMetadata(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]map[string]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT mapping_id, key, value FROM mapping_metadata WHERE mapping_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]map[string]string)
	for rows.Next() {
		var id uuid.UUID
		var key, value string
		if err := rows.Scan(&id, &key, &value); err != nil {
			return nil, err
		}
		if result[id] == nil {
			result[id] = make(map[string]string)
		}
		result[id][key] = value
	}

	return result, rows.Err()
}

func writeMetadata(ctx context.Context, tx pgx.Tx, id uuid.UUID, metadata map[string]string) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM mapping_metadata WHERE mapping_id = $1`, id)
	for key, value := range metadata {
		batch.Queue(`INSERT INTO mapping_metadata (mapping_id, key, value) VALUES ($1, $2, $3)`, id, key, value)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func scanMapping(row pgx.Row) (*bridge.MappingRecord, error) {
	var record bridge.MappingRecord
	err := row.Scan(
		&record.ID, &record.BlobKey, &record.ContentID, &record.Size, &record.MimeType,
		&record.ContentStoreID, &record.DisplayName, &record.Network, &record.FileCount,
		&record.ContentCreatedAt, &record.SourceLastModified,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
