package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const getMapDocument = `-- name: GetMapDocument :one
SELECT key,
       value,
       updated_at
FROM map_documents
WHERE key = $1
`

func (q *Queries) GetMapDocument(ctx context.Context, key string) (MapDocument, error) {
	row := q.db.QueryRow(ctx, getMapDocument, key)
	var i MapDocument
	err := row.Scan(&i.Key, &i.Value, &i.UpdatedAt)
	return i, err
}

const upsertMapDocument = `-- name: UpsertMapDocument :exec
INSERT INTO map_documents (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value,
    updated_at = now()
`

type UpsertMapDocumentParams struct {
	Key   string
	Value []byte
}

func (q *Queries) UpsertMapDocument(ctx context.Context, arg UpsertMapDocumentParams) error {
	_, err := q.db.Exec(ctx, upsertMapDocument, arg.Key, arg.Value)
	return err
}

const deleteMapDocument = `-- name: DeleteMapDocument :execrows
DELETE FROM map_documents
WHERE key = $1
`

func (q *Queries) DeleteMapDocument(ctx context.Context, key string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteMapDocument, key)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listMapDocumentKeys = `-- name: ListMapDocumentKeys :many
SELECT key
FROM map_documents
WHERE left(key, length($1)) = $1
ORDER BY key
`

func (q *Queries) ListMapDocumentKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := q.db.Query(ctx, listMapDocumentKeys, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
