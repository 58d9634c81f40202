package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docchat/internal/index"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
)

const indexEntryBatchSize = 200

// IndexEntryRepo persists vector index entries in the index_entries table.
type IndexEntryRepo struct {
	db *sql.DB
}

func NewIndexEntryRepo(db *sql.DB) *IndexEntryRepo {
	return &IndexEntryRepo{db: db}
}

func (r *IndexEntryRepo) SaveEntries(ctx context.Context, entries []index.Entry) error {
	for start := 0; start < len(entries); start += indexEntryBatchSize {
		end := min(start+indexEntryBatchSize, len(entries))
		data := make([]map[string]interface{}, 0, end-start)
		for _, e := range entries[start:end] {
			data = append(data, map[string]interface{}{
				"id":          e.ID,
				"seq":         int64(e.Seq),
				"owner_id":    e.Scope.OwnerID,
				"document_id": e.Scope.DocumentID,
				"text":        e.Text,
				"embedding":   pgvector.NewVector(e.Vector),
				"ctime":       e.Ctime,
			})
		}
		sqlStr, args, err := builder.BuildInsert("index_entries", data)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr+" ON CONFLICT (id) DO NOTHING", args)
		if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *IndexEntryRepo) DeleteByDocument(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	where := map[string]interface{}{
		"document_id in": dbutil.InArgs(documentIDs),
	}
	sqlStr, args, err := builder.BuildDelete("index_entries", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *IndexEntryRepo) LoadEntries(ctx context.Context) ([]index.Entry, error) {
	where := map[string]interface{}{
		"_orderby": "seq asc",
	}
	sqlStr, args, err := builder.BuildSelect("index_entries", where, []string{"id", "seq", "owner_id", "document_id", "text", "embedding", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []index.Entry
	for rows.Next() {
		var (
			e   index.Entry
			seq int64
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.ID, &seq, &e.Scope.OwnerID, &e.Scope.DocumentID, &e.Text, &vec, &e.Ctime); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Vector = vec.Slice()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteAll clears the table before a full rebuild.
func (r *IndexEntryRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM index_entries`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
