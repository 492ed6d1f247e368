package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/server/store/migrations"
	"github.com/hubenschmidt/postsearch/vector"
)

// SQLiteStore implements PostStore using SQLite. Embeddings are float32 BLOBs
// and nearest-neighbour queries are exact scans, so probes are ignored.
type SQLiteStore struct {
	db   *sql.DB
	dim  int
	path string
}

// NewSQLiteStore opens (or creates) the database at path
func NewSQLiteStore(path string, dim int) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; background workers would otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := runSQLiteMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, dim: dim, path: path}, nil
}

func runSQLiteMigrations(db *sql.DB) error {
	data, err := migrations.SQLite.ReadFile("sqlite/001_posts.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	_, err = db.Exec(string(data))
	if err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreatePost(ctx context.Context, title, body string) (Post, error) {
	if err := validateTitle(title); err != nil {
		return Post{}, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (title, body, created_at) VALUES (?, ?, ?)`,
		title, body, now.UnixMilli(),
	)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Post{}, fmt.Errorf("last insert id: %w", err)
	}
	return Post{ID: id, Title: title, Body: body, CreatedAt: time.UnixMilli(now.UnixMilli()).UTC()}, nil
}

type sqliteRow struct {
	post      Post
	embedding []byte
	model     sql.NullString
	version   sql.NullInt64
	createdAt int64
}

func (r *sqliteRow) decode() (Post, error) {
	p := r.post
	p.CreatedAt = time.UnixMilli(r.createdAt).UTC()
	p.EmbeddingModel = r.model.String
	p.EmbeddingVersion = int(r.version.Int64)
	if len(r.embedding) > 0 {
		vec, err := vector.Decode(r.embedding)
		if err != nil {
			return p, fmt.Errorf("decode embedding for post %d: %w", p.ID, err)
		}
		p.Embedding = vec
	}
	return p, nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, id int64) (Post, error) {
	var r sqliteRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, body, embedding, embedding_model, embedding_version, created_at
		FROM posts WHERE id = ?`, id).Scan(
		&r.post.ID, &r.post.Title, &r.post.Body, &r.embedding, &r.model, &r.version, &r.createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	if err != nil {
		return Post{}, fmt.Errorf("query post: %w", err)
	}
	return r.decode()
}

func (s *SQLiteStore) GetPostText(ctx context.Context, id int64) (string, string, error) {
	var title, body string
	err := s.db.QueryRowContext(ctx, `SELECT title, body FROM posts WHERE id = ?`, id).Scan(&title, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	if err != nil {
		return "", "", fmt.Errorf("query post text: %w", err)
	}
	return title, body, nil
}

func (s *SQLiteStore) SetEmbedding(ctx context.Context, id int64, vec []float32, model string, version int) error {
	if err := validateEmbedding(vec, model, s.dim); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET embedding = ?, embedding_model = ?, embedding_version = ?
		WHERE id = ?`, vector.Encode(vec), model, version, id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	return nil
}

func (s *SQLiteStore) NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Neighbor, error) {
	q, err := validateQuery(q, s.dim)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, title, body, embedding, embedding_model, embedding_version, created_at
		FROM posts WHERE embedding IS NOT NULL`
	var args []any
	if q.Model != "" {
		query += ` AND embedding_model = ?`
		args = append(args, q.Model)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var candidates []Neighbor
	for rows.Next() {
		var r sqliteRow
		if err := rows.Scan(&r.post.ID, &r.post.Title, &r.post.Body, &r.embedding, &r.model, &r.version, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p, err := r.decode()
		if err != nil {
			return nil, err
		}
		d := q.Metric.Distance(q.Vector, p.Embedding)
		p.Embedding = nil
		candidates = append(candidates, Neighbor{Post: p, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankExact(candidates, q.Limit), nil
}

func (s *SQLiteStore) ListPosts(ctx context.Context, limit int) ([]PostSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(embedding_model, ''), embedding IS NOT NULL
		FROM posts ORDER BY id LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var out []PostSummary
	for rows.Next() {
		var p PostSummary
		if err := rows.Scan(&p.ID, &p.Title, &p.EmbeddingModel, &p.HasEmbedding); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Database: s.path, ByModel: map[string]int64{}}
	err := s.db.QueryRowContext(ctx, `SELECT count(*), count(embedding) FROM posts`).Scan(
		&st.PostsTotal, &st.PostsWithEmbedding,
	)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT embedding_model, count(*) FROM posts
		WHERE embedding_model IS NOT NULL GROUP BY embedding_model`)
	if err != nil {
		return st, fmt.Errorf("query model counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		var n int64
		if err := rows.Scan(&model, &n); err != nil {
			return st, fmt.Errorf("scan model count: %w", err)
		}
		st.ByModel[model] = n
	}
	return st, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
