package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"text/template"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/server/store/migrations"
	"github.com/hubenschmidt/postsearch/vector"
)

const ivfflatLists = 100

// PostgresStore implements PostStore using PostgreSQL and pgvector ivfflat indexes
type PostgresStore struct {
	db  *sql.DB
	dim int
	log *logrus.Entry
}

// NewPostgresStore connects, runs the schema migration for dimension dim, and
// returns the store.
func NewPostgresStore(dsn string, dim int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runPostgresMigrations(ctx, db, dim); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &PostgresStore{db: db, dim: dim, log: logrus.WithField("component", "store.postgres")}
	s.checkColumnDimension(ctx)
	return s, nil
}

func runPostgresMigrations(ctx context.Context, db *sql.DB, dim int) error {
	data, err := migrations.Postgres.ReadFile("postgres/001_posts.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	ddl, err := renderMigration(string(data), dim)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func renderMigration(src string, dim int) (string, error) {
	tmpl, err := template.New("migration").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse migration: %w", err)
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct{ Dimension, Lists int }{dim, ivfflatLists})
	if err != nil {
		return "", fmt.Errorf("render migration: %w", err)
	}
	return buf.String(), nil
}

// checkColumnDimension warns when an existing table was created for another dimension.
func (s *PostgresStore) checkColumnDimension(ctx context.Context) {
	var typmod int
	err := s.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'posts'::regclass AND attname = 'embedding'`).Scan(&typmod)
	if err != nil {
		s.log.WithError(err).Debug("could not read embedding column type")
		return
	}
	if typmod > 0 && typmod != s.dim {
		s.log.WithFields(logrus.Fields{"column_dim": typmod, "provider_dim": s.dim}).
			Warn("posts.embedding dimension differs from provider; new embeddings will be rejected")
	}
}

func (s *PostgresStore) CreatePost(ctx context.Context, title, body string) (Post, error) {
	if err := validateTitle(title); err != nil {
		return Post{}, err
	}

	p := Post{Title: title, Body: body}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (title, body) VALUES ($1, $2)
		RETURNING id, created_at`, title, body).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id int64) (Post, error) {
	var (
		p       Post
		emb     *pgvector.Vector
		model   sql.NullString
		version sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, body, embedding, embedding_model, embedding_version, created_at
		FROM posts WHERE id = $1`, id).Scan(
		&p.ID, &p.Title, &p.Body, &emb, &model, &version, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	if err != nil {
		return Post{}, fmt.Errorf("query post: %w", err)
	}

	if emb != nil {
		p.Embedding = emb.Slice()
	}
	p.EmbeddingModel = model.String
	p.EmbeddingVersion = int(version.Int64)
	return p, nil
}

func (s *PostgresStore) GetPostText(ctx context.Context, id int64) (string, string, error) {
	var title, body string
	err := s.db.QueryRowContext(ctx, `SELECT title, body FROM posts WHERE id = $1`, id).Scan(&title, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", core.Wrapf(core.ErrNotFound, "post %d", id)
	}
	if err != nil {
		return "", "", fmt.Errorf("query post text: %w", err)
	}
	return title, body, nil
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, id int64, vec []float32, model string, version int) error {
	if err := validateEmbedding(vec, model, s.dim); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET embedding = $1, embedding_model = $2, embedding_version = $3
		WHERE id = $4`, pgvector.NewVector(vec), model, version, id)
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

func distanceOperator(m vector.Metric) string {
	if m == vector.Euclidean {
		return "<->"
	}
	return "<=>"
}

// NearestNeighbors runs the ANN query in a read-only transaction so the probe
// count stays local to this query.
func (s *PostgresStore) NearestNeighbors(ctx context.Context, q NeighborQuery) ([]Neighbor, error) {
	q, err := validateQuery(q, s.dim)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if q.Probes > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('ivfflat.probes', $1, true)`, strconv.Itoa(q.Probes)); err != nil {
			return nil, fmt.Errorf("set probes: %w", err)
		}
	}

	op := distanceOperator(q.Metric)
	args := []any{pgvector.NewVector(q.Vector), q.Limit}
	filter := ""
	if q.Model != "" {
		filter = " AND embedding_model = $3"
		args = append(args, q.Model)
	}

	query := fmt.Sprintf(`
		SELECT id, title, body, embedding_model, embedding_version, created_at,
		       embedding %[1]s $1 AS distance
		FROM posts
		WHERE embedding IS NOT NULL%[2]s
		ORDER BY embedding %[1]s $1, id
		LIMIT $2`, op, filter)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer rows.Close()

	var results []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.EmbeddingModel, &n.EmbeddingVersion, &n.CreatedAt, &n.Distance); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, tx.Commit()
}

func (s *PostgresStore) ListPosts(ctx context.Context, limit int) ([]PostSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(embedding_model, ''), embedding IS NOT NULL
		FROM posts
		ORDER BY id
		LIMIT $1`, listLimit(limit))
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

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByModel: map[string]int64{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT current_database(), count(*), count(embedding) FROM posts`).Scan(
		&st.Database, &st.PostsTotal, &st.PostsWithEmbedding,
	)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT embedding_model, count(*) FROM posts
		WHERE embedding_model IS NOT NULL
		GROUP BY embedding_model`)
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
