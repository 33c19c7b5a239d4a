package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/raglinehq/ragline/internal/domain"
)

// PostgresStore implements DocumentStore against Postgres with the pgvector
// extension. The expected schema, owned by the ingestion process:
//
//	CREATE TABLE documents (
//		id         TEXT PRIMARY KEY,
//		title      TEXT NOT NULL,
//		content    TEXT NOT NULL,
//		source     TEXT,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//		embedding  vector(1536)
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
	// queryTimeout bounds pool acquisition plus query execution per call,
	// so an exhausted pool queues with a deadline instead of indefinitely.
	queryTimeout time.Duration
	dim          int
}

var _ DocumentStore = (*PostgresStore)(nil)

// PostgresConfig configures the document store connection pool.
type PostgresConfig struct {
	DSN            string
	MaxConns       int
	MinConns       int
	AcquireTimeout time.Duration
	EmbeddingDim   int
}

// NewPostgresStore creates a new document store backed by a pgx pool.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document db url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &PostgresStore{
		pool:         pool,
		queryTimeout: cfg.AcquireTimeout,
		dim:          cfg.EmbeddingDim,
	}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies document store connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	qctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.pool.Ping(qctx); err != nil {
		return mapStoreErr(ctx, "ping", err)
	}
	return nil
}

// SearchByVector returns the top-K documents by cosine similarity to the
// query embedding. Scores are 1 - cosine distance.
func (s *PostgresStore) SearchByVector(ctx context.Context, embedding domain.EmbeddingVector, k int) ([]domain.ScoredCandidate, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("embedding has dimension %d, store expects %d", len(embedding), s.dim)
	}

	qctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(qctx,
		`SELECT id, title, content, source, created_at, 1 - (embedding <=> $1) AS score
		 FROM documents
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, mapStoreErr(ctx, "vector search", err)
	}
	defer rows.Close()

	return scanCandidates(ctx, rows, domain.ProvenanceSemantic)
}

// SearchByKeyword returns the top-K documents by full-text rank against the
// query terms.
func (s *PostgresStore) SearchByKeyword(ctx context.Context, query string, k int) ([]domain.ScoredCandidate, error) {
	qctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(qctx,
		`SELECT id, title, content, source, created_at,
		        ts_rank(to_tsvector('english', title || ' ' || content), q) AS score
		 FROM documents, websearch_to_tsquery('english', $1) q
		 WHERE to_tsvector('english', title || ' ' || content) @@ q
		 ORDER BY score DESC, created_at DESC
		 LIMIT $2`,
		query, k)
	if err != nil {
		return nil, mapStoreErr(ctx, "keyword search", err)
	}
	defer rows.Close()

	return scanCandidates(ctx, rows, domain.ProvenanceKeyword)
}

// RecentDocuments lists the most recently created documents, optionally
// filtered by source.
func (s *PostgresStore) RecentDocuments(ctx context.Context, limit int, source string) ([]domain.Document, error) {
	query := `SELECT id, title, content, source, created_at FROM documents`
	args := []interface{}{}

	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	qctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(qctx, query, args...)
	if err != nil {
		return nil, mapStoreErr(ctx, "recent documents", err)
	}
	defer rows.Close()

	return scanDocuments(ctx, rows)
}

// SearchByDateRange lists documents created within [from, to), newest first.
func (s *PostgresStore) SearchByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Document, error) {
	qctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(qctx,
		`SELECT id, title, content, source, created_at
		 FROM documents
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		from, to, limit)
	if err != nil {
		return nil, mapStoreErr(ctx, "date range search", err)
	}
	defer rows.Close()

	return scanDocuments(ctx, rows)
}

// GetDocument retrieves a document by ID. Returns nil when not found.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	qctx, cancel := s.opContext(ctx)
	defer cancel()

	var doc domain.Document
	var source sql.NullString
	err := s.pool.QueryRow(qctx,
		`SELECT id, title, content, source, created_at FROM documents WHERE id = $1`,
		id).Scan(&doc.ID, &doc.Title, &doc.Content, &source, &doc.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapStoreErr(ctx, "get document", err)
	}
	if source.Valid {
		doc.Source = source.String
	}
	return &doc, nil
}

// CountDocuments returns the total number of stored documents.
func (s *PostgresStore) CountDocuments(ctx context.Context) (int, error) {
	qctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int
	if err := s.pool.QueryRow(qctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, mapStoreErr(ctx, "count documents", err)
	}
	return count, nil
}

func (s *PostgresStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func scanCandidates(ctx context.Context, rows pgx.Rows, provenance domain.Provenance) ([]domain.ScoredCandidate, error) {
	var candidates []domain.ScoredCandidate
	for rows.Next() {
		var c domain.ScoredCandidate
		var source sql.NullString
		if err := rows.Scan(&c.Document.ID, &c.Document.Title, &c.Document.Content, &source, &c.Document.CreatedAt, &c.Score); err != nil {
			return nil, mapStoreErr(ctx, "scan candidate", err)
		}
		if source.Valid {
			c.Document.Source = source.String
		}
		c.Provenance = provenance
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreErr(ctx, "read candidates", err)
	}
	return candidates, nil
}

func scanDocuments(ctx context.Context, rows pgx.Rows) ([]domain.Document, error) {
	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var source sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &source, &doc.CreatedAt); err != nil {
			return nil, mapStoreErr(ctx, "scan document", err)
		}
		if source.Valid {
			doc.Source = source.String
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreErr(ctx, "read documents", err)
	}
	return docs, nil
}

// mapStoreErr classifies store failures as ErrStoreUnavailable while
// preserving caller cancellation, so a disconnecting client is not reported
// as a store outage.
func mapStoreErr(callerCtx context.Context, op string, err error) error {
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	return fmt.Errorf("%s failed: %w: %w", op, domain.ErrStoreUnavailable, err)
}
