package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Embedder turns text into a vector for semantic product search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SemanticIndex is a product search index backed by a PostgreSQL table with a
// pgvector HNSW index. All methods are safe for concurrent use.
type SemanticIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// SemanticSchema creates the product embeddings table. The vector dimension
// must match the embedder's, so it is interpolated by [Migrate].
const SemanticSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS product_embeddings (
    product_id TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    embedding  VECTOR(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS product_embeddings_hnsw
    ON product_embeddings USING hnsw (embedding vector_cosine_ops);
`

// NewSemanticIndex creates the index over an existing pool.
func NewSemanticIndex(pool *pgxpool.Pool, embedder Embedder) *SemanticIndex {
	return &SemanticIndex{pool: pool, embedder: embedder}
}

// Migrate creates the embeddings table sized to the embedder's dimensions.
func (s *SemanticIndex) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(SemanticSchema, s.embedder.Dimensions()))
	if err != nil {
		return fmt.Errorf("semantic index: migrate: %w", err)
	}
	return nil
}

// IndexProduct embeds the product's title and description and upserts the
// vector. An existing row for the same product is completely replaced.
func (s *SemanticIndex) IndexProduct(ctx context.Context, p Product) error {
	vec, err := s.embedder.Embed(ctx, p.Title+"\n"+p.Description)
	if err != nil {
		return fmt.Errorf("semantic index: embed product %s: %w", p.ID, err)
	}

	const q = `
		INSERT INTO product_embeddings (product_id, title, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET
		    title     = EXCLUDED.title,
		    embedding = EXCLUDED.embedding`
	if _, err := s.pool.Exec(ctx, q, p.ID, p.Title, pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("semantic index: index product %s: %w", p.ID, err)
	}
	return nil
}

// Hit is one semantic search result, most similar first.
type Hit struct {
	ProductID string
	Title     string
	Distance  float64
}

// Search returns the topK products closest (cosine distance) to the query.
func (s *SemanticIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic index: embed query: %w", err)
	}

	const q = `
		SELECT product_id, title, embedding <=> $1 AS distance
		FROM   product_embeddings
		ORDER  BY distance
		LIMIT  $2`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}

	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Hit, error) {
		var h Hit
		err := row.Scan(&h.ProductID, &h.Title, &h.Distance)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("semantic index: scan rows: %w", err)
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}
