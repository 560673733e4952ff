package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"question-rag/internal/config"
)

// Usage is the JSON payload of the usage column. Only rows whose usage
// holds questions are authoritative for a content hash.
type Usage struct {
	Questions string `json:"questions,omitempty"`
	// History holds earlier question sets for the same content, oldest first.
	History []string `json:"history,omitempty"`
	Model   string   `json:"model,omitempty"`
}

// Document is one row of ai.pdf_documents. A row is either a chunk (with an
// embedding and no usage) or the authoritative generation record.
type Document struct {
	bun.BaseModel `bun:"table:ai.pdf_documents,alias:d"`

	ID          string           `bun:"id,pk"`
	Name        string           `bun:"name"`
	Metadata    map[string]any   `bun:"metadata,type:jsonb"`
	Filters     map[string]any   `bun:"filters,type:jsonb"`
	Content     string           `bun:"content"`
	Embedding   *pgvector.Vector `bun:"embedding,type:vector"`
	Usage       *Usage           `bun:"usage,type:jsonb"`
	CreatedAt   time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   bun.NullTime     `bun:"updated_at"`
	ContentHash string           `bun:"content_hash"`
}

// Questions returns the stored question text, empty for chunk rows.
func (d *Document) Questions() string {
	if d == nil || d.Usage == nil {
		return ""
	}
	return d.Usage.Questions
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool. Connections are taken from the pool
// per query and returned when it completes.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	var sqldb *sql.DB
	switch cfg.Driver {
	case config.DriverPQ:
		var err error
		sqldb, err = sql.Open("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	default:
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL)))
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return sqldb, nil
}

// InitDB creates the vector extension, the ai schema, the documents table
// and its indexes when they do not exist yet.
func InitDB(ctx context.Context, db *bun.DB, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("invalid vector size %d", vectorSize)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE SCHEMA IF NOT EXISTS ai`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ai.pdf_documents (
			id varchar PRIMARY KEY,
			name varchar,
			metadata jsonb DEFAULT '{}'::jsonb,
			filters jsonb DEFAULT '{}'::jsonb,
			content text,
			embedding vector(%d),
			usage jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz,
			content_hash varchar
		)`, vectorSize),
		`CREATE INDEX IF NOT EXISTS pdf_documents_content_hash_idx ON ai.pdf_documents (content_hash)`,
		// at most one authoritative record per content hash
		`CREATE UNIQUE INDEX IF NOT EXISTS pdf_documents_questions_hash_uidx
			ON ai.pdf_documents (content_hash) WHERE usage->'questions' IS NOT NULL`,
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("init schema: %w", err)
			}
		}
		return checkVectorSize(ctx, tx, vectorSize)
	})
}

// checkVectorSize fails when an existing table was created for another
// embedding model.
func checkVectorSize(ctx context.Context, tx bun.Tx, vectorSize int) error {
	var dims int
	err := tx.NewRaw(`SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'ai.pdf_documents'::regclass AND attname = 'embedding'`).Scan(ctx, &dims)
	if err != nil {
		return fmt.Errorf("read embedding column: %w", err)
	}
	if dims > 0 && dims != vectorSize {
		return fmt.Errorf("embedding column has %d dimensions, embedder produces %d", dims, vectorSize)
	}
	return nil
}

// drop table documents
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}
