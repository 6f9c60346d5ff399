package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/storage/models"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// NewFromDB wraps an already opened handle.
func NewFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversion_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		sql_text TEXT NOT NULL,
		source TEXT NOT NULL,
		rag_domain TEXT,
		rag_context_used INTEGER DEFAULT 0,
		question_type TEXT,
		domain_terms_found INTEGER DEFAULT 0,
		clauses_count INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversion_created ON conversion_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_conversion_source ON conversion_history(source);

	CREATE TABLE IF NOT EXISTS conversion_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversion_id TEXT NOT NULL,
		helpful INTEGER NOT NULL,
		corrected_sql TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversion_id) REFERENCES conversion_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_conversion ON conversion_feedback(conversion_id);

	CREATE TABLE IF NOT EXISTS rag_documents (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		filename TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(domain, filename)
	);
	CREATE INDEX IF NOT EXISTS idx_rag_documents_domain ON rag_documents(domain);

	CREATE TABLE IF NOT EXISTS rag_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding_id TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES rag_documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_rag_chunks_doc ON rag_chunks(doc_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (c *Client) InsertConversion(record *models.Conversion) error {
	query := `
		INSERT INTO conversion_history (id, question, sql_text, source, rag_domain, rag_context_used,
			question_type, domain_terms_found, clauses_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.Question,
		record.SQL,
		record.Source,
		record.RAGDomain,
		boolInt(record.RAGContextUsed),
		record.QuestionType,
		record.DomainTermsFound,
		record.ClausesCount,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}

	logger.Debug("Conversion recorded",
		zap.String("conversion_id", record.ID),
		zap.String("source", record.Source),
	)

	return nil
}

const conversionColumns = `id, question, sql_text, source, rag_domain, rag_context_used,
	question_type, domain_terms_found, clauses_count, latency_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(s scanner) (models.Conversion, error) {
	var (
		r         models.Conversion
		domain    sql.NullString
		qtype     sql.NullString
		ragUsed   int
		createdAt int64
	)
	err := s.Scan(&r.ID, &r.Question, &r.SQL, &r.Source, &domain, &ragUsed,
		&qtype, &r.DomainTermsFound, &r.ClausesCount, &r.LatencyMS, &createdAt)
	if err != nil {
		return r, err
	}
	r.RAGDomain = domain.String
	r.QuestionType = qtype.String
	r.RAGContextUsed = ragUsed != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	return r, nil
}

func (c *Client) GetConversion(id string) (*models.Conversion, error) {
	row := c.db.QueryRow(`SELECT `+conversionColumns+` FROM conversion_history WHERE id = ?`, id)
	r, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return &r, nil
}

func (c *Client) GetConversionHistory(limit int) ([]models.Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM conversion_history ORDER BY created_at DESC LIMIT ?`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion history: %w", err)
	}
	defer rows.Close()

	records := []models.Conversion{}
	for rows.Next() {
		r, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) StoreFeedback(feedback *models.Feedback) error {
	query := `INSERT INTO conversion_feedback (conversion_id, helpful, corrected_sql, comment, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		feedback.ConversionID,
		boolInt(feedback.Helpful),
		feedback.CorrectedSQL,
		feedback.Comment,
		feedback.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("conversion_id", feedback.ConversionID),
		zap.Bool("helpful", feedback.Helpful),
	)

	return nil
}

// ListFeedback returns the most recent feedback entries, newest first.
func (c *Client) ListFeedback(limit int) ([]models.Feedback, error) {
	query := `SELECT id, conversion_id, helpful, COALESCE(corrected_sql, ''), COALESCE(comment, ''), created_at
		FROM conversion_feedback ORDER BY created_at DESC LIMIT ?`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	out := []models.Feedback{}
	for rows.Next() {
		var (
			f         models.Feedback
			helpful   int
			createdAt int64
		)
		if err := rows.Scan(&f.ID, &f.ConversionID, &helpful, &f.CorrectedSQL, &f.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		f.Helpful = helpful != 0
		f.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, f)
	}

	return out, rows.Err()
}

// SaveRAGDocument replaces the registry entry for (domain, filename) and
// all of its chunks in one transaction.
func (c *Client) SaveRAGDocument(doc *models.RAGDocument, chunks []models.RAGChunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM rag_chunks WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO rag_documents (id, domain, filename, size_bytes, content_hash, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`,
		doc.ID,
		doc.Domain,
		doc.Filename,
		doc.SizeBytes,
		doc.ContentHash,
		doc.ChunkCount,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO rag_chunks (id, doc_id, chunk_index, text, embedding_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.Exec(ch.ID, ch.DocID, ch.ChunkIndex, ch.Text, ch.EmbeddingID, ch.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	logger.Debug("RAG document saved",
		zap.String("doc_id", doc.ID),
		zap.String("domain", doc.Domain),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

func (c *Client) ListRAGDocuments(domain string) ([]models.RAGDocument, error) {
	query := `
		SELECT id, domain, filename, size_bytes, content_hash, chunk_count, created_at, updated_at
		FROM rag_documents
		WHERE domain = ?
		ORDER BY filename
	`

	rows, err := c.db.Query(query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.RAGDocument{}
	for rows.Next() {
		var d models.RAGDocument
		var createdAt, updatedAt int64
		if err := rows.Scan(&d.ID, &d.Domain, &d.Filename, &d.SizeBytes, &d.ContentHash, &d.ChunkCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		d.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

func (c *Client) DeleteRAGDocument(domain, filename string) error {
	res, err := c.db.Exec(`DELETE FROM rag_documents WHERE domain = ? AND filename = ?`, domain, filename)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RAGStats counts documents and chunks per domain. Domains without
// documents are absent.
func (c *Client) RAGStats() ([]models.DomainStats, error) {
	rows, err := c.db.Query(`
		SELECT domain, COUNT(*), COALESCE(SUM(chunk_count), 0)
		FROM rag_documents
		GROUP BY domain
		ORDER BY domain
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get rag stats: %w", err)
	}
	defer rows.Close()

	stats := []models.DomainStats{}
	for rows.Next() {
		var s models.DomainStats
		if err := rows.Scan(&s.Domain, &s.Documents, &s.TotalChunks); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
