package models

import "time"

// Conversion is one answered question, as shown in the history view.
type Conversion struct {
	ID               string    `json:"id"`
	Question         string    `json:"question"`
	SQL              string    `json:"sql"`
	Source           string    `json:"source"`
	RAGDomain        string    `json:"rag_domain,omitempty"`
	RAGContextUsed   bool      `json:"rag_context_used"`
	QuestionType     string    `json:"question_type"`
	DomainTermsFound int       `json:"domain_terms_found"`
	ClausesCount     int       `json:"clauses_count"`
	LatencyMS        int       `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

type Feedback struct {
	ID           int       `json:"id"`
	ConversionID string    `json:"conversion_id"`
	Helpful      bool      `json:"helpful"`
	CorrectedSQL string    `json:"corrected_sql,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RAGDocument is an uploaded reference file. The text lives in the vector
// store and in RAGChunk rows; this is the registry entry.
type RAGDocument struct {
	ID          string    `json:"id"`
	Domain      string    `json:"domain"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentHash string    `json:"content_hash"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RAGChunk struct {
	ID          string
	DocID       string
	ChunkIndex  int
	Text        string
	EmbeddingID string
	CreatedAt   time.Time
}

type DomainStats struct {
	Domain      string `json:"domain"`
	Documents   int    `json:"documents"`
	TotalChunks int    `json:"total_chunks"`
}
