package sqlite

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcb-text2sql/backend/internal/storage/models"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db), mock
}

var conversionCols = []string{
	"id", "question", "sql_text", "source", "rag_domain", "rag_context_used",
	"question_type", "domain_terms_found", "clauses_count", "latency_ms", "created_at",
}

func TestInitSchema(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS conversion_history").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, c.InitSchema())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConversion(t *testing.T) {
	c, mock := newMockClient(t)
	created := time.Unix(1700000000, 0)

	mock.ExpectExec("INSERT INTO conversion_history").
		WithArgs("c-1", "고객 수", "SELECT COUNT(*) FROM customers;", "llm", "personal_credit", 1,
			"COUNT_QUERY", 1, 1, 120, created.Unix()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := c.InsertConversion(&models.Conversion{
		ID:               "c-1",
		Question:         "고객 수",
		SQL:              "SELECT COUNT(*) FROM customers;",
		Source:           "llm",
		RAGDomain:        "personal_credit",
		RAGContextUsed:   true,
		QuestionType:     "COUNT_QUERY",
		DomainTermsFound: 1,
		ClausesCount:     1,
		LatencyMS:        120,
		CreatedAt:        created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertConversion_WrapsError(t *testing.T) {
	c, mock := newMockClient(t)
	boom := errors.New("disk full")
	mock.ExpectExec("INSERT INTO conversion_history").WillReturnError(boom)

	err := c.InsertConversion(&models.Conversion{ID: "c-1", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "failed to insert conversion")
}

func TestGetConversionHistory(t *testing.T) {
	c, mock := newMockClient(t)
	rows := sqlmock.NewRows(conversionCols).
		AddRow("c-2", "평균 신용점수", "SELECT AVG(credit_score) FROM credit_scores;", "rule", nil, 0, "AVG_QUERY", 1, 1, 3, int64(1700000100)).
		AddRow("c-1", "고객 수", "SELECT COUNT(*) FROM customers;", "llm", "policy_regulation", 1, nil, 0, 1, 90, int64(1700000000))

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversion_history ORDER BY created_at DESC LIMIT ?")).
		WithArgs(2).
		WillReturnRows(rows)

	got, err := c.GetConversionHistory(2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c-2", got[0].ID)
	assert.Equal(t, "rule", got[0].Source)
	assert.Empty(t, got[0].RAGDomain)
	assert.False(t, got[0].RAGContextUsed)
	assert.Equal(t, "AVG_QUERY", got[0].QuestionType)

	assert.Equal(t, "policy_regulation", got[1].RAGDomain)
	assert.True(t, got[1].RAGContextUsed)
	assert.Empty(t, got[1].QuestionType)
	assert.Equal(t, time.Unix(1700000000, 0), got[1].CreatedAt)
}

func TestGetConversionHistory_EmptyIsNotNil(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery("FROM conversion_history").WillReturnRows(sqlmock.NewRows(conversionCols))

	got, err := c.GetConversionHistory(10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetConversion_NotFound(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectQuery("FROM conversion_history WHERE id = ?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(conversionCols))

	_, err := c.GetConversion("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFeedback(t *testing.T) {
	c, mock := newMockClient(t)
	created := time.Unix(1700000500, 0)
	mock.ExpectExec("INSERT INTO conversion_feedback").
		WithArgs("c-1", 0, "SELECT 1;", "wrong table", created.Unix()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := c.StoreFeedback(&models.Feedback{
		ConversionID: "c-1",
		Helpful:      false,
		CorrectedSQL: "SELECT 1;",
		Comment:      "wrong table",
		CreatedAt:    created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListFeedback(t *testing.T) {
	c, mock := newMockClient(t)
	rows := sqlmock.NewRows([]string{"id", "conversion_id", "helpful", "corrected_sql", "comment", "created_at"}).
		AddRow(2, "c-2", 1, "", "", int64(1700000600)).
		AddRow(1, "c-1", 0, "SELECT 1;", "wrong table", int64(1700000500))
	mock.ExpectQuery("FROM conversion_feedback ORDER BY created_at DESC").WithArgs(10).WillReturnRows(rows)

	got, err := c.ListFeedback(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Helpful)
	assert.False(t, got[1].Helpful)
	assert.Equal(t, "SELECT 1;", got[1].CorrectedSQL)
	assert.Equal(t, time.Unix(1700000500, 0), got[1].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRAGDocument(t *testing.T) {
	c, mock := newMockClient(t)
	now := time.Unix(1700001000, 0)
	doc := &models.RAGDocument{
		ID: "policy_regulation_rules.md", Domain: "policy_regulation", Filename: "rules.md",
		SizeBytes: 2048, ContentHash: "abc", ChunkCount: 2, CreatedAt: now, UpdatedAt: now,
	}
	chunks := []models.RAGChunk{
		{ID: "policy_regulation_rules.md_0", DocID: doc.ID, ChunkIndex: 0, Text: "첫 번째", EmbeddingID: "policy_regulation_rules.md_0", CreatedAt: now},
		{ID: "policy_regulation_rules.md_1", DocID: doc.ID, ChunkIndex: 1, Text: "두 번째", EmbeddingID: "policy_regulation_rules.md_1", CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM rag_chunks").WithArgs(doc.ID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO rag_documents").WillReturnResult(sqlmock.NewResult(1, 1))
	prep := mock.ExpectPrepare("INSERT INTO rag_chunks")
	prep.ExpectExec().WithArgs(chunks[0].ID, doc.ID, 0, "첫 번째", chunks[0].EmbeddingID, now.Unix()).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(chunks[1].ID, doc.ID, 1, "두 번째", chunks[1].EmbeddingID, now.Unix()).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, c.SaveRAGDocument(doc, chunks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRAGDocument_RollsBackOnChunkFailure(t *testing.T) {
	c, mock := newMockClient(t)
	now := time.Now()
	doc := &models.RAGDocument{ID: "d", Domain: "personal_credit", Filename: "a.txt", CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM rag_chunks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO rag_documents").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare("INSERT INTO rag_chunks").ExpectExec().WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := c.SaveRAGDocument(doc, []models.RAGChunk{{ID: "d_0", DocID: "d", CreatedAt: now}})
	assert.ErrorContains(t, err, "failed to insert chunk")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRAGDocuments(t *testing.T) {
	c, mock := newMockClient(t)
	rows := sqlmock.NewRows([]string{"id", "domain", "filename", "size_bytes", "content_hash", "chunk_count", "created_at", "updated_at"}).
		AddRow("corporate_credit_a.md", "corporate_credit", "a.md", int64(10), "h", 1, int64(1), int64(2))
	mock.ExpectQuery("FROM rag_documents").WithArgs("corporate_credit").WillReturnRows(rows)

	docs, err := c.ListRAGDocuments("corporate_credit")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.md", docs[0].Filename)
	assert.Equal(t, time.Unix(2, 0), docs[0].UpdatedAt)
}

func TestDeleteRAGDocument(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectExec("DELETE FROM rag_documents").
		WithArgs("personal_credit", "a.txt").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM rag_documents").
		WithArgs("personal_credit", "gone.txt").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, c.DeleteRAGDocument("personal_credit", "a.txt"))
	assert.ErrorIs(t, c.DeleteRAGDocument("personal_credit", "gone.txt"), ErrNotFound)
}

func TestRAGStats(t *testing.T) {
	c, mock := newMockClient(t)
	rows := sqlmock.NewRows([]string{"domain", "count", "sum"}).
		AddRow("corporate_credit", 1, 4).
		AddRow("personal_credit", 2, 9)
	mock.ExpectQuery("GROUP BY domain").WillReturnRows(rows)

	stats, err := c.RAGStats()
	require.NoError(t, err)
	assert.Equal(t, []models.DomainStats{
		{Domain: "corporate_credit", Documents: 1, TotalChunks: 4},
		{Domain: "personal_credit", Documents: 2, TotalChunks: 9},
	}, stats)
}
