package zilliz

import (
	"context"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMilvus implements the calls the vector store makes. Anything else
// panics through the nil embedded interface.
type fakeMilvus struct {
	client.Client

	inserted   []entity.Column
	searchExpr string
	deleteExpr string
	results    []client.SearchResult
}

func (f *fakeMilvus) Insert(_ context.Context, _, _ string, cols ...entity.Column) (entity.Column, error) {
	f.inserted = cols
	return nil, nil
}

func (f *fakeMilvus) Search(_ context.Context, _ string, _ []string, expr string, _ []string, _ []entity.Vector,
	_ string, _ entity.MetricType, _ int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc,
) ([]client.SearchResult, error) {
	f.searchExpr = expr
	return f.results, nil
}

func (f *fakeMilvus) Delete(_ context.Context, _, _ string, expr string) error {
	f.deleteExpr = expr
	return nil
}

func TestInsert_BuildsColumns(t *testing.T) {
	fake := &fakeMilvus{}
	z := newWithClient(fake, "chunks", 2)

	err := z.Insert(context.Background(), []DocumentChunk{
		{ID: "a_0", Embedding: []float32{1, 2}, Text: "신용등급 정책", Domain: "policy_regulation", Filename: "a.txt", ChunkIndex: 0, TotalChunks: 2, Timestamp: time.Unix(100, 0)},
		{ID: "a_1", Embedding: []float32{3, 4}, Text: "연체 기준", Domain: "policy_regulation", Filename: "a.txt", ChunkIndex: 1, TotalChunks: 2, Timestamp: time.Unix(100, 0)},
	})
	require.NoError(t, err)

	require.Len(t, fake.inserted, 8)
	names := make([]string, 0, len(fake.inserted))
	for _, c := range fake.inserted {
		names = append(names, c.Name())
		assert.Equal(t, 2, c.Len())
	}
	assert.Equal(t, []string{"chunk_id", "embedding", "text", "domain", "filename", "chunk_index", "total_chunks", "timestamp"}, names)
}

func TestInsert_RejectsWrongDimension(t *testing.T) {
	z := newWithClient(&fakeMilvus{}, "chunks", 3)
	err := z.Insert(context.Background(), []DocumentChunk{{ID: "x", Embedding: []float32{1}}})
	assert.ErrorContains(t, err, "dimension")
}

func TestSearch_MapsResults(t *testing.T) {
	fake := &fakeMilvus{results: []client.SearchResult{{
		ResultCount: 1,
		Scores:      []float32{1},
		Fields: client.ResultSet{
			entity.NewColumnVarChar("chunk_id", []string{"p_0"}),
			entity.NewColumnVarChar("text", []string{"개인 신용평가 기준"}),
			entity.NewColumnVarChar("domain", []string{"personal_credit"}),
			entity.NewColumnVarChar("filename", []string{"guide.md"}),
			entity.NewColumnInt64("chunk_index", []int64{0}),
			entity.NewColumnInt64("total_chunks", []int64{3}),
		},
	}}}
	z := newWithClient(fake, "chunks", 2)

	got, err := z.Search(context.Background(), []float32{0, 1}, 3, "personal_credit")
	require.NoError(t, err)
	assert.Equal(t, `domain == "personal_credit"`, fake.searchExpr)
	require.Len(t, got, 1)
	assert.Equal(t, SearchResult{
		ChunkID: "p_0", Text: "개인 신용평가 기준", Domain: "personal_credit", Filename: "guide.md",
		ChunkIndex: 0, TotalChunks: 3, Distance: 1, Similarity: 0.5,
	}, got[0])
}

func TestSearch_AllDomains(t *testing.T) {
	fake := &fakeMilvus{}
	z := newWithClient(fake, "chunks", 2)

	got, err := z.Search(context.Background(), []float32{0, 1}, 3, "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, fake.searchExpr)
}

func TestDeleteDocument_QuotesValues(t *testing.T) {
	fake := &fakeMilvus{}
	z := newWithClient(fake, "chunks", 2)

	require.NoError(t, z.DeleteDocument(context.Background(), "corporate_credit", `a"b.txt`))
	assert.Equal(t, `domain == "corporate_credit" && filename == "a\"b.txt"`, fake.deleteExpr)
}
