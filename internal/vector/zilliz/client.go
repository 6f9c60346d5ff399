package zilliz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/pkg/logger"
)

const outputFields = "chunk_id,text,domain,filename,chunk_index,total_chunks"

// Client stores RAG document chunks, partitioned logically by domain.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type DocumentChunk struct {
	ID          string
	Embedding   []float32
	Text        string
	Domain      string
	Filename    string
	ChunkIndex  int
	TotalChunks int
	Timestamp   time.Time
}

type SearchResult struct {
	ChunkID     string
	Text        string
	Domain      string
	Filename    string
	ChunkIndex  int
	TotalChunks int
	// Distance is the raw L2 distance; Similarity maps it into (0, 1].
	Distance   float32
	Similarity float64
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	cfg := client.Config{Address: endpoint}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.EnableTLSAuth = strings.HasPrefix(endpoint, "https://")
	}
	c, err := client.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return newWithClient(c, collectionName, vectorDim), nil
}

func newWithClient(c client.Client, collectionName string, vectorDim int) *Client {
	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}
}

func (z *Client) Close() error {
	return z.client.Close()
}

func varchar(name string, maxLength int) *entity.Field {
	return &entity.Field{
		Name:       name,
		DataType:   entity.FieldTypeVarChar,
		TypeParams: map[string]string{"max_length": strconv.Itoa(maxLength)},
	}
}

func (z *Client) CreateCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.client.LoadCollection(ctx, z.collectionName, false)
	}

	chunkID := varchar("chunk_id", 256)
	chunkID.PrimaryKey = true

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Credit domain RAG document chunks",
		Fields: []*entity.Field{
			chunkID,
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(z.vectorDim)},
			},
			varchar("text", 8192),
			varchar("domain", 64),
			varchar("filename", 256),
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "total_chunks", DataType: entity.FieldTypeInt64},
			{Name: "timestamp", DataType: entity.FieldTypeInt64},
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := z.client.CreateIndex(ctx, z.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := z.client.LoadCollection(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))

	return nil
}

// Insert writes chunks without flushing; growing segments are searchable
// once the collection is loaded.
func (z *Client) Insert(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	n := len(chunks)
	var (
		ids        = make([]string, n)
		embeddings = make([][]float32, n)
		texts      = make([]string, n)
		domains    = make([]string, n)
		filenames  = make([]string, n)
		indexes    = make([]int64, n)
		totals     = make([]int64, n)
		timestamps = make([]int64, n)
	)

	for i, chunk := range chunks {
		if len(chunk.Embedding) != z.vectorDim {
			return fmt.Errorf("chunk %s has dimension %d, collection expects %d", chunk.ID, len(chunk.Embedding), z.vectorDim)
		}
		ids[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		texts[i] = chunk.Text
		domains[i] = chunk.Domain
		filenames[i] = chunk.Filename
		indexes[i] = int64(chunk.ChunkIndex)
		totals[i] = int64(chunk.TotalChunks)
		timestamps[i] = chunk.Timestamp.Unix()
	}

	_, err := z.client.Insert(
		ctx,
		z.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnFloatVector("embedding", z.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("domain", domains),
		entity.NewColumnVarChar("filename", filenames),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnInt64("total_chunks", totals),
		entity.NewColumnInt64("timestamp", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

// Search returns the topK nearest chunks, restricted to domain when it is
// not empty.
func (z *Client) Search(ctx context.Context, queryEmbedding []float32, topK int, domain string) ([]SearchResult, error) {
	expr := ""
	if domain != "" {
		expr = fmt.Sprintf(`domain == %s`, quote(domain))
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := z.client.Search(
		ctx,
		z.collectionName,
		[]string{},
		expr,
		strings.Split(outputFields, ","),
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		domainCol := sr.Fields.GetColumn("domain")
		fileCol := sr.Fields.GetColumn("filename")
		indexCol := sr.Fields.GetColumn("chunk_index")
		totalCol := sr.Fields.GetColumn("total_chunks")
		if idCol == nil || textCol == nil || domainCol == nil || fileCol == nil || indexCol == nil || totalCol == nil {
			return nil, fmt.Errorf("search result is missing output fields")
		}

		for i := 0; i < sr.ResultCount; i++ {
			id, _ := idCol.GetAsString(i)
			text, _ := textCol.GetAsString(i)
			dom, _ := domainCol.GetAsString(i)
			file, _ := fileCol.GetAsString(i)
			idx, _ := indexCol.GetAsInt64(i)
			total, _ := totalCol.GetAsInt64(i)

			results = append(results, SearchResult{
				ChunkID:     id,
				Text:        text,
				Domain:      dom,
				Filename:    file,
				ChunkIndex:  int(idx),
				TotalChunks: int(total),
				Distance:    sr.Scores[i],
				Similarity:  1 / (1 + float64(sr.Scores[i])),
			})
		}
	}

	logger.Info("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("domain", domain),
	)

	return results, nil
}

// DeleteDocument removes every chunk of one uploaded file.
func (z *Client) DeleteDocument(ctx context.Context, domain, filename string) error {
	expr := fmt.Sprintf(`domain == %s && filename == %s`, quote(domain), quote(filename))
	if err := z.client.Delete(ctx, z.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	logger.Info("Chunks deleted from vector DB",
		zap.String("domain", domain),
		zap.String("filename", filename),
	)
	return nil
}

func quote(s string) string {
	return strconv.Quote(s)
}
