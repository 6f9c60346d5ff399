package neo4j

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/dictionary"
	"github.com/kcb-text2sql/backend/pkg/circuitbreaker"
	"github.com/kcb-text2sql/backend/pkg/logger"
	"github.com/kcb-text2sql/backend/pkg/retry"
)

// Client keeps a schema graph in Neo4j:
//
//	(:Term)-[:MAPS_TO]->(:Column)-[:BELONGS_TO]->(:Table)
//
// Terms come from the dictionary; tables and columns from the schema
// metadata.
type Client struct {
	runner      runner
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	timeout     time.Duration
}

type Table struct {
	Name        string
	Description string
	Columns     []Column
}

type Column struct {
	Name        string
	Type        string
	Description string
}

// ColumnFact is one dictionary term resolved through the graph.
type ColumnFact struct {
	Term          string   `json:"term"`
	Column        string   `json:"column"`
	Table         string   `json:"table"`
	DataType      string   `json:"data_type"`
	TableColumns  []string `json:"table_columns,omitempty"`
	JoinableTable []string `json:"joinable_tables,omitempty"`
}

type runner interface {
	run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d driverRunner) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := neo4j.ExecuteQuery(ctx, d.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(d.database),
	)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (d driverRunner) close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return newWithRunner(driverRunner{driver: driver, database: database}), nil
}

func newWithRunner(r runner) *Client {
	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		ShouldRetry:    neo4j.IsRetryable,
		Logger:         logger.GetLogger(),
	}

	return &Client{
		runner:      r,
		cb:          cb,
		retryConfig: retryConfig,
		timeout:     10 * time.Second,
	}
}

func (c *Client) Close(ctx context.Context) error {
	return c.runner.close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return circuitbreaker.ExecuteWithResult(c.cb, func() ([]*neo4j.Record, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func(ctx context.Context) ([]*neo4j.Record, error) {
			return c.runner.run(ctx, cypher, params)
		})
	})
}

const schemaConstraints = `CREATE CONSTRAINT table_name IF NOT EXISTS FOR (t:Table) REQUIRE t.name IS UNIQUE`

const syncTablesQuery = `
	UNWIND $tables AS t
	MERGE (tb:Table {name: t.name})
	SET tb.description = t.description
	WITH tb, t
	UNWIND t.columns AS col
	MERGE (c:Column {id: t.name + '.' + col.name})
	SET c.name = col.name,
	    c.table = t.name,
	    c.data_type = col.type,
	    c.description = col.description
	MERGE (c)-[:BELONGS_TO]->(tb)
`

// SyncSchema merges tables and their columns into the graph.
func (c *Client) SyncSchema(ctx context.Context, tables []Table) error {
	if _, err := c.executeWithRetry(ctx, schemaConstraints, nil); err != nil {
		logger.Warn("Failed to ensure schema constraint", zap.Error(err))
	}

	if _, err := c.executeWithRetry(ctx, syncTablesQuery, map[string]any{"tables": tableRows(tables)}); err != nil {
		return fmt.Errorf("failed to sync schema: %w", err)
	}

	logger.Info("Schema graph synced", zap.Int("tables", len(tables)))
	return nil
}

func tableRows(tables []Table) []map[string]any {
	rows := make([]map[string]any, 0, len(tables))
	for _, t := range tables {
		cols := make([]map[string]any, 0, len(t.Columns))
		for _, col := range t.Columns {
			cols = append(cols, map[string]any{
				"name":        col.Name,
				"type":        col.Type,
				"description": col.Description,
			})
		}
		rows = append(rows, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"columns":     cols,
		})
	}
	return rows
}

const pruneTermsQuery = `
	MATCH (t:Term)
	WHERE NOT t.name IN $names
	DETACH DELETE t
`

const syncTermsQuery = `
	UNWIND $terms AS term
	MERGE (t:Term {name: term.name})
	SET t.category = term.category,
	    t.synonyms = term.synonyms,
	    t.version = $version
	WITH t, term
	OPTIONAL MATCH (t)-[old:MAPS_TO]->()
	DELETE old
	WITH t, term
	WHERE term.column <> '' AND term.table <> ''
	MERGE (tb:Table {name: term.table})
	MERGE (c:Column {id: term.table + '.' + term.column})
	ON CREATE SET c.name = term.column, c.table = term.table
	SET c.data_type = coalesce(c.data_type, term.data_type)
	MERGE (c)-[:BELONGS_TO]->(tb)
	MERGE (t)-[:MAPS_TO]->(c)
`

// SyncTerms replaces the graph's Term nodes with the snapshot's terms.
func (c *Client) SyncTerms(ctx context.Context, snap *dictionary.Snapshot) error {
	rows := termRows(snap.Terms())
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r["name"].(string))
	}

	if _, err := c.executeWithRetry(ctx, pruneTermsQuery, map[string]any{"names": names}); err != nil {
		return fmt.Errorf("failed to prune terms: %w", err)
	}

	params := map[string]any{"terms": rows, "version": int64(snap.Version())}
	if _, err := c.executeWithRetry(ctx, syncTermsQuery, params); err != nil {
		return fmt.Errorf("failed to sync terms: %w", err)
	}

	logger.Info("Term graph synced",
		zap.Int("terms", len(rows)),
		zap.Uint64("dictionary_version", snap.Version()),
	)
	return nil
}

func termRows(terms dictionary.TermDictionary) []map[string]any {
	rows := []map[string]any{}
	seen := make(map[string]bool)
	for _, cat := range terms.Categories {
		for _, t := range cat.Terms {
			if seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			synonyms := append([]string{}, t.Info.Synonyms...)
			rows = append(rows, map[string]any{
				"name":      t.Name,
				"category":  cat.Name,
				"synonyms":  synonyms,
				"column":    t.Info.SQLMapping,
				"table":     t.Info.Table,
				"data_type": t.Info.DataType,
			})
		}
	}
	return rows
}

const relatedColumnsQuery = `
	MATCH (t:Term)-[:MAPS_TO]->(c:Column)-[:BELONGS_TO]->(tb:Table)
	WHERE t.name IN $terms
	OPTIONAL MATCH (tb)<-[:BELONGS_TO]-(sibling:Column)
	WITH t, c, tb, collect(DISTINCT sibling.name) AS siblings
	OPTIONAL MATCH (tb)<-[:BELONGS_TO]-(:Column {name: 'customer_id'}),
	               (other:Table)<-[:BELONGS_TO]-(:Column {name: 'customer_id'})
	WHERE other <> tb
	RETURN t.name AS term, c.name AS column, tb.name AS table, c.data_type AS data_type,
	       siblings, collect(DISTINCT other.name) AS joinable
	ORDER BY term
`

// RelatedColumns resolves terms to their columns, the other columns of the
// same table and the tables joinable on customer_id.
func (c *Client) RelatedColumns(ctx context.Context, terms []string) ([]ColumnFact, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	records, err := c.executeWithRetry(ctx, relatedColumnsQuery, map[string]any{"terms": terms})
	if err != nil {
		return nil, fmt.Errorf("failed to query related columns: %w", err)
	}

	facts := make([]ColumnFact, 0, len(records))
	for _, record := range records {
		facts = append(facts, ColumnFact{
			Term:          recordString(record, "term"),
			Column:        recordString(record, "column"),
			Table:         recordString(record, "table"),
			DataType:      recordString(record, "data_type"),
			TableColumns:  recordStrings(record, "siblings"),
			JoinableTable: recordStrings(record, "joinable"),
		})
	}

	logger.Debug("Schema graph lookup completed",
		zap.Int("num_terms", len(terms)),
		zap.Int("results_found", len(facts)),
	)
	return facts, nil
}

func recordString(r *neo4j.Record, key string) string {
	v, _ := r.Get(key)
	s, _ := v.(string)
	return s
}

func recordStrings(r *neo4j.Record, key string) []string {
	v, _ := r.Get(key)
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
