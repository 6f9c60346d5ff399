package dictionary

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDir = "/dict"

const termsFixture = `{
  "credit_info": {
    "신용점수": {"synonyms": ["신용 점수", "크레딧스코어"], "sql_mapping": "credit_score", "table": "credit_scores", "data_type": "INTEGER"},
    "위험도": {"synonyms": ["리스크"], "sql_mapping": "risk_level", "table": "credit_scores", "data_type": "VARCHAR"}
  },
  "loan_info": {
    "대출금액": {"synonyms": ["대출액"], "sql_mapping": "loan_amount", "table": "loan_history", "data_type": "DECIMAL"}
  }
}`

const patternsFixture = `{
  "aggregation": {"합계": "SUM", "평균": "AVG"},
  "comparison": {"이상": ">="}
}`

func newTestStore(t *testing.T, files map[string]string) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(testDir, name), []byte(content), 0o644))
	}
	s := NewStore(fsys, testDir, "", nil)
	s.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }
	require.NoError(t, s.Load())
	return s, fsys
}

func TestLoad_PreservesFileOrder(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture, PatternsFile: patternsFixture})

	terms := s.Snapshot().Terms()
	require.Len(t, terms.Categories, 2)
	assert.Equal(t, "credit_info", terms.Categories[0].Name)
	assert.Equal(t, "신용점수", terms.Categories[0].Terms[0].Name)
	assert.Equal(t, "위험도", terms.Categories[0].Terms[1].Name)
	assert.Equal(t, "loan_info", terms.Categories[1].Name)

	patterns := s.Snapshot().Patterns()
	require.Len(t, patterns.Categories, 2)
	assert.Equal(t, []Pattern{{Korean: "합계", SQL: "SUM"}, {Korean: "평균", SQL: "AVG"}}, patterns.Categories[0].Patterns)
}

func TestLoad_MissingFilesYieldEmptyDictionaries(t *testing.T) {
	s, fsys := newTestStore(t, nil)

	stats := s.Stats()
	assert.Zero(t, stats.TotalTerms)
	assert.Zero(t, stats.TotalPatterns)

	exists, err := afero.DirExists(fsys, filepath.Join(testDir, "backups"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLoad_MalformedFileYieldsEmptyDictionary(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: `{"broken": `, PatternsFile: patternsFixture})

	assert.Zero(t, s.Stats().TotalTerms)
	assert.Equal(t, 3, s.Stats().TotalPatterns)
}

func TestLoad_QuarantinesInvalidEntries(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{
		TermsFile: `{
		  "credit_info": {
		    "신용점수": {"synonyms": ["크레딧스코어"], "sql_mapping": "credit_score"},
		    "깨진용어": {"synonyms": "not-a-list"},
		    "기본값": {}
		  },
		  "broken_category": "oops"
		}`,
		PatternsFile: `{"aggregation": {"합계": "SUM", "빈값": ""}}`,
	})

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalTerms)
	assert.Equal(t, 1, stats.TotalPatterns)
	assert.Len(t, s.Rejected(), 3)

	ref, ok := s.Snapshot().Lookup("기본값")
	require.True(t, ok)
	assert.Equal(t, "기본값", ref.Info.SQLMapping, "missing sql_mapping defaults to the term")
}

func TestReload(t *testing.T) {
	s, fsys := newTestStore(t, map[string]string{TermsFile: termsFixture})

	res, err := s.Reload()
	require.NoError(t, err)
	assert.True(t, res.CreditTermsLoaded)
	assert.False(t, res.SQLPatternsLoaded)

	require.NoError(t, afero.WriteFile(fsys, filepath.Join(testDir, PatternsFile), []byte(patternsFixture), 0o644))
	res, err = s.Reload()
	require.NoError(t, err)
	assert.True(t, res.SQLPatternsLoaded)
	assert.Equal(t, 3, s.Stats().TotalPatterns)
}

func TestLookup_FirstMatchWins(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: `{
	  "a": {"점수": {"synonyms": ["스코어"], "sql_mapping": "score_a"}},
	  "b": {"스코어": {"synonyms": [], "sql_mapping": "score_b"}}
	}`})

	ref, ok := s.Snapshot().Lookup("스코어")
	require.True(t, ok)
	assert.Equal(t, "점수", ref.Term)
	assert.Equal(t, "a", ref.Category)

	assert.Equal(t, "unknown", s.Snapshot().SQLMapping("unknown"))
}

func TestLexicon_LongestFirst(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture})

	lex := s.Snapshot().Lexicon()
	require.NotEmpty(t, lex)
	for i := 1; i < len(lex); i++ {
		assert.GreaterOrEqual(t, len([]rune(lex[i-1])), len([]rune(lex[i])))
	}
}

func TestAddTerm_UpsertsAndPersists(t *testing.T) {
	s, fsys := newTestStore(t, map[string]string{TermsFile: termsFixture})

	require.NoError(t, s.AddTerm("customer_info", "나이", TermInfo{Synonyms: []string{"연령"}, SQLMapping: "age", Table: "customers", DataType: "INTEGER"}))
	require.NoError(t, s.AddTerm("customer_info", "나이", TermInfo{SQLMapping: "customer_age"}))

	ref, ok := s.Snapshot().Lookup("나이")
	require.True(t, ok)
	assert.Equal(t, "customer_age", ref.Info.SQLMapping)
	assert.Equal(t, 4, s.Stats().TotalTerms)

	data, err := afero.ReadFile(fsys, filepath.Join(testDir, TermsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "customer_age")
	assert.Less(t, strings.Index(string(data), "credit_info"), strings.Index(string(data), "customer_info"))

	backups, err := afero.Glob(fsys, filepath.Join(testDir, "backups", "credit_terms_*.json"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(testDir, "backups", "credit_terms_20240305_140709.json"),
		filepath.Join(testDir, "backups", "credit_terms_20240305_140709_1.json"),
	}, backups)
}

func TestUpdateTerm_MissingCategoryLeavesStateUnchanged(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture})
	before := s.Stats()
	version := s.Snapshot().Version()

	err := s.UpdateTerm("없는카테고리", "신용점수", TermInfo{SQLMapping: "x"})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	err = s.UpdateTerm("credit_info", "없는용어", TermInfo{SQLMapping: "x"})
	assert.ErrorIs(t, err, ErrTermNotFound)

	assert.Equal(t, before, s.Stats())
	assert.Equal(t, version, s.Snapshot().Version())
}

func TestUpdateTerm(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture})

	require.NoError(t, s.UpdateTerm("credit_info", "신용점수", TermInfo{Synonyms: []string{"점수"}, SQLMapping: "score"}))

	ref, ok := s.Snapshot().Lookup("점수")
	require.True(t, ok)
	assert.Equal(t, "score", ref.Info.SQLMapping)
	_, ok = s.Snapshot().Lookup("크레딧스코어")
	assert.False(t, ok)
}

func TestDeleteTerm(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture})

	deleted, err := s.DeleteTerm("loan_info", "대출금액")
	require.NoError(t, err)
	assert.Equal(t, "loan_amount", deleted.SQLMapping)
	assert.Equal(t, map[string]int{"credit_info": 2, "loan_info": 0}, s.Stats().CreditTerms)

	_, err = s.DeleteTerm("loan_info", "대출금액")
	assert.ErrorIs(t, err, ErrTermNotFound)
}

func TestPatternCRUD(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{PatternsFile: patternsFixture})

	require.NoError(t, s.AddPattern("ordering", "높은 순", "ORDER BY DESC"))
	sql, ok := s.Snapshot().PatternSQL("ordering", "높은 순")
	require.True(t, ok)
	assert.Equal(t, "ORDER BY DESC", sql)

	old, err := s.UpdatePattern("aggregation", "합계", "SUM()")
	require.NoError(t, err)
	assert.Equal(t, "SUM", old)

	_, err = s.UpdatePattern("aggregation", "없음", "X")
	assert.ErrorIs(t, err, ErrPatternNotFound)
	_, err = s.UpdatePattern("none", "합계", "X")
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	deleted, err := s.DeletePattern("comparison", "이상")
	require.NoError(t, err)
	assert.Equal(t, ">=", deleted)
	assert.Equal(t, 3, s.Stats().TotalPatterns)
}

func TestInvalidEntriesRejected(t *testing.T) {
	s, _ := newTestStore(t, nil)

	assert.ErrorIs(t, s.AddTerm("", "x", TermInfo{}), ErrInvalidEntry)
	assert.ErrorIs(t, s.AddTerm("c", " ", TermInfo{}), ErrInvalidEntry)
	assert.ErrorIs(t, s.AddTerm("c", "x", TermInfo{Synonyms: []string{""}}), ErrInvalidEntry)
	assert.ErrorIs(t, s.AddPattern("c", "합계", ""), ErrInvalidEntry)
}

func TestPersistFailureKeepsMemoryMutated(t *testing.T) {
	s, fsys := newTestStore(t, map[string]string{TermsFile: termsFixture})
	s.fs = afero.NewReadOnlyFs(fsys)

	err := s.AddTerm("credit_info", "신용등급", TermInfo{SQLMapping: "credit_grade"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersist)

	_, ok := s.Snapshot().Lookup("신용등급")
	assert.True(t, ok, "in-memory state stays mutated")

	data, err := afero.ReadFile(fsys, filepath.Join(testDir, TermsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "credit_grade")
}

func TestSearch(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture})

	results := s.Search("신용점수")
	require.Len(t, results, 1)
	assert.Equal(t, MatchExact, results[0].MatchType)

	results = s.Search("신용")
	require.Len(t, results, 1)
	assert.Equal(t, MatchPartial, results[0].MatchType)

	results = s.Search("대출금액 합계")
	require.Len(t, results, 1)
	assert.Equal(t, "대출금액", results[0].Term)
	assert.Equal(t, MatchPartial, results[0].MatchType)

	results = s.Search("리스크")
	require.Len(t, results, 1)
	assert.Equal(t, MatchSynonym, results[0].MatchType)
	assert.Equal(t, "위험도", results[0].Term)

	assert.Empty(t, s.Search("   "))
}

func TestExportImportRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture, PatternsFile: patternsFixture})
	before := s.Stats()

	exported := s.Export()
	data, err := json.Marshal(exported)
	require.NoError(t, err)

	var req ImportRequest
	require.NoError(t, json.Unmarshal(data, &req))
	require.NotNil(t, req.CreditTerms)
	require.NotNil(t, req.SQLPatterns)

	require.NoError(t, s.Import(req))
	assert.Equal(t, before, s.Stats())
	assert.Equal(t, exported.CreditTerms, s.Snapshot().Terms())
}

func TestImport_ReplacesOnlyPresentDictionaries(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture, PatternsFile: patternsFixture})

	var req ImportRequest
	require.NoError(t, json.Unmarshal([]byte(`{"sql_patterns": {"ordering": {"내림차순": "DESC"}}}`), &req))
	require.NoError(t, s.Import(req))

	stats := s.Stats()
	assert.Equal(t, 3, stats.TotalTerms)
	assert.Equal(t, 1, stats.TotalPatterns)
}

func TestImport_StrictDecodeRejectsInvalidPayload(t *testing.T) {
	var req ImportRequest
	err := json.Unmarshal([]byte(`{"credit_terms": {"c": {"t": {"synonyms": 3}}}}`), &req)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestBackup_SkipsEmptyDictionaries(t *testing.T) {
	s, fsys := newTestStore(t, map[string]string{TermsFile: termsFixture})

	res, err := s.Backup()
	require.NoError(t, err)
	assert.Equal(t, "20240305_140709", res.Timestamp)
	require.Len(t, res.Files, 1)

	data, err := afero.ReadFile(fsys, res.Files[0])
	require.NoError(t, err)
	var restored TermDictionary
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, s.Snapshot().Terms(), restored)
}

func TestBackup_SameSecondKeepsEarlierFiles(t *testing.T) {
	s, fsys := newTestStore(t, map[string]string{TermsFile: termsFixture, PatternsFile: patternsFixture})

	first, err := s.Backup()
	require.NoError(t, err)
	require.NoError(t, s.AddPattern("comparison", "초과", ">"))
	third, err := s.Backup()
	require.NoError(t, err)

	assert.Equal(t, "20240305_140709", first.Timestamp)
	assert.Equal(t, "20240305_140709_2", third.Timestamp)

	patterns, err := afero.Glob(fsys, filepath.Join(testDir, "backups", "sql_patterns_*.json"))
	require.NoError(t, err)
	assert.Len(t, patterns, 3)

	data, err := afero.ReadFile(fsys, first.Files[1])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "초과")
}

func TestLatestOnly_DropsStaleSnapshots(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture})

	var sizes []int
	record := LatestOnly(func(snap *Snapshot) { sizes = append(sizes, snap.Terms().Len()) })

	v1 := s.Snapshot()
	require.NoError(t, s.AddTerm("customer_info", "나이", TermInfo{SQLMapping: "age", Table: "customers"}))
	v2 := s.Snapshot()
	require.NoError(t, s.AddTerm("customer_info", "직업", TermInfo{SQLMapping: "occupation", Table: "customers"}))
	v3 := s.Snapshot()

	record(v2)
	record(v1)
	record(v2)
	record(v3)

	assert.Equal(t, []int{4, 5}, sizes)
}

func TestSeedDefaults(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(testDir, PatternsFile), []byte(patternsFixture), 0o644))

	s := NewStore(fsys, testDir, "", nil)
	require.NoError(t, s.SeedDefaults())
	require.NoError(t, s.Load())

	assert.Equal(t, DefaultTerms().Len(), s.Stats().TotalTerms)
	assert.Equal(t, 3, s.Stats().TotalPatterns, "existing file is left alone")
}

func TestSubscribersSeeEveryChange(t *testing.T) {
	s, _ := newTestStore(t, map[string]string{TermsFile: termsFixture})

	var versions []uint64
	s.Subscribe(func(snap *Snapshot) { versions = append(versions, snap.Version()) })

	require.NoError(t, s.AddPattern("aggregation", "합계", "SUM"))
	_, err := s.DeleteTerm("credit_info", "위험도")
	require.NoError(t, err)
	_ = s.UpdateTerm("missing", "x", TermInfo{})

	assert.Len(t, versions, 2)
}

func TestConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	s, _ := newTestStore(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('가' + i))
			assert.NoError(t, s.AddTerm("bulk", name, TermInfo{SQLMapping: name}))
			_ = s.Snapshot().Stats()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, s.Stats().TotalTerms)
}
