package dictionary

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Store owns the term dictionary and the SQL pattern table. Mutations are
// serialized by a single lock and follow backup, swap, persist. Readers
// never block: they load the current Snapshot.
type Store struct {
	fs        afero.Fs
	dir       string
	backupDir string
	log       *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	snap     atomic.Pointer[Snapshot]
	rejected []Rejected

	subMu       sync.RWMutex
	subscribers []func(*Snapshot)
}

func NewStore(fsys afero.Fs, dir, backupDir string, log *zap.Logger) *Store {
	if backupDir == "" {
		backupDir = filepath.Join(dir, "backups")
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		fs:        fsys,
		dir:       dir,
		backupDir: backupDir,
		log:       log,
		now:       time.Now,
	}
	s.snap.Store(emptySnapshot())
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Subscribe registers fn to run after every change to the in-memory
// dictionaries, including changes whose persistence failed. Concurrent
// mutations may deliver snapshots out of version order; wrap fn with
// LatestOnly when that matters.
func (s *Store) Subscribe(fn func(*Snapshot)) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

// LatestOnly wraps fn so that it never sees a snapshot older than one it
// already received.
func LatestOnly(fn func(*Snapshot)) func(*Snapshot) {
	var (
		mu   sync.Mutex
		last uint64
	)
	return func(snap *Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Version() <= last {
			return
		}
		last = snap.Version()
		fn(snap)
	}
}

func (s *Store) notify(snap *Snapshot) {
	s.subMu.RLock()
	subs := append([]func(*Snapshot){}, s.subscribers...)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// Rejected lists the entries quarantined by the last load.
func (s *Store) Rejected() []Rejected {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Rejected{}, s.rejected...)
}

func (s *Store) Dir() string { return s.dir }

// Load reads both dictionaries. Missing or malformed files yield an empty
// dictionary and a warning; only directory setup failures are returned.
func (s *Store) Load() error {
	s.mu.Lock()
	snap, err := s.loadLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(snap)
	return nil
}

func (s *Store) Reload() (ReloadResult, error) {
	if err := s.Load(); err != nil {
		return ReloadResult{}, err
	}
	snap := s.Snapshot()
	return ReloadResult{
		CreditTermsLoaded: len(snap.terms.Categories) > 0,
		SQLPatternsLoaded: len(snap.patterns.Categories) > 0,
		Timestamp:         snap.builtAt,
	}, nil
}

func (s *Store) loadLocked() (*Snapshot, error) {
	for _, d := range []string{s.dir, s.backupDir} {
		if err := s.fs.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create dictionary directory %s: %w", d, err)
		}
	}

	s.rejected = nil

	var terms TermDictionary
	if data, ok := s.readFile(TermsFile); ok {
		dict, rejected, err := decodeTerms(data)
		if err != nil {
			s.log.Warn("Malformed term dictionary, starting empty", zap.String("file", TermsFile), zap.Error(err))
		} else {
			terms = dict
			s.quarantine(TermsFile, rejected)
		}
	}

	var patterns PatternTable
	if data, ok := s.readFile(PatternsFile); ok {
		table, rejected, err := decodePatterns(data)
		if err != nil {
			s.log.Warn("Malformed SQL pattern table, starting empty", zap.String("file", PatternsFile), zap.Error(err))
		} else {
			patterns = table
			s.quarantine(PatternsFile, rejected)
		}
	}

	snap := newSnapshot(terms, patterns, s.Snapshot().version+1, s.now())
	s.snap.Store(snap)

	s.log.Info("Dictionaries loaded",
		zap.String("dir", s.dir),
		zap.Int("terms", terms.Len()),
		zap.Int("patterns", patterns.Len()),
		zap.Int("rejected", len(s.rejected)),
	)
	return snap, nil
}

func (s *Store) readFile(name string) ([]byte, bool) {
	path := filepath.Join(s.dir, name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("Dictionary file not found", zap.String("path", path))
		} else {
			s.log.Warn("Failed to read dictionary file", zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (s *Store) quarantine(file string, rejected []Rejected) {
	for _, r := range rejected {
		s.log.Warn("Quarantined dictionary entry",
			zap.String("file", file),
			zap.String("category", r.Category),
			zap.String("key", r.Key),
			zap.String("reason", r.Reason),
		)
	}
	s.rejected = append(s.rejected, rejected...)
}

// Backup writes every non-empty dictionary to the backup directory under
// a timestamped name.
func (s *Store) Backup() (BackupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupLocked(s.Snapshot())
}

func (s *Store) backupLocked(snap *Snapshot) (BackupResult, error) {
	res := BackupResult{}
	if err := s.fs.MkdirAll(s.backupDir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create backup directory: %w", err)
	}

	stamp, err := s.backupStamp()
	if err != nil {
		return res, err
	}
	res.Timestamp = stamp

	if len(snap.terms.Categories) > 0 {
		path := filepath.Join(s.backupDir, fmt.Sprintf("%s_%s.json", termsName, stamp))
		if err := s.writeJSON(path, snap.terms); err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)
	}
	if len(snap.patterns.Categories) > 0 {
		path := filepath.Join(s.backupDir, fmt.Sprintf("%s_%s.json", patternsName, stamp))
		if err := s.writeJSON(path, snap.patterns); err != nil {
			return res, err
		}
		res.Files = append(res.Files, path)
	}

	s.log.Info("Dictionaries backed up", zap.String("timestamp", stamp), zap.Int("files", len(res.Files)))
	return res, nil
}

// backupStamp returns the current timestamp, suffixed with _1, _2, ... when
// a backup with that timestamp already exists.
func (s *Store) backupStamp() (string, error) {
	base := s.now().Format(backupTimeLayout)
	stamp := base
	for n := 1; ; n++ {
		taken := false
		for _, name := range []string{termsName, patternsName} {
			ok, err := afero.Exists(s.fs, filepath.Join(s.backupDir, fmt.Sprintf("%s_%s.json", name, stamp)))
			if err != nil {
				return "", fmt.Errorf("failed to stat backup: %w", err)
			}
			taken = taken || ok
		}
		if !taken {
			return stamp, nil
		}
		stamp = fmt.Sprintf("%s_%d", base, n)
	}
}

// writeJSON replaces path atomically through a temporary sibling file.
func (s *Store) writeJSON(path string, v any) error {
	data, err := encodeIndent(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

type change struct {
	terms    bool
	patterns bool
}

// mutate applies fn to private copies of the dictionaries. If fn fails the
// published snapshot is left untouched. Otherwise the previous state is
// backed up, the new snapshot published, and the changed files written.
func (s *Store) mutate(op string, fn func(terms *TermDictionary, patterns *PatternTable) (change, error)) error {
	s.mu.Lock()

	cur := s.Snapshot()
	terms := cur.terms.clone()
	patterns := cur.patterns.clone()

	ch, err := fn(&terms, &patterns)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if _, err := s.backupLocked(cur); err != nil {
		s.log.Warn("Backup before mutation failed", zap.String("op", op), zap.Error(err))
	}

	next := newSnapshot(terms, patterns, cur.version+1, s.now())
	s.snap.Store(next)

	var perr error
	if ch.terms {
		if err := s.writeJSON(filepath.Join(s.dir, TermsFile), next.terms); err != nil {
			perr = err
		}
	}
	if ch.patterns && perr == nil {
		if err := s.writeJSON(filepath.Join(s.dir, PatternsFile), next.patterns); err != nil {
			perr = err
		}
	}
	s.mu.Unlock()

	s.notify(next)

	if perr != nil {
		s.log.Error("Dictionary persisted state diverges from memory", zap.String("op", op), zap.Error(perr))
		return fmt.Errorf("%w: %w", ErrPersist, perr)
	}
	s.log.Info("Dictionary updated", zap.String("op", op), zap.Uint64("version", next.version))
	return nil
}

func validateTerm(category, term string, info TermInfo) error {
	if strings.TrimSpace(category) == "" {
		return fmt.Errorf("%w: empty category", ErrInvalidEntry)
	}
	if strings.TrimSpace(term) == "" {
		return fmt.Errorf("%w: empty term", ErrInvalidEntry)
	}
	for _, syn := range info.Synonyms {
		if strings.TrimSpace(syn) == "" {
			return fmt.Errorf("%w: empty synonym for %s", ErrInvalidEntry, term)
		}
	}
	return nil
}

// AddTerm inserts or replaces term in category, creating the category if
// needed.
func (s *Store) AddTerm(category, term string, info TermInfo) error {
	if err := validateTerm(category, term, info); err != nil {
		return err
	}
	info = normalizeInfo(term, info.clone())

	return s.mutate("add_term", func(terms *TermDictionary, _ *PatternTable) (change, error) {
		ci := terms.category(category)
		if ci < 0 {
			terms.Categories = append(terms.Categories, TermCategory{Name: category})
			ci = len(terms.Categories) - 1
		}
		cat := &terms.Categories[ci]
		if ti := cat.term(term); ti >= 0 {
			cat.Terms[ti].Info = info
		} else {
			cat.Terms = append(cat.Terms, Term{Name: term, Info: info})
		}
		return change{terms: true}, nil
	})
}

func (s *Store) UpdateTerm(category, term string, info TermInfo) error {
	if err := validateTerm(category, term, info); err != nil {
		return err
	}
	info = normalizeInfo(term, info.clone())

	return s.mutate("update_term", func(terms *TermDictionary, _ *PatternTable) (change, error) {
		ci := terms.category(category)
		if ci < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
		}
		ti := terms.Categories[ci].term(term)
		if ti < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrTermNotFound, term)
		}
		terms.Categories[ci].Terms[ti].Info = info
		return change{terms: true}, nil
	})
}

// DeleteTerm removes term and returns what it held. An emptied category is
// kept.
func (s *Store) DeleteTerm(category, term string) (TermInfo, error) {
	var deleted TermInfo
	err := s.mutate("delete_term", func(terms *TermDictionary, _ *PatternTable) (change, error) {
		ci := terms.category(category)
		if ci < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
		}
		cat := &terms.Categories[ci]
		ti := cat.term(term)
		if ti < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrTermNotFound, term)
		}
		deleted = cat.Terms[ti].Info
		cat.Terms = append(cat.Terms[:ti], cat.Terms[ti+1:]...)
		return change{terms: true}, nil
	})
	return deleted, err
}

func validatePattern(category, korean, sql string) error {
	switch {
	case strings.TrimSpace(category) == "":
		return fmt.Errorf("%w: empty category", ErrInvalidEntry)
	case strings.TrimSpace(korean) == "":
		return fmt.Errorf("%w: empty phrase", ErrInvalidEntry)
	case strings.TrimSpace(sql) == "":
		return fmt.Errorf("%w: empty sql fragment for %s", ErrInvalidEntry, korean)
	}
	return nil
}

func (s *Store) AddPattern(category, korean, sql string) error {
	if err := validatePattern(category, korean, sql); err != nil {
		return err
	}
	return s.mutate("add_pattern", func(_ *TermDictionary, patterns *PatternTable) (change, error) {
		ci := patterns.category(category)
		if ci < 0 {
			patterns.Categories = append(patterns.Categories, PatternCategory{Name: category})
			ci = len(patterns.Categories) - 1
		}
		cat := &patterns.Categories[ci]
		if pi := cat.pattern(korean); pi >= 0 {
			cat.Patterns[pi].SQL = sql
		} else {
			cat.Patterns = append(cat.Patterns, Pattern{Korean: korean, SQL: sql})
		}
		return change{patterns: true}, nil
	})
}

// UpdatePattern replaces the fragment for korean and returns the old one.
func (s *Store) UpdatePattern(category, korean, sql string) (string, error) {
	if err := validatePattern(category, korean, sql); err != nil {
		return "", err
	}
	var old string
	err := s.mutate("update_pattern", func(_ *TermDictionary, patterns *PatternTable) (change, error) {
		ci := patterns.category(category)
		if ci < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
		}
		cat := &patterns.Categories[ci]
		pi := cat.pattern(korean)
		if pi < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrPatternNotFound, korean)
		}
		old = cat.Patterns[pi].SQL
		cat.Patterns[pi].SQL = sql
		return change{patterns: true}, nil
	})
	return old, err
}

func (s *Store) DeletePattern(category, korean string) (string, error) {
	var deleted string
	err := s.mutate("delete_pattern", func(_ *TermDictionary, patterns *PatternTable) (change, error) {
		ci := patterns.category(category)
		if ci < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, category)
		}
		cat := &patterns.Categories[ci]
		pi := cat.pattern(korean)
		if pi < 0 {
			return change{}, fmt.Errorf("%w: %s", ErrPatternNotFound, korean)
		}
		deleted = cat.Patterns[pi].SQL
		cat.Patterns = append(cat.Patterns[:pi], cat.Patterns[pi+1:]...)
		return change{patterns: true}, nil
	})
	return deleted, err
}

func (s *Store) Search(query string) []SearchResult {
	return s.Snapshot().Search(query)
}

func (s *Store) Stats() Stats {
	return s.Snapshot().Stats()
}

func (s *Store) Export() Export {
	snap := s.Snapshot()
	return Export{
		CreditTerms:     snap.terms.clone(),
		SQLPatterns:     snap.patterns.clone(),
		ExportTimestamp: s.now(),
	}
}

// Import replaces the dictionaries present in req wholesale. A request
// carrying neither is a no-op.
func (s *Store) Import(req ImportRequest) error {
	if req.CreditTerms == nil && req.SQLPatterns == nil {
		return nil
	}
	var newTerms TermDictionary
	var newPatterns PatternTable
	if req.CreditTerms != nil {
		newTerms = req.CreditTerms.clone()
		for ci, c := range newTerms.Categories {
			for ti, t := range c.Terms {
				if err := validateTerm(c.Name, t.Name, t.Info); err != nil {
					return err
				}
				newTerms.Categories[ci].Terms[ti].Info = normalizeInfo(t.Name, t.Info)
			}
		}
	}
	if req.SQLPatterns != nil {
		newPatterns = req.SQLPatterns.clone()
		for _, c := range newPatterns.Categories {
			for _, p := range c.Patterns {
				if err := validatePattern(c.Name, p.Korean, p.SQL); err != nil {
					return err
				}
			}
		}
	}

	return s.mutate("import", func(terms *TermDictionary, patterns *PatternTable) (change, error) {
		var ch change
		if req.CreditTerms != nil {
			*terms = newTerms
			ch.terms = true
		}
		if req.SQLPatterns != nil {
			*patterns = newPatterns
			ch.patterns = true
		}
		return ch, nil
	})
}

// SeedDefaults writes the built-in dictionaries for any file that does not
// exist yet. Existing files are never touched.
func (s *Store) SeedDefaults() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dictionary directory: %w", err)
	}
	seeds := []struct {
		name string
		v    any
	}{
		{TermsFile, DefaultTerms()},
		{PatternsFile, DefaultPatterns()},
	}
	for _, seed := range seeds {
		path := filepath.Join(s.dir, seed.name)
		exists, err := afero.Exists(s.fs, path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", seed.name, err)
		}
		if exists {
			continue
		}
		if err := s.writeJSON(path, seed.v); err != nil {
			return err
		}
		s.log.Info("Seeded default dictionary", zap.String("path", path))
	}
	return nil
}
