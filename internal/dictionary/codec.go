package dictionary

import (
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/xeipuuv/gojsonschema"
)

const termInfoSchema = `{
  "type": "object",
  "properties": {
    "synonyms":    {"type": "array", "items": {"type": "string", "minLength": 1}},
    "sql_mapping": {"type": "string"},
    "table":       {"type": "string"},
    "data_type":   {"type": "string"}
  }
}`

const sqlFragmentSchema = `{"type": "string", "minLength": 1}`

var (
	termInfoValidator    = mustSchema(termInfoSchema)
	sqlFragmentValidator = mustSchema(sqlFragmentSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("dictionary: invalid schema: %v", err))
	}
	return s
}

func validate(schema *gojsonschema.Schema, raw []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

type rawObject = orderedmap.OrderedMap[string, json.RawMessage]

// decodeObjects reads a two-level JSON object keeping key order. Categories
// whose value is not an object are reported as rejected.
func decodeObjects(data []byte) ([]string, []*rawObject, []Rejected, error) {
	top := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, top); err != nil {
		return nil, nil, nil, err
	}

	var (
		names    []string
		children []*rawObject
		rejected []Rejected
	)
	for p := top.Oldest(); p != nil; p = p.Next() {
		child := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(p.Value, child); err != nil {
			rejected = append(rejected, Rejected{Category: p.Key, Reason: "category is not an object"})
			continue
		}
		names = append(names, p.Key)
		children = append(children, child)
	}
	return names, children, rejected, nil
}

func decodeTerms(data []byte) (TermDictionary, []Rejected, error) {
	names, children, rejected, err := decodeObjects(data)
	if err != nil {
		return TermDictionary{}, nil, err
	}

	var dict TermDictionary
	for i, name := range names {
		cat := TermCategory{Name: name}
		for p := children[i].Oldest(); p != nil; p = p.Next() {
			if strings.TrimSpace(p.Key) == "" {
				rejected = append(rejected, Rejected{Category: name, Key: p.Key, Reason: "empty term"})
				continue
			}
			if err := validate(termInfoValidator, p.Value); err != nil {
				rejected = append(rejected, Rejected{Category: name, Key: p.Key, Reason: err.Error()})
				continue
			}
			var info TermInfo
			if err := json.Unmarshal(p.Value, &info); err != nil {
				rejected = append(rejected, Rejected{Category: name, Key: p.Key, Reason: err.Error()})
				continue
			}
			cat.Terms = append(cat.Terms, Term{Name: p.Key, Info: normalizeInfo(p.Key, info)})
		}
		dict.Categories = append(dict.Categories, cat)
	}
	return dict, rejected, nil
}

func decodePatterns(data []byte) (PatternTable, []Rejected, error) {
	names, children, rejected, err := decodeObjects(data)
	if err != nil {
		return PatternTable{}, nil, err
	}

	var table PatternTable
	for i, name := range names {
		cat := PatternCategory{Name: name}
		for p := children[i].Oldest(); p != nil; p = p.Next() {
			if strings.TrimSpace(p.Key) == "" {
				rejected = append(rejected, Rejected{Category: name, Key: p.Key, Reason: "empty phrase"})
				continue
			}
			if err := validate(sqlFragmentValidator, p.Value); err != nil {
				rejected = append(rejected, Rejected{Category: name, Key: p.Key, Reason: err.Error()})
				continue
			}
			var sql string
			if err := json.Unmarshal(p.Value, &sql); err != nil {
				rejected = append(rejected, Rejected{Category: name, Key: p.Key, Reason: err.Error()})
				continue
			}
			cat.Patterns = append(cat.Patterns, Pattern{Korean: p.Key, SQL: sql})
		}
		table.Categories = append(table.Categories, cat)
	}
	return table, rejected, nil
}

// normalizeInfo fills the defaults an entry may omit: a missing
// sql_mapping maps the term onto itself.
func normalizeInfo(term string, info TermInfo) TermInfo {
	if info.Synonyms == nil {
		info.Synonyms = []string{}
	}
	if info.SQLMapping == "" {
		info.SQLMapping = term
	}
	return info
}

func rejectionError(rejected []Rejected) error {
	parts := make([]string, 0, len(rejected))
	for _, r := range rejected {
		parts = append(parts, fmt.Sprintf("%s.%s: %s", r.Category, r.Key, r.Reason))
	}
	return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(parts, ", "))
}

func (d TermDictionary) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, *orderedmap.OrderedMap[string, TermInfo]]()
	for _, c := range d.Categories {
		terms := orderedmap.New[string, TermInfo]()
		for _, t := range c.Terms {
			terms.Set(t.Name, normalizeInfo(t.Name, t.Info))
		}
		out.Set(c.Name, terms)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is strict: any entry that fails validation fails the decode.
func (d *TermDictionary) UnmarshalJSON(data []byte) error {
	dict, rejected, err := decodeTerms(data)
	if err != nil {
		return err
	}
	if len(rejected) > 0 {
		return rejectionError(rejected)
	}
	*d = dict
	return nil
}

func (p PatternTable) MarshalJSON() ([]byte, error) {
	out := orderedmap.New[string, *orderedmap.OrderedMap[string, string]]()
	for _, c := range p.Categories {
		patterns := orderedmap.New[string, string]()
		for _, pt := range c.Patterns {
			patterns.Set(pt.Korean, pt.SQL)
		}
		out.Set(c.Name, patterns)
	}
	return json.Marshal(out)
}

func (p *PatternTable) UnmarshalJSON(data []byte) error {
	table, rejected, err := decodePatterns(data)
	if err != nil {
		return err
	}
	if len(rejected) > 0 {
		return rejectionError(rejected)
	}
	*p = table
	return nil
}

func encodeIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
