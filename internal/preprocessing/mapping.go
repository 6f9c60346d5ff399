package preprocessing

import (
	"strings"

	"github.com/kcb-text2sql/backend/internal/dictionary"
)

// MapDomainTerms rewrites every known term and synonym to its SQL mapping.
// Substitution is sequential in dictionary order, so a later rule sees the
// output of earlier ones and mappings may compound. That ordering is the
// contract callers rely on.
func MapDomainTerms(text string, terms dictionary.TermDictionary) string {
	for _, c := range terms.Categories {
		for _, t := range c.Terms {
			if strings.Contains(text, t.Name) {
				text = strings.ReplaceAll(text, t.Name, t.Info.SQLMapping)
			}
			for _, syn := range t.Info.Synonyms {
				if syn != "" && strings.Contains(text, syn) {
					text = strings.ReplaceAll(text, syn, t.Info.SQLMapping)
				}
			}
		}
	}
	return text
}
