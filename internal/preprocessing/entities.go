package preprocessing

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kcb-text2sql/backend/internal/dictionary"
)

type DomainTerm struct {
	Term       string `json:"term"`
	Category   string `json:"category"`
	SQLMapping string `json:"sql_mapping"`
	Table      string `json:"table"`
}

type NumericType string

const (
	NumericCurrency   NumericType = "currency"
	NumericPercentage NumericType = "percentage"
	NumericDuration   NumericType = "duration"
)

type NumericValue struct {
	Value string      `json:"value"`
	Unit  string      `json:"unit"`
	Type  NumericType `json:"type"`
}

type CreditScore struct {
	Value int    `json:"value"`
	Type  string `json:"type"`
	Range string `json:"range"`
}

type LoanAmount struct {
	Value int64  `json:"value"`
	Type  string `json:"type"`
	Unit  string `json:"unit"`
}

type DateValue struct {
	Year  string `json:"year,omitempty"`
	Month string `json:"month"`
	Day   string `json:"day"`
	Type  string `json:"type"`
}

// NumericRange is reported as written. Min may exceed Max.
type NumericRange struct {
	Min  int    `json:"min"`
	Max  int    `json:"max"`
	Type string `json:"type"`
}

type Entities struct {
	DomainTerms   []DomainTerm   `json:"domain_terms"`
	NumericValues []NumericValue `json:"numeric_values"`
	DateValues    []DateValue    `json:"date_values"`
	CustomerTypes []string       `json:"customer_types"`
	RiskLevels    []string       `json:"risk_levels"`
	CreditScores  []CreditScore  `json:"credit_scores"`
	LoanAmounts   []LoanAmount   `json:"loan_amounts"`
	NumericRanges []NumericRange `json:"numeric_ranges"`
}

const (
	minCreditScore = 300
	maxCreditScore = 850
)

var numericPatterns = []struct {
	re   *regexp.Regexp
	unit string
	typ  NumericType
}{
	{regexp.MustCompile(`(\d+)\s*원`), "원", NumericCurrency},
	{regexp.MustCompile(`(\d+)\s*(?:%|퍼센트)`), "%", NumericPercentage},
	{regexp.MustCompile(`(\d+)\s*일`), "일", NumericDuration},
	{regexp.MustCompile(`(\d+)\s*개월`), "개월", NumericDuration},
	{regexp.MustCompile(`(\d+)\s*년`), "년", NumericDuration},
}

var creditScorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`신용점수\s*(\d+)`),
	regexp.MustCompile(`크레딧스코어\s*(\d+)`),
	regexp.MustCompile(`(\d+)\s*점`),
}

var loanAmountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`대출금액\s*(\d+)\s*(억|만)?\s*원`),
	regexp.MustCompile(`(\d+)\s*(억|만)?\s*원\s*대출`),
	regexp.MustCompile(`대출\s*(\d+)\s*(억|만)?\s*원`),
}

var (
	fullDateKorean = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	fullDateISO    = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	monthDay       = regexp.MustCompile(`(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
)

var (
	rangeWords = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*이상\s*(\d+)\s*이하`),
		regexp.MustCompile(`(\d+)\s*부터\s*(\d+)\s*까지`),
	}
	// Normalization strips ~ and -, so these idioms only survive in the
	// original question.
	rangeSymbols = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*~\s*(\d+)`),
		regexp.MustCompile(`(\d+)\s*-\s*(\d+)`),
	}
)

var customerTypeAliases = []struct {
	label   string
	aliases []string
}{
	{"개인고객", []string{"개인고객", "개인신용", "개인"}},
	{"기업고객", []string{"기업고객", "기업신용", "기업"}},
	{"소상공인", []string{"소상공인고객", "소상공인"}},
	{"VIP고객", []string{"VIP고객", "우수고객", "VIP"}},
	{"관리고객", []string{"관리고객", "주의고객", "관리"}},
}

var riskLevelVocabulary = []string{"매우낮음", "낮음", "보통", "높음", "매우높음"}

// "위험도가 높은", "위험등급이 매우 낮은"
var (
	riskPhrase = regexp.MustCompile(`위험(?:도|등급|수준)?\s*(?:가|이|는|은)?\s*(매우\s*)?(높|낮)(?:은|음|다|고)`)
	riskPrefix = regexp.MustCompile(`(고|저)위험`)
)

// ExtractEntities runs every extractor over the normalized question. The
// original text is consulted only for the date and range idioms that
// normalization removes.
func ExtractEntities(original, normalized string, terms dictionary.TermDictionary) Entities {
	return Entities{
		DomainTerms:   extractDomainTerms(normalized, terms),
		NumericValues: extractNumericValues(normalized),
		DateValues:    extractDates(original, normalized),
		CustomerTypes: extractCustomerTypes(normalized),
		RiskLevels:    extractRiskLevels(normalized),
		CreditScores:  extractCreditScores(normalized),
		LoanAmounts:   extractLoanAmounts(normalized),
		NumericRanges: extractNumericRanges(original, normalized),
	}
}

func extractDomainTerms(text string, terms dictionary.TermDictionary) []DomainTerm {
	out := []DomainTerm{}
	for _, c := range terms.Categories {
		for _, t := range c.Terms {
			if !containsAny(text, t.Name, t.Info.Synonyms...) {
				continue
			}
			out = append(out, DomainTerm{
				Term:       t.Name,
				Category:   c.Name,
				SQLMapping: t.Info.SQLMapping,
				Table:      t.Info.Table,
			})
		}
	}
	return out
}

func containsAny(text, first string, rest ...string) bool {
	if first != "" && strings.Contains(text, first) {
		return true
	}
	for _, s := range rest {
		if s != "" && strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func extractNumericValues(text string) []NumericValue {
	out := []NumericValue{}
	for _, p := range numericPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			out = append(out, NumericValue{Value: m[1], Unit: p.unit, Type: p.typ})
		}
	}
	return out
}

func extractCustomerTypes(text string) []string {
	out := []string{}
	for _, ct := range customerTypeAliases {
		for _, alias := range ct.aliases {
			if strings.Contains(text, alias) {
				out = append(out, ct.label)
				break
			}
		}
	}
	return out
}

func extractRiskLevels(text string) []string {
	found := make(map[string]bool)
	for _, level := range riskLevelVocabulary {
		if strings.Contains(text, level) {
			found[level] = true
		}
	}
	for _, m := range riskPhrase.FindAllStringSubmatch(text, -1) {
		level := "높음"
		if m[2] == "낮" {
			level = "낮음"
		}
		if m[1] != "" {
			level = "매우" + level
		}
		found[level] = true
	}
	for _, m := range riskPrefix.FindAllStringSubmatch(text, -1) {
		if m[1] == "고" {
			found["높음"] = true
		} else {
			found["낮음"] = true
		}
	}

	out := []string{}
	for _, level := range riskLevelVocabulary {
		if found[level] {
			out = append(out, level)
		}
	}
	return out
}

// ScoreBand classifies a credit score.
func ScoreBand(score int) string {
	switch {
	case score >= 800:
		return "매우높음"
	case score >= 750:
		return "높음"
	case score >= 650:
		return "보통"
	case score >= 550:
		return "낮음"
	default:
		return "매우낮음"
	}
}

func extractCreditScores(text string) []CreditScore {
	out := []CreditScore{}
	seen := make(map[int]bool)
	for _, re := range creditScorePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			score, err := strconv.Atoi(m[1])
			if err != nil || score < minCreditScore || score > maxCreditScore || seen[score] {
				continue
			}
			seen[score] = true
			out = append(out, CreditScore{Value: score, Type: "credit_score", Range: ScoreBand(score)})
		}
	}
	return out
}

var koreanMultipliers = map[string]int64{"": 1, "만": 10_000, "억": 100_000_000}

func extractLoanAmounts(text string) []LoanAmount {
	out := []LoanAmount{}
	seen := make(map[int]bool)
	for _, re := range loanAmountPatterns {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			start := idx[2]
			if seen[start] {
				continue
			}
			n, err := strconv.ParseInt(text[idx[2]:idx[3]], 10, 64)
			if err != nil {
				continue
			}
			unit := ""
			if idx[4] >= 0 {
				unit = text[idx[4]:idx[5]]
			}
			seen[start] = true
			mult := koreanMultipliers[unit]
			if n > math.MaxInt64/mult {
				continue
			}
			out = append(out, LoanAmount{Value: n * mult, Type: "loan_amount", Unit: "원"})
		}
	}
	return out
}

func extractDates(original, normalized string) []DateValue {
	out := []DateValue{}
	for _, m := range fullDateKorean.FindAllStringSubmatch(normalized, -1) {
		out = append(out, DateValue{Year: m[1], Month: m[2], Day: m[3], Type: "full_date"})
	}
	for _, m := range fullDateISO.FindAllStringSubmatch(original, -1) {
		out = append(out, DateValue{Year: m[1], Month: m[2], Day: m[3], Type: "full_date"})
	}

	masked := fullDateKorean.ReplaceAllStringFunc(normalized, func(s string) string {
		return strings.Repeat(" ", len(s))
	})
	for _, m := range monthDay.FindAllStringSubmatch(masked, -1) {
		out = append(out, DateValue{Month: m[1], Day: m[2], Type: "month_day"})
	}
	return out
}

func extractNumericRanges(original, normalized string) []NumericRange {
	out := []NumericRange{}
	collect := func(re *regexp.Regexp, text string) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			lo, err1 := strconv.Atoi(m[1])
			hi, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				continue
			}
			out = append(out, NumericRange{Min: lo, Max: hi, Type: "numeric_range"})
		}
	}
	for _, re := range rangeWords {
		collect(re, normalized)
	}
	// ISO dates would otherwise read as "2024-03" ranges.
	symbolic := fullDateISO.ReplaceAllString(original, " ")
	for _, re := range rangeSymbols {
		collect(re, symbolic)
	}
	return out
}
