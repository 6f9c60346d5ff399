package text2sql

import "strings"

const defaultRuleSQL = "SELECT * FROM customers LIMIT 10;"

type rule struct {
	all []string
	sql string
}

// rules are checked in order; the first rule whose keywords all occur in
// the question wins.
var rules = []rule{
	{[]string{"고객", "목록"}, "SELECT * FROM customers;"},
	{[]string{"신용점수", "높은"}, "SELECT c.name, cs.credit_score FROM customers c JOIN credit_scores cs ON c.customer_id = cs.customer_id ORDER BY cs.credit_score DESC;"},
	{[]string{"신용점수", "낮은"}, "SELECT c.name, cs.credit_score FROM customers c JOIN credit_scores cs ON c.customer_id = cs.customer_id ORDER BY cs.credit_score ASC;"},
	{[]string{"나이", "평균"}, "SELECT AVG(age) as average_age FROM customers;"},
	{[]string{"성별", "분포"}, "SELECT gender, COUNT(*) as count FROM customers GROUP BY gender;"},
	{[]string{"소득", "수준"}, "SELECT income_level, COUNT(*) as count FROM customers GROUP BY income_level;"},
	{[]string{"위험도"}, "SELECT cs.risk_level, COUNT(*) as count FROM credit_scores cs GROUP BY cs.risk_level;"},
	{[]string{"고객", "수"}, "SELECT COUNT(*) as total_customers FROM customers;"},
	{[]string{"신용점수", "평균"}, "SELECT AVG(credit_score) as average_credit_score FROM credit_scores;"},
	{[]string{"직업", "별"}, "SELECT occupation, COUNT(*) as count FROM customers GROUP BY occupation;"},
	{[]string{"가입일", "최근"}, "SELECT name, registration_date FROM customers ORDER BY registration_date DESC LIMIT 5;"},
}

// RuleBasedSQL answers without a model. It always returns a query.
func RuleBasedSQL(question string) string {
	for _, r := range rules {
		if containsAll(question, r.all) {
			return r.sql
		}
	}
	return defaultRuleSQL
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}
