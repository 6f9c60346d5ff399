package text2sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleBasedSQL(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"고객 목록 보여줘", "SELECT * FROM customers;"},
		{"신용점수가 높은 고객", "SELECT c.name, cs.credit_score FROM customers c JOIN credit_scores cs ON c.customer_id = cs.customer_id ORDER BY cs.credit_score DESC;"},
		{"신용점수가 낮은 고객", "SELECT c.name, cs.credit_score FROM customers c JOIN credit_scores cs ON c.customer_id = cs.customer_id ORDER BY cs.credit_score ASC;"},
		{"고객 나이 평균", "SELECT AVG(age) as average_age FROM customers;"},
		{"위험도별 고객", "SELECT cs.risk_level, COUNT(*) as count FROM credit_scores cs GROUP BY cs.risk_level;"},
		{"직업별 현황", "SELECT occupation, COUNT(*) as count FROM customers GROUP BY occupation;"},
		{"최근 가입일 순", "SELECT name, registration_date FROM customers ORDER BY registration_date DESC LIMIT 5;"},
		{"날씨 어때", "SELECT * FROM customers LIMIT 10;"},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, RuleBasedSQL(tt.question))
		})
	}
}

func TestRuleBasedSQL_FirstRuleWins(t *testing.T) {
	// "고객 목록" precedes "고객 수" in the rule order.
	assert.Equal(t, "SELECT * FROM customers;", RuleBasedSQL("고객 수와 고객 목록"))
	// "신용점수 높은" precedes "신용점수 평균".
	assert.Contains(t, RuleBasedSQL("평균보다 신용점수가 높은"), "ORDER BY cs.credit_score DESC")
}
