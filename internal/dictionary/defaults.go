package dictionary

func term(name string, synonyms []string, column, table, dataType string) Term {
	return Term{Name: name, Info: TermInfo{Synonyms: synonyms, SQLMapping: column, Table: table, DataType: dataType}}
}

// DefaultTerms is the vocabulary a fresh installation starts with. It
// covers the columns of the default credit scoring schema.
func DefaultTerms() TermDictionary {
	return TermDictionary{Categories: []TermCategory{
		{Name: "customer_info", Terms: []Term{
			term("고객명", []string{"고객 이름", "성명"}, "name", "customers", "VARCHAR"),
			term("나이", []string{"연령"}, "age", "customers", "INTEGER"),
			term("성별", []string{}, "gender", "customers", "VARCHAR"),
			term("직업", []string{"직종"}, "occupation", "customers", "VARCHAR"),
			term("소득수준", []string{"소득 수준"}, "income_level", "customers", "VARCHAR"),
			term("가입일", []string{"등록일"}, "registration_date", "customers", "DATE"),
		}},
		{Name: "credit_info", Terms: []Term{
			term("신용점수", []string{"신용 점수", "크레딧스코어"}, "credit_score", "credit_scores", "INTEGER"),
			term("위험도", []string{"위험등급", "리스크"}, "risk_level", "credit_scores", "VARCHAR"),
			term("신용평가기관", []string{"평가기관"}, "credit_bureau", "credit_scores", "VARCHAR"),
			term("평가일", []string{"점수 평가일"}, "score_date", "credit_scores", "DATE"),
		}},
		{Name: "loan_info", Terms: []Term{
			term("대출금액", []string{"대출 금액", "대출액"}, "loan_amount", "loan_history", "DECIMAL"),
			term("대출유형", []string{"대출 유형", "대출 종류"}, "loan_type", "loan_history", "VARCHAR"),
			term("이자율", []string{"금리"}, "interest_rate", "loan_history", "DECIMAL"),
			term("월상환액", []string{"월 상환액"}, "monthly_payment", "loan_history", "DECIMAL"),
			term("만기일", []string{"만기"}, "due_date", "loan_history", "DATE"),
		}},
		{Name: "payment_info", Terms: []Term{
			term("연체일수", []string{"연체 일수", "연체기간"}, "days_late", "payment_history", "INTEGER"),
			term("결제금액", []string{"납부금액"}, "payment_amount", "payment_history", "DECIMAL"),
			term("결제일", []string{"납부일"}, "payment_date", "payment_history", "DATE"),
		}},
		{Name: "employment_info", Terms: []Term{
			term("연봉", []string{"급여", "연소득"}, "salary", "employment_history", "DECIMAL"),
			term("회사명", []string{"직장명"}, "company_name", "employment_history", "VARCHAR"),
			term("고용형태", []string{"고용 형태"}, "employment_type", "employment_history", "VARCHAR"),
		}},
	}}
}

// DefaultPatterns maps Korean idioms onto SQL fragments.
func DefaultPatterns() PatternTable {
	return PatternTable{Categories: []PatternCategory{
		{Name: "aggregation", Patterns: []Pattern{
			{Korean: "합계", SQL: "SUM"},
			{Korean: "총합", SQL: "SUM"},
			{Korean: "평균", SQL: "AVG"},
			{Korean: "개수", SQL: "COUNT"},
			{Korean: "건수", SQL: "COUNT"},
			{Korean: "최대", SQL: "MAX"},
			{Korean: "최소", SQL: "MIN"},
		}},
		{Name: "comparison", Patterns: []Pattern{
			{Korean: "이상", SQL: ">="},
			{Korean: "이하", SQL: "<="},
			{Korean: "초과", SQL: ">"},
			{Korean: "미만", SQL: "<"},
			{Korean: "같은", SQL: "="},
		}},
		{Name: "ordering", Patterns: []Pattern{
			{Korean: "높은 순", SQL: "ORDER BY DESC"},
			{Korean: "낮은 순", SQL: "ORDER BY ASC"},
			{Korean: "내림차순", SQL: "DESC"},
			{Korean: "오름차순", SQL: "ASC"},
			{Korean: "최근", SQL: "ORDER BY DESC"},
		}},
	}}
}
