package text2sql

import (
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kcb-text2sql/backend/internal/kg/neo4j"
)

type Column struct {
	Name        string
	Type        string
	Description string
}

type Table struct {
	Name        string
	Description string
	Columns     []Column
}

// Metadata describes the database questions are answered against. Table
// and column order is significant: it is the order shown to the model and
// returned by the metadata endpoint.
type Metadata struct {
	Tables []Table
}

type columnJSON struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type tableJSON struct {
	Description string                                       `json:"description"`
	Columns     *orderedmap.OrderedMap[string, columnJSON] `json:"columns"`
}

// MarshalJSON renders {"tables": {name: {description, columns: {name: {type, description}}}}}
// keeping declaration order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	tables := orderedmap.New[string, tableJSON]()
	for _, t := range m.Tables {
		cols := orderedmap.New[string, columnJSON]()
		for _, c := range t.Columns {
			cols.Set(c.Name, columnJSON{Type: c.Type, Description: c.Description})
		}
		tables.Set(t.Name, tableJSON{Description: t.Description, Columns: cols})
	}
	return json.Marshal(struct {
		Tables *orderedmap.OrderedMap[string, tableJSON] `json:"tables"`
	}{tables})
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tables *orderedmap.OrderedMap[string, tableJSON] `json:"tables"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Tables == nil {
		return fmt.Errorf("metadata has no tables")
	}
	m.Tables = nil
	for pair := raw.Tables.Oldest(); pair != nil; pair = pair.Next() {
		t := Table{Name: pair.Key, Description: pair.Value.Description}
		if pair.Value.Columns != nil {
			for col := pair.Value.Columns.Oldest(); col != nil; col = col.Next() {
				t.Columns = append(t.Columns, Column{Name: col.Key, Type: col.Value.Type, Description: col.Value.Description})
			}
		}
		m.Tables = append(m.Tables, t)
	}
	return nil
}

// SchemaPrompt is the schema block placed at the top of every prompt.
func (m Metadata) SchemaPrompt() string {
	var b strings.Builder
	b.WriteString("데이터베이스 스키마:\n")
	for _, t := range m.Tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, fmt.Sprintf("%s(%s)", c.Name, c.Type))
		}
		fmt.Fprintf(&b, "- %s 테이블: %s\n", t.Name, strings.Join(cols, ", "))
	}
	return b.String()
}

// GraphTables converts the metadata for the schema graph.
func (m Metadata) GraphTables() []neo4j.Table {
	out := make([]neo4j.Table, 0, len(m.Tables))
	for _, t := range m.Tables {
		cols := make([]neo4j.Column, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, neo4j.Column{Name: c.Name, Type: c.Type, Description: c.Description})
		}
		out = append(out, neo4j.Table{Name: t.Name, Description: t.Description, Columns: cols})
	}
	return out
}

func DefaultMetadata() Metadata {
	return Metadata{Tables: []Table{
		{
			Name:        "customers",
			Description: "고객 기본 정보 테이블",
			Columns: []Column{
				{"customer_id", "INTEGER", "고객 고유 ID"},
				{"name", "VARCHAR(100)", "고객 이름"},
				{"age", "INTEGER", "고객 나이"},
				{"gender", "VARCHAR(10)", "성별 (M/F)"},
				{"email", "VARCHAR(100)", "이메일 주소"},
				{"phone", "VARCHAR(20)", "전화번호"},
				{"address", "TEXT", "주소"},
				{"registration_date", "DATE", "가입일"},
				{"occupation", "VARCHAR(50)", "직업"},
				{"income_level", "VARCHAR(20)", "소득 수준 (LOW/MEDIUM/HIGH)"},
			},
		},
		{
			Name:        "credit_scores",
			Description: "고객 신용점수 정보",
			Columns: []Column{
				{"customer_id", "INTEGER", "고객 고유 ID (customers 테이블 참조)"},
				{"credit_score", "INTEGER", "신용점수 (300-850)"},
				{"score_date", "DATE", "점수 평가일"},
				{"credit_bureau", "VARCHAR(50)", "신용평가기관"},
				{"risk_level", "VARCHAR(20)", "위험도 (LOW/MEDIUM/HIGH)"},
			},
		},
		{
			Name:        "loan_history",
			Description: "대출 이력 정보",
			Columns: []Column{
				{"loan_id", "INTEGER", "대출 고유 ID"},
				{"customer_id", "INTEGER", "고객 고유 ID (customers 테이블 참조)"},
				{"loan_amount", "DECIMAL(15,2)", "대출 금액"},
				{"loan_type", "VARCHAR(50)", "대출 유형 (MORTGAGE/PERSONAL/BUSINESS)"},
				{"interest_rate", "DECIMAL(5,2)", "이자율 (%)"},
				{"loan_date", "DATE", "대출 시작일"},
				{"due_date", "DATE", "만기일"},
				{"status", "VARCHAR(20)", "상태 (ACTIVE/PAID/DEFAULTED)"},
				{"monthly_payment", "DECIMAL(10,2)", "월 상환액"},
			},
		},
		{
			Name:        "payment_history",
			Description: "결제 이력 정보",
			Columns: []Column{
				{"payment_id", "INTEGER", "결제 고유 ID"},
				{"loan_id", "INTEGER", "대출 ID (loan_history 테이블 참조)"},
				{"payment_date", "DATE", "결제일"},
				{"payment_amount", "DECIMAL(10,2)", "결제 금액"},
				{"payment_type", "VARCHAR(20)", "결제 유형 (ON_TIME/LATE/DEFAULT)"},
				{"days_late", "INTEGER", "연체 일수"},
			},
		},
		{
			Name:        "employment_history",
			Description: "고용 이력 정보",
			Columns: []Column{
				{"employment_id", "INTEGER", "고용 이력 ID"},
				{"customer_id", "INTEGER", "고객 고유 ID (customers 테이블 참조)"},
				{"company_name", "VARCHAR(100)", "회사명"},
				{"position", "VARCHAR(50)", "직책"},
				{"start_date", "DATE", "입사일"},
				{"end_date", "DATE", "퇴사일 (NULL이면 재직중)"},
				{"salary", "DECIMAL(12,2)", "연봉"},
				{"employment_type", "VARCHAR(20)", "고용 형태 (FULL_TIME/PART_TIME/CONTRACT)"},
			},
		},
	}}
}

type SampleCustomer struct {
	CustomerID       int    `json:"customer_id"`
	Name             string `json:"name"`
	Age              int    `json:"age"`
	Gender           string `json:"gender"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	RegistrationDate string `json:"registration_date"`
	Occupation       string `json:"occupation"`
	IncomeLevel      string `json:"income_level"`
}

type SampleCreditScore struct {
	CustomerID   int    `json:"customer_id"`
	CreditScore  int    `json:"credit_score"`
	ScoreDate    string `json:"score_date"`
	CreditBureau string `json:"credit_bureau"`
	RiskLevel    string `json:"risk_level"`
}

type SampleData struct {
	Customers    []SampleCustomer    `json:"customers"`
	CreditScores []SampleCreditScore `json:"credit_scores"`
}

func DefaultSampleData() SampleData {
	return SampleData{
		Customers: []SampleCustomer{
			{1, "김철수", 35, "M", "kim@email.com", "010-1234-5678", "서울시 강남구", "2020-01-15", "엔지니어", "HIGH"},
			{2, "이영희", 28, "F", "lee@email.com", "010-2345-6789", "서울시 서초구", "2019-06-20", "디자이너", "MEDIUM"},
			{3, "박민수", 42, "M", "park@email.com", "010-3456-7890", "부산시 해운대구", "2018-11-10", "매니저", "HIGH"},
			{4, "최지영", 31, "F", "choi@email.com", "010-4567-8901", "대구시 수성구", "2021-03-05", "교사", "MEDIUM"},
			{5, "정현우", 39, "M", "jung@email.com", "010-5678-9012", "인천시 연수구", "2017-09-12", "의사", "HIGH"},
		},
		CreditScores: []SampleCreditScore{
			{1, 750, "2023-12-01", "NICE", "LOW"},
			{2, 680, "2023-12-01", "NICE", "MEDIUM"},
			{3, 720, "2023-12-01", "NICE", "LOW"},
			{4, 620, "2023-12-01", "NICE", "MEDIUM"},
			{5, 800, "2023-12-01", "NICE", "LOW"},
		},
	}
}
