package preprocessing

import (
	"fmt"
	"regexp"
	"strings"
)

type QuestionType string

const (
	QuestionCount   QuestionType = "COUNT_QUERY"
	QuestionSum     QuestionType = "SUM_QUERY"
	QuestionAvg     QuestionType = "AVG_QUERY"
	QuestionMax     QuestionType = "MAX_QUERY"
	QuestionMin     QuestionType = "MIN_QUERY"
	QuestionSelect  QuestionType = "SELECT_QUERY"
	QuestionGeneral QuestionType = "GENERAL_QUERY"
)

const reasoningDone = "추론 완료: 자연어를 SQL로 변환할 준비가 되었습니다."

// countNoun matches 수 as a standalone noun ("고객 수를") without firing on
// words such as 수익 or 점수.
var countNoun = regexp.MustCompile(`(?:^|\s)수(?:를|는|가|\s|$)`)

var questionKeywords = []struct {
	typ   QuestionType
	words []string
}{
	{QuestionCount, []string{"몇", "개수", "건수", "수량"}},
	{QuestionSum, []string{"합계", "총합", "합"}},
	{QuestionAvg, []string{"평균", "평균값"}},
	{QuestionMax, []string{"최대", "최고"}},
	{QuestionMin, []string{"최소", "최저"}},
	{QuestionSelect, []string{"목록", "리스트", "조회"}},
}

// ClassifyQuestion picks the first matching question type in priority
// order COUNT, SUM, AVG, MAX, MIN, SELECT.
func ClassifyQuestion(text string) QuestionType {
	for _, k := range questionKeywords {
		for _, w := range k.words {
			if strings.Contains(text, w) {
				return k.typ
			}
		}
		if k.typ == QuestionCount && countNoun.MatchString(text) {
			return QuestionCount
		}
	}
	return QuestionGeneral
}

// BuildReasoning produces the human readable trace for a question. The
// first line is always the question type and the last the completion line.
func BuildReasoning(normalized string, entities Entities, clauses []Clause) []string {
	steps := []string{fmt.Sprintf("질문 유형: %s", ClassifyQuestion(normalized))}

	if len(entities.DomainTerms) > 0 {
		names := make([]string, 0, len(entities.DomainTerms))
		for _, t := range entities.DomainTerms {
			names = append(names, t.Term)
		}
		steps = append(steps, "도메인 용어 발견: "+strings.Join(names, ", "))
	}

	var conditional []string
	for _, c := range clauses {
		if c.ConditionalType != "" {
			conditional = append(conditional, fmt.Sprintf("%s (%s)", c.Content, c.ConditionalType))
		}
	}
	if len(conditional) > 0 {
		steps = append(steps, "조건부 표현: "+strings.Join(conditional, "; "))
	}

	var pairs []string
	for _, c := range clauses {
		for _, p := range c.SQLPatterns {
			pairs = append(pairs, fmt.Sprintf("%s → %s", p.Korean, p.SQL))
		}
	}
	if len(pairs) > 0 {
		steps = append(steps, "SQL 패턴: "+strings.Join(pairs, "; "))
	}

	return append(steps, reasoningDone)
}
