package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		want     string
	}{
		{
			name:     "plain text collapses spacing",
			filename: "a.txt",
			content:  "신용점수   기준\r\n\r\n\r\n\r\n연체\t일수",
			want:     "신용점수 기준\n\n연체 일수",
		},
		{
			name:     "markdown kept as text",
			filename: "a.MD",
			content:  "# 평가 정책\n- 고위험 고객",
			want:     "# 평가 정책\n- 고위험 고객",
		},
		{
			name:     "html drops chrome",
			filename: "a.html",
			content: `<html><head><title>여신 지침</title><style>p{}</style></head>
				<body><nav>메뉴</nav><h1>개요</h1><p>대출   한도는 <b>소득</b>에 따라</p><script>x()</script>
				<ul><li>첫째</li><li>둘째</li></ul><footer>끝</footer></body></html>`,
			want: "여신 지침\n개요\n대출 한도는 소득에 따라\n첫째\n둘째",
		},
		{
			name:     "csv becomes labelled rows",
			filename: "a.csv",
			content:  "고객,점수\n김철수,750\n이영희,680\n",
			want:     "고객: 김철수 | 점수: 750\n고객: 이영희 | 점수: 680",
		},
		{
			name:     "json is indented",
			filename: "a.json",
			content:  `{"등급":"A","점수":[750]}`,
			want:     "{\n  \"등급\": \"A\",\n  \"점수\": [\n    750\n  ]\n}",
		},
		{
			name:     "byte order mark stripped",
			filename: "a.txt",
			content:  "\ufeff본문",
			want:     "본문",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText(tt.filename, []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractText_Errors(t *testing.T) {
	_, err := ExtractText("a.docx", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ExtractText("a.json", []byte("{"))
	assert.ErrorContains(t, err, "failed to parse JSON")

	_, err = ExtractText("a.txt", []byte{0xff, 0xfe})
	assert.ErrorContains(t, err, "UTF-8")

	_, err = ExtractText("a.html", []byte("<html><body><script>x</script></body></html>"))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestCleanFilename(t *testing.T) {
	for _, bad := range []string{"", " ", ".", "..", "../x.txt", "a/b.txt", `a\b.txt`, ".env"} {
		_, err := CleanFilename(bad)
		assert.ErrorIs(t, err, ErrInvalidFilename, bad)
	}
	got, err := CleanFilename(" 정책.md ")
	require.NoError(t, err)
	assert.Equal(t, "정책.md", got)
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, ChunkText("   ", 10, 2))
	assert.Equal(t, []string{"짧은 문서"}, ChunkText("짧은 문서", 100, 20))

	text := strings.Repeat("가", 25)
	chunks := ChunkText(text, 10, 3)
	require.Len(t, chunks, 4)
	assert.Equal(t, strings.Repeat("가", 10), chunks[0])
	assert.Equal(t, strings.Repeat("가", 4), chunks[3])
}

func TestChunkText_PrefersBreaks(t *testing.T) {
	text := "첫 문단입니다\n\n둘째 문단은 조금 더 깁니다"
	chunks := ChunkText(text, 12, 0)
	assert.Equal(t, "첫 문단입니다", chunks[0])
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 12)
	}
}

func TestChunkText_OverlapCarriesContext(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	chunks := ChunkText(text, 20, 8)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		assert.Contains(t, chunks[i], prevWords[len(prevWords)-1])
	}
}
