package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("고객 목록", "personal_credit"), HashKey(" 고객 목록 ", "personal_credit"))
	assert.NotEqual(t, HashKey("ab", "c"), HashKey("a", "bc"))
	assert.Len(t, HashKey("x"), 64)
}
