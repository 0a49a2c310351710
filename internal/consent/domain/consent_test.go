package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello", Preview("  hello \n"))

	long := strings.Repeat("ж", 200)
	p := Preview(long)
	assert.Equal(t, 140, utf8.RuneCountInString(p))
	assert.True(t, utf8.ValidString(p))
}
