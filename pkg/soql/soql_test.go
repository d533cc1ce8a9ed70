package soql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"smith", "smith"},
		{"O'Reilly", `O\'Reilly`},
		{`back\slash`, `back\\slash`},
		{`\'`, `\\\'`},
		{"it's a test's case", `it\'s a test\'s case`},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Escape(tt.input))
		})
	}
}

func TestEscape_InjectionStaysInsideLiteral(t *testing.T) {
	payloads := []string{
		"x' OR Name != '",
		"x' OR Id != null --",
		`x\' OR Name LIKE '%`,
		"'; DELETE FROM Account /*",
	}
	for _, p := range payloads {
		literal := Quote(p)
		assert.True(t, literalIsClosedOnlyAtEnd(literal), "payload %q escaped to %s", p, literal)
	}
}

func TestEscape_TruncatesWithoutDanglingBackslash(t *testing.T) {
	t.Run("plain truncation", func(t *testing.T) {
		out := Escape(strings.Repeat("a", 400))
		assert.Len(t, out, MaxLiteralLength)
	})

	t.Run("cut escape pair is dropped", func(t *testing.T) {
		// 254 letters + a quote: the escape lands on bytes 255-256.
		in := strings.Repeat("a", MaxLiteralLength-1) + "'"
		out := Escape(in)
		assert.Equal(t, strings.Repeat("a", MaxLiteralLength-1), out)
		assert.True(t, literalIsClosedOnlyAtEnd("'"+out+"'"))
	})

	t.Run("rune boundary", func(t *testing.T) {
		in := strings.Repeat("a", MaxLiteralLength-1) + "é"
		out := Escape(in)
		assert.Equal(t, strings.Repeat("a", MaxLiteralLength-1), out)
	})
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_done\'`, EscapeLike("100% _done'"))
	assert.Equal(t, `a\\b`, EscapeLike(`a\b`))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'Household'`, Quote("Household"))
	assert.Equal(t, `'O\'Brien'`, Quote("O'Brien"))
}

func TestValidIdentifier(t *testing.T) {
	valid := []string{"Name", "AccountId", "FinServ__Household__c", "RecordType.DeveloperName", "Total_AUM__c"}
	for _, name := range valid {
		assert.True(t, ValidIdentifier(name), name)
	}

	invalid := []string{
		"", "1Name", "Name'", "Name OR Id", "Type = 'x'", "_private", "Name--", "a.", ".b",
		strings.Repeat("a", 256),
	}
	for _, name := range invalid {
		assert.False(t, ValidIdentifier(name), name)
	}
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "Type", Identifier("Type", "Name"))
	assert.Equal(t, "Name", Identifier("Type' OR '1'='1", "Name"))
	assert.Equal(t, "", Identifier("bad name", ""))
}

func TestSuspicious(t *testing.T) {
	t.Run("flags classic injection", func(t *testing.T) {
		fp, ok := Suspicious("1' OR '1'='1")
		assert.True(t, ok)
		assert.NotEmpty(t, fp)
	})

	t.Run("ordinary names pass", func(t *testing.T) {
		_, ok := Suspicious("Smith Family")
		assert.False(t, ok)
	})

	t.Run("empty passes", func(t *testing.T) {
		_, ok := Suspicious("")
		assert.False(t, ok)
	})
}

// literalIsClosedOnlyAtEnd walks a single-quoted SOQL literal honoring
// backslash escapes and reports whether the first unescaped closing quote is
// the final byte.
func literalIsClosedOnlyAtEnd(literal string) bool {
	if len(literal) < 2 || literal[0] != '\'' {
		return false
	}
	for i := 1; i < len(literal); i++ {
		switch literal[i] {
		case '\\':
			i++
		case '\'':
			return i == len(literal)-1
		}
	}
	return false
}
