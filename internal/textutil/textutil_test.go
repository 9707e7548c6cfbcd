package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "елка под снегом", Normalize("Ёлка  ПОД   снегом"))
	assert.Equal(t, "труба d110", Normalize("  Труба   D110 "))
	assert.Equal(t, "", Normalize("   "))
}

func TestNormalizeFoldsYo(t *testing.T) {
	assert.Equal(t, Normalize("учет"), Normalize("учёт"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"труб", "пвх"}, Tokenize("Монтаж труб из ПВХ"))
	// Single-character tokens and stop-words are dropped
	assert.Empty(t, Tokenize("и в на м шт"))
	assert.Empty(t, Tokenize(""))
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("труба труба стальная")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "труба")
	assert.Contains(t, set, "стальная")
}

func TestOverlap(t *testing.T) {
	assert.InDelta(t, 2.0/3.0, Overlap("прокладка труб", "труб стальных прокладка"), 0.001)
	assert.Equal(t, 1.0, Overlap("кабель силовой", "Кабель  силовой"))
	assert.Equal(t, 0.0, Overlap("", "труба"))
	assert.Equal(t, 0.0, Overlap("кирпич", "вентилятор"))
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1200", 1200, true},
		{"1 200,50", 1200.50, true},
		{"1.200", 1200, true},
		{"12,5", 12.5, true},
		{"от 3 500 руб.", 3500, true},
		{"цена договорная", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParsePrice(c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 0.001, "input %q", c.in)
		}
	}
}
