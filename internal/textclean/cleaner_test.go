package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_SmartPunctuation(t *testing.T) {
	res := Apply("“Wait…” she said — softly.", Options{ReplaceSmartQuotes: true}, PhasePre)
	assert.Equal(t, `"Wait..." she said - softly.`, res.Text)
	assert.Equal(t, []string{StepSmartQuotes}, res.Applied)
}

func TestApply_URLsAndFootnotes(t *testing.T) {
	in := "See https://example.com/page for more [12]. Also (iv) and www.test.org."
	res := Apply(in, Options{RemoveURLs: true, RemoveFootnotes: true}, PhasePre)
	assert.Equal(t, "See for more . Also and", res.Text)
	assert.Equal(t, []string{StepURLs, StepFootnotes}, res.Applied)

	post := Apply("[1] Speaker 1: hi", Options{RemoveFootnotes: true}, PhasePost)
	assert.Equal(t, "[1] Speaker 1: hi", post.Text)
	assert.Empty(t, post.Applied)
}

func TestApply_Hyphenation(t *testing.T) {
	res := Apply("the extra-\n ordinary\nday", Options{FixHyphenation: true}, PhasePre)
	assert.Equal(t, "the extraordinary day", res.Text)
	assert.Contains(t, res.Applied, StepHyphenation)

	res = Apply("a\nb\nc", Options{FixHyphenation: true}, PhasePre)
	assert.Equal(t, "a b c", res.Text)
}

func TestApply_OCRFixes(t *testing.T) {
	res := Apply("It was theHouse of someone", Options{FixOCRErrors: true}, PhasePre)
	assert.Equal(t, "It was the House of someone", res.Text)
	assert.Contains(t, res.Applied, StepCamelCase)
}

func TestSplitMergedWords(t *testing.T) {
	lex := NewLexicon([]string{"house", "mother", "thought", "through", "the"})
	assert.Equal(t, "mother house", splitMergedWords("motherhouse", lex))
	assert.Equal(t, "Mother thought", splitMergedWords("Motherthought", lex))
	assert.Equal(t, "through", splitMergedWords("through", lex))
	assert.Equal(t, "zzzzzzzz", splitMergedWords("zzzzzzzz", lex))
}

func TestNormalizeSpacing(t *testing.T) {
	in := "  one   two \t\n   three\n\n\n\nfour  "
	assert.Equal(t, "one two\nthree\n\nfour", NormalizeSpacing(in))
}
