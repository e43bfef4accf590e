package textclean

import (
	"bufio"
	_ "embed"
	"os"
	"regexp"
	"strings"
	"sync"
)

//go:embed words.txt
var fallbackWords string

const maxLexiconSize = 60_000

var dictPaths = []string{
	"/usr/share/dict/words",
	"/usr/share/dict/american-english",
	"/usr/share/dict/english",
	"/usr/share/dict/british-english",
}

// Lexicon is a lower-case word set used to split OCR-merged words.
type Lexicon map[string]struct{}

func (l Lexicon) Has(word string) bool {
	_, ok := l[strings.ToLower(word)]
	return ok
}

var (
	defaultOnce sync.Once
	defaultLex  Lexicon
)

// DefaultLexicon returns the built-in word list extended with the system
// dictionary when one is installed. It is loaded once.
func DefaultLexicon() Lexicon {
	defaultOnce.Do(func() {
		defaultLex = NewLexicon(strings.Fields(fallbackWords))
		for _, p := range dictPaths {
			if len(defaultLex) >= maxLexiconSize {
				break
			}
			defaultLex.loadFile(p)
		}
	})
	return defaultLex
}

func NewLexicon(words []string) Lexicon {
	l := make(Lexicon, len(words))
	for _, w := range words {
		l[strings.ToLower(w)] = struct{}{}
	}
	return l
}

var alphaRE = regexp.MustCompile(`^[a-z]+$`)

func (l Lexicon) loadFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() && len(l) < maxLexiconSize {
		w := strings.ToLower(strings.TrimSpace(sc.Text()))
		if alphaRE.MatchString(w) {
			l[w] = struct{}{}
		}
	}
}

func splitMergedWords(s string, lex Lexicon) string {
	return longWordRE.ReplaceAllStringFunc(s, func(word string) string {
		if len(word) > 30 || lex.Has(word) {
			return word
		}
		if parts := findSplit(word, lex, 0); parts != nil {
			return strings.Join(parts, " ")
		}
		return word
	})
}

// findSplit breaks word into lexicon entries of at least three letters,
// preferring the longest left part.
func findSplit(word string, lex Lexicon, depth int) []string {
	lower := strings.ToLower(word)
	if depth > 3 || len(lower) < 6 || lex.Has(lower) {
		return nil
	}
	const minPart = 3
	for i := len(lower) - minPart; i >= minPart; i-- {
		if !lex.Has(lower[:i]) {
			continue
		}
		right := word[i:]
		if lex.Has(right) {
			return []string{word[:i], right}
		}
		if deeper := findSplit(right, lex, depth+1); deeper != nil {
			return append([]string{word[:i]}, deeper...)
		}
	}
	return nil
}
