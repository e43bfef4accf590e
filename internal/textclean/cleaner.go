// Package textclean applies rule-based cleanup to extracted book text
// before and after the language-model stages.
package textclean

import (
	"regexp"
	"strings"
)

// Options toggles individual cleanup rules. CorrectSpelling and
// AddPunctuation are only honoured by the language-model stage.
type Options struct {
	ReplaceSmartQuotes bool `json:"replaceSmartQuotes" yaml:"replace_smart_quotes"`
	FixOCRErrors       bool `json:"fixOcrErrors" yaml:"fix_ocr_errors"`
	CorrectSpelling    bool `json:"correctSpelling" yaml:"correct_spelling"`
	RemoveURLs         bool `json:"removeUrls" yaml:"remove_urls"`
	RemoveFootnotes    bool `json:"removeFootnotes" yaml:"remove_footnotes"`
	AddPunctuation     bool `json:"addPunctuation" yaml:"add_punctuation"`
	FixHyphenation     bool `json:"fixHyphenation" yaml:"fix_hyphenation"`
}

// DefaultOptions enables everything except spelling correction and
// hyphenation repair.
func DefaultOptions() Options {
	return Options{
		ReplaceSmartQuotes: true,
		FixOCRErrors:       true,
		RemoveURLs:         true,
		RemoveFootnotes:    true,
		AddPunctuation:     true,
	}
}

// Phase selects which rules run. Footnote removal only runs before the
// model stages so that bracketed speaker labels survive the post pass.
type Phase int

const (
	PhasePre Phase = iota
	PhasePost
)

// Step names reported in Result.Applied.
const (
	StepSmartQuotes = "replaceSmartQuotes"
	StepURLs        = "removeUrls"
	StepFootnotes   = "removeFootnotes"
	StepHyphenation = "fixHyphenation"
	StepCamelCase   = "splitCamelCase"
	StepMergedWords = "splitMergedWords"
)

type Result struct {
	Text    string
	Applied []string
}

var (
	smartReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`, "‹", `"`, "›", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
		"–", "-", "—", "-", "−", "-", "‐", "-", "‑", "-", "‒", "-",
		"…", "...", "•", "-", "·", "-",
		"\u00a0", " ",
	)

	urlRE        = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>()]+`)
	bracketRefRE = regexp.MustCompile(`\[\s*(?:[0-9]+|[ivxlcdmIVXLCDM]+)(?:[\s,.;:-]*(?:[0-9]+|[ivxlcdmIVXLCDM]+))*\s*\]`)
	parenRefRE   = regexp.MustCompile(`\(\s*(?:[0-9]+|[ivxlcdmIVXLCDM]+)(?:[\s,.;:-]*(?:[0-9]+|[ivxlcdmIVXLCDM]+))*\s*\)`)
	hyphenBreak  = regexp.MustCompile(`([A-Za-z])-[ \t]*\n\s*([A-Za-z])`)
	softBreak    = regexp.MustCompile(`([A-Za-z])\n([A-Za-z])`)
	camelCaseRE  = regexp.MustCompile(`([a-z])([A-Z][a-z]+)`)
	longWordRE   = regexp.MustCompile(`\b[a-zA-Z]{6,}\b`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
	spaceNewline = regexp.MustCompile(`[ \t]+\n`)
	newlineSpace = regexp.MustCompile(`\n[ \t]+`)
	manyNewlines = regexp.MustCompile(`\n{3,}`)
)

// Apply runs the enabled rules and always normalizes whitespace.
func Apply(text string, opts Options, phase Phase) Result {
	var applied []string
	step := func(name string, enabled bool, fn func(string) string) {
		if !enabled {
			return
		}
		if out := fn(text); out != text {
			applied = append(applied, name)
			text = out
		}
	}

	step(StepSmartQuotes, opts.ReplaceSmartQuotes, smartReplacer.Replace)
	step(StepURLs, opts.RemoveURLs, func(s string) string { return urlRE.ReplaceAllString(s, " ") })
	step(StepFootnotes, opts.RemoveFootnotes && phase == PhasePre, removeReferences)
	step(StepHyphenation, opts.FixHyphenation, fixHyphenation)
	step(StepCamelCase, opts.FixOCRErrors, func(s string) string { return camelCaseRE.ReplaceAllString(s, "$1 $2") })
	step(StepMergedWords, opts.FixOCRErrors, func(s string) string { return splitMergedWords(s, DefaultLexicon()) })

	return Result{Text: NormalizeSpacing(text), Applied: applied}
}

func removeReferences(s string) string {
	s = bracketRefRE.ReplaceAllString(s, " ")
	return parenRefRE.ReplaceAllString(s, " ")
}

// fixHyphenation joins words broken across lines. RE2 has no lookbehind,
// so matches that share a letter need another pass.
func fixHyphenation(s string) string {
	s = replaceUntilStable(hyphenBreak, s, "$1$2")
	return replaceUntilStable(softBreak, s, "$1 $2")
}

func replaceUntilStable(re *regexp.Regexp, s, repl string) string {
	for i := 0; i < 8; i++ {
		out := re.ReplaceAllString(s, repl)
		if out == s {
			break
		}
		s = out
	}
	return s
}

// NormalizeSpacing trims line edges, collapses runs of blanks and limits
// blank lines to one.
func NormalizeSpacing(s string) string {
	s = spaceNewline.ReplaceAllString(s, "\n")
	s = newlineSpace.ReplaceAllString(s, "\n")
	s = multiSpace.ReplaceAllString(s, " ")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
