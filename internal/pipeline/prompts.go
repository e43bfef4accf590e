package pipeline

import (
	"strconv"
	"strings"

	"github.com/fedutinova/narrator/internal/textclean"
)

func cleaningPrompt(text string, opts textclean.Options, custom string) string {
	var tasks []string
	if opts.ReplaceSmartQuotes {
		tasks = append(tasks, "* Replace smart quotes with standard ASCII quotes.")
	}
	if opts.FixOCRErrors {
		tasks = append(tasks, "* Fix OCR errors such as merged words or missing spaces.")
	}
	if opts.FixHyphenation {
		tasks = append(tasks, "* Repair hyphenation splits introduced by line breaks.")
	}
	if opts.CorrectSpelling {
		tasks = append(tasks, "* Correct obvious spelling mistakes and typos.")
	}
	if opts.RemoveURLs {
		tasks = append(tasks, "* Remove URLs, web links, and email addresses.")
	}
	if opts.RemoveFootnotes {
		tasks = append(tasks, "* Remove footnote markers, metadata, or bracketed references.")
	}
	if opts.AddPunctuation {
		tasks = append(tasks, "* Ensure stray headings or numbers end with appropriate punctuation.")
	}

	var b strings.Builder
	b.WriteString("You are a TTS preprocessing assistant. Clean and repair the text using ONLY the listed transformations.\n\n")
	b.WriteString("Preprocessing Steps:\n")
	b.WriteString(strings.Join(tasks, "\n"))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Preserve the original meaning and paragraph structure.\n")
	b.WriteString("- Only fix errors; do not rewrite or summarize.\n")
	b.WriteString("- Return ONLY the cleaned text with no commentary.\n")
	if custom = strings.TrimSpace(custom); custom != "" {
		b.WriteString("\nAdditional custom instructions:\n")
		b.WriteString(custom)
		b.WriteString("\n")
	}
	b.WriteString("\nText:\n")
	b.WriteString(text)
	b.WriteString("\n\nCleaned:")
	return b.String()
}

func speakerPrompt(text string, cfg SpeakerConfig, custom string, extendedExamples bool) string {
	bracket := cfg.LabelFormat == LabelBracket
	label1, label2 := "Speaker 1:", "Speaker 2:"
	instructions := "Identify unique speaking characters. Label them dynamically as Speaker 1:, Speaker 2:, etc."
	if bracket {
		label1, label2 = "[1]:", "[2]:"
		instructions = "Identify unique speaking characters. Label them dynamically using bracket format: " +
			"the first character is [1]:, the next is [2]:, etc."
	}

	narratorRule := "Omit narration; output only spoken dialogue with speaker labels."
	if cfg.IncludeNarrator {
		narratorRule = "All non-quoted narration must use the Narrator: tag; never attribute narration to speakers."
	}

	var attribution string
	switch {
	case cfg.Mode == SpeakerFormat:
		attribution = "Do not transform attribution tags. Preserve text and punctuation; only add speaker labels."
	case cfg.NarratorAttribution == AttributionVerbatim:
		attribution = "Move attribution tags into a Narrator: line immediately after the spoken line, preserving punctuation."
	case cfg.NarratorAttribution == AttributionContextual:
		attribution = "Transform attribution or action tags into concise Narrator: lines, omitting redundant verbs."
	default:
		attribution = "Remove redundant attribution tags (e.g., he said) because the speaker label replaces them."
	}

	parts := []string{
		"You are a dialogue structuring assistant for multi-speaker TTS.",
		instructions,
		narratorRule,
		"Remove quotation marks from dialogue.",
		attribution,
	}
	if cfg.SpeakerCount > 0 {
		parts = append(parts, "Use at most "+strconv.Itoa(cfg.SpeakerCount)+" distinct speaker labels.")
	}
	if name := strings.TrimSpace(cfg.NarratorCharacterName); name != "" {
		parts = append(parts, `Narrator Identity: The narrator is "`+name+`".`)
	}
	for _, m := range cfg.CharacterMapping {
		label := "Speaker " + strconv.Itoa(m.SpeakerNumber) + ":"
		if bracket {
			label = "[" + strconv.Itoa(m.SpeakerNumber) + "]:"
		}
		parts = append(parts, "Always label "+m.Name+" as "+label)
	}
	if custom = strings.TrimSpace(custom); custom != "" {
		parts = append(parts, "Additional instructions: "+custom)
	}
	if extendedExamples && cfg.Mode == SpeakerIntelligent {
		names := []string{"Alice", "Bob"}
		if len(cfg.CharacterMapping) > 0 {
			names[0] = cfg.CharacterMapping[0].Name
		}
		if len(cfg.CharacterMapping) > 1 {
			names[1] = cfg.CharacterMapping[1].Name
		}
		ex := "Examples:\n" +
			`Input: "Are you coming to the party?" ` + names[0] + " asked.\n" +
			"Output: " + label1 + " Are you coming to the party?\n" +
			`Input: "It's a beautiful day," ` + names[1] + " said, looking up.\n" +
			"Output: " + label2 + " It's a beautiful day."
		if cfg.IncludeNarrator {
			ex += "\nNarrator: They looked up at the sky."
		}
		parts = append(parts, ex)
	}
	parts = append(parts, "\nText:\n"+text+"\n\nFormatted:")
	return strings.Join(parts, "\n")
}
