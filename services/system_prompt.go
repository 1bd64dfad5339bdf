package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"google.golang.org/genai"
)

// thinkEnd closes the reasoning segment some models emit before the answer.
const thinkEnd = "</think>"

// GetSystemPrompt defines the role of the model for backends that accept a
// separate system instruction.
func GetSystemPrompt() *genai.Content {
	prompt := `You compare pages of PDF documents for a plagiarism and similarity checker.

You are given the text of a page from a submitted document, the text of a page from a reference corpus, and the similarity score the retrieval system computed for them. Quote the passages that carry the same information or main idea, pair each one with its counterpart, and explain briefly why they are similar. Do not invent text that is not on either page. If the pages share little, say so.`

	contents := genai.Text(prompt)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}

// ExplanationPrompt carries everything the explanation prompt mentions.
type ExplanationPrompt struct {
	QueryFile   string
	QueryPage   int
	QueryText   string
	MatchedFile string
	MatchedPage int
	MatchedText string
	Similarity  float64
}

// String renders the prompt sent to the text generator.
func (p ExplanationPrompt) String() string {
	return fmt.Sprintf(`
You are analyzing two pieces of text from different PDF pages.
Compare the following two PDF page texts and justify why their similarity score is %.2f%%:

Query file: %s, Page %d
Matched file: %s, Page %d

---
Query Page Text:
%s

---
Matched Page Text:
%s

Tasks:
1. Highlight sentences or paragraphs from the query page that have similar information or main idea.
2. Show the corresponding sentences or paragraphs from the matched PDF.
3. Explain briefly why these parts are considered similar in clear, natural language.
`, p.Similarity, p.QueryFile, p.QueryPage, p.MatchedFile, p.MatchedPage, p.QueryText, p.MatchedText)
}

// clipText keeps the first chunk of text when it exceeds maxChars runes,
// cutting at paragraph, line or word boundaries where possible.
func clipText(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(maxChars),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(text)
	if err == nil && len(chunks) > 0 && utf8.RuneCountInString(chunks[0]) <= maxChars {
		return chunks[0]
	}
	return string([]rune(text)[:maxChars])
}

// extractAnswer keeps what follows the first </think>; later markers are
// part of the answer.
func extractAnswer(generated string) string {
	if i := strings.Index(generated, thinkEnd); i >= 0 {
		return strings.TrimSpace(generated[i+len(thinkEnd):])
	}
	return strings.TrimSpace(generated)
}
