package core

import (
	"fmt"
	"strings"

	"insurechat.io/rag-backend/internal/vectorstore"
)

const (
	DefaultContextChunks     = 3
	DefaultContextChunkChars = 500
)

// BuildPrompt assembles the model prompt from at most maxChunks chunks, each cut to maxChars
// runes, followed by the question. Context size is bounded by characters, not tokens.
func BuildPrompt(query string, chunks []vectorstore.Chunk, maxChunks, maxChars int) string {
	if maxChunks <= 0 {
		maxChunks = DefaultContextChunks
	}
	if maxChars <= 0 {
		maxChars = DefaultContextChunkChars
	}

	parts := make([]string, 0, maxChunks)
	for _, c := range chunks[:min(len(chunks), maxChunks)] {
		parts = append(parts, truncateRunes(c.Content, maxChars))
	}

	var sb strings.Builder
	sb.WriteString("The following are excerpts from insurance policy documents:\n\n")
	if len(parts) > 0 {
		sb.WriteString(strings.Join(parts, "\n"))
	} else {
		sb.WriteString("(no policy excerpts are available)")
	}
	fmt.Fprintf(&sb, "\n\nUser question: %s\n\n", query)
	sb.WriteString("Give an accurate and helpful answer based on the excerpts above. " +
		"Do not guess at anything the excerpts do not cover. " +
		"If they are not enough to answer, say so.")
	return sb.String()
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
