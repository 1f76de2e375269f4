package retrieval

import (
	"regexp"
	"strings"

	"github.com/sandevgo/threadbot/pkg/conv"
)

var (
	keepRe       = regexp.MustCompile(`[^\w\s.,!?]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	alphaRe      = regexp.MustCompile(`^[a-z]+$`)
)

// CleanText prepares platform text for embedding: markup is flattened
// to plain text and anything outside word characters, whitespace and
// basic punctuation is dropped.
func CleanText(s string) string {
	plain := conv.MarkdownToPlainText(s)
	plain = keepRe.ReplaceAllString(plain, " ")
	plain = whitespaceRe.ReplaceAllString(plain, " ")
	return strings.TrimSpace(plain)
}

// LexicalTokens reduces text to the tokens worth matching in a
// full-text index: lowercase alphabetic words longer than two
// characters. Numbers and short glue words carry no signal there.
func LexicalTokens(s string) []string {
	clean := strings.ToLower(CleanText(s))
	clean = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?':
			return ' '
		}
		return r
	}, clean)

	var tokens []string
	for _, tok := range strings.Fields(clean) {
		if len(tok) <= 2 || !alphaRe.MatchString(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}
