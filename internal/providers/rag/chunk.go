package rag

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tk     *tiktoken.Tiktoken
	tkOnce sync.Once
)

// PassageTokenBudget caps one embedded passage. bge-m3 accepts far more,
// but content beyond the first few hundred tokens stops changing the
// pooled vector meaningfully.
const PassageTokenBudget = 512

func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		var err error
		tk, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			panic("failed to load tiktoken: " + err.Error())
		}
	})
	return tk
}

// TruncateToBudget clips text to at most maxTokens tokens. Stored items
// are embedded from their leading chunk only.
func TruncateToBudget(text string, maxTokens int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	enc := getTokenizer()
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return strings.TrimSpace(enc.Decode(tokens[:maxTokens]))
}

func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(getTokenizer().Encode(text, nil, nil))
}
