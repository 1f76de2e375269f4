package conv

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/inbucket/html2text"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags
	txtPolicy  = bluemonday.NewPolicy()
)

func init() {
	// Keep only structural text containers; everything else is noise for
	// embedding and keyword queries.
	txtPolicy.AllowElements("p", "b", "strong", "i", "em", "code", "pre", "blockquote", "ul", "ol", "li", "br")
}

// MarkdownToPlainText flattens platform markdown into plain text suitable
// for embedding, keyword tokenisation and prompt assembly.
func MarkdownToPlainText(md string) string {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse([]byte(md)), renderer)

	sanitized := txtPolicy.SanitizeBytes(unsafeHTML)

	text, err := html2text.FromString(string(sanitized), html2text.Options{OmitLinks: true})
	if err != nil {
		// Renderer output is always parseable HTML; if html2text still
		// refuses it, the raw markdown is the safest fallback.
		return strings.TrimSpace(md)
	}
	return strings.TrimSpace(text)
}
