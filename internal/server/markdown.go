package server

import (
	"regexp"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags | html.HrefTargetBlank
	policy     = bluemonday.UGCPolicy()

	markdownPattern = regexp.MustCompile("(?m)(\\*\\*[^*]+\\*\\*|`[^`]+`|^#{1,6}\\s|^\\s*[-*]\\s|^\\s*\\d+\\.\\s|\\[[^\\]]+\\]\\([^)]+\\))")
)

// hasMarkdown reports whether text uses any markdown syntax worth rendering.
func hasMarkdown(text string) bool {
	return markdownPattern.MatchString(text)
}

// renderMarkdown converts text to sanitised HTML.
func renderMarkdown(text string) string {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	unsafeHTML := markdown.Render(p.Parse([]byte(text)), renderer)
	return string(policy.SanitizeBytes(unsafeHTML))
}
