package loader

import (
	"regexp"
	"strings"
)

var (
	markdownImage   = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	markdownLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	markdownComment = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// CleanMarkdown keeps the readable text of a markdown document. Images are
// replaced by their alt text, links by their label and comments are removed.
// Headings, lists and tables stay as they are so chunking can use them.
func CleanMarkdown(content string) string {
	content = markdownComment.ReplaceAllString(content, "")
	content = markdownImage.ReplaceAllStringFunc(content, func(m string) string {
		alt := strings.TrimSpace(markdownImage.FindStringSubmatch(m)[1])
		if alt == "" {
			return ""
		}
		return "<image>" + alt + "</image>"
	})
	content = markdownLink.ReplaceAllString(content, "$1")
	return strings.TrimSpace(blankLines.ReplaceAllString(content, "\n\n"))
}
