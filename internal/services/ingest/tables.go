package ingest

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

var tableConverter = newTableConverter()

func newTableConverter() *md.Converter {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.Table())
	return conv
}

// ConvertTableHTML renders analyzer table HTML as GitHub-flavored markdown.
// Returns the raw HTML unchanged when conversion fails so downstream
// summarization still has something to work with.
func ConvertTableHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	out, err := tableConverter.ConvertString(html)
	if err != nil {
		return html
	}
	return strings.TrimSpace(out)
}
