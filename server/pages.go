package server

import (
	"encoding/base64"
	"html"
	"strings"
)

const (
	notFoundPage   = "<html><body><h1>404: Page Not Found</h1></body></html>"
	badRequestPage = "<html><body><h1>400: Bad Request</h1></body></html>"
)

// textPage embeds content verbatim; it is not HTML-escaped.
func textPage(name string, content []byte) []byte {
	var b strings.Builder
	b.Grow(len(content) + len(name) + 64)
	b.WriteString("<html><body><h1>")
	b.WriteString(html.EscapeString(name))
	b.WriteString("</h1><pre>")
	b.Write(content)
	b.WriteString("</pre></body></html>")
	return []byte(b.String())
}

func imagePage(name, contentType string, content []byte) []byte {
	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(content)) + 2*len(name) + 128)
	b.WriteString("<html><body><h1>")
	b.WriteString(html.EscapeString(name))
	b.WriteString("</h1><img src=\"data:")
	b.WriteString(contentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(content))
	b.WriteString("\" alt=\"")
	b.WriteString(html.EscapeString(name))
	b.WriteString("\"></body></html>")
	return []byte(b.String())
}
