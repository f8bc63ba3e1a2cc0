// Package markdown renders the service's markdown pages (the index page) to HTML.
package markdown

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Page is a rendered markdown document.
type Page struct {
	Title string
	Body  []byte // HTML fragment
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Render converts a markdown document to HTML. The first level-one heading
// becomes the page title.
func Render(src []byte) (Page, error) {
	root := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, src, root); err != nil {
		return Page{}, fmt.Errorf("render markdown: %w", err)
	}
	return Page{Title: firstHeading(root, src), Body: buf.Bytes()}, nil
}

func firstHeading(root gmast.Node, src []byte) string {
	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok || h.Level != 1 {
			return gmast.WalkContinue, nil
		}
		title = string(plainText(h, src))
		return gmast.WalkStop, nil
	})
	return title
}

func plainText(n gmast.Node, src []byte) []byte {
	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*gmast.Text); ok {
			out = append(out, t.Segment.Value(src)...)
			continue
		}
		out = append(out, plainText(c, src)...)
	}
	return out
}

// Document wraps a rendered page in a minimal standalone HTML document.
func Document(p Page) []byte {
	title := p.Title
	if title == "" {
		title = "distbuilder"
	}
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title>\n</head>\n<body>\n")
	buf.Write(p.Body)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}
