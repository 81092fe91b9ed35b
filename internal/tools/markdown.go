package tools

import (
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Link is a citation rendered as a markdown link.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Markdown renders l as [title](url).
func (l Link) Markdown() string {
	return "[" + l.Title + "](" + l.URL + ")"
}

var md = goldmark.New()

// ExtractLinks returns the inline links and autolinks of a markdown
// document in order of appearance.
func ExtractLinks(markdown string) []Link {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	var links []Link
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			dest := string(node.Destination)
			title := strings.TrimSpace(nodeText(node, src))
			if title == "" {
				title = domainTitle(dest)
			}
			links = append(links, Link{Title: title, URL: dest})
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			dest := string(node.URL(src))
			links = append(links, Link{Title: domainTitle(dest), URL: dest})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return links
}

func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		default:
			sb.WriteString(nodeText(c, src))
		}
	}
	return sb.String()
}

// domainTitle derives a display title from a URL's host, dropping "www.".
func domainTitle(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
