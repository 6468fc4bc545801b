package extractor

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	strippedElements = map[atom.Atom]bool{
		atom.Script:   true,
		atom.Style:    true,
		atom.Nav:      true,
		atom.Footer:   true,
		atom.Header:   true,
		atom.Noscript: true,
		atom.Template: true,
	}
	blockElements = map[atom.Atom]bool{
		atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
		atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
		atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Table: true,
		atom.Blockquote: true, atom.Pre: true, atom.Section: true, atom.Article: true,
	}
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractPage parses a web page and returns its primary content as a single
// line of text.
func extractPage(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	removeElements(doc, strippedElements)
	root := primaryContent(doc)
	if root == nil {
		root = doc
	}
	var sb strings.Builder
	collectText(root, &sb, nil)
	return normalizeWhitespace(sb.String()), nil
}

// primaryContent prefers <main>, then <article>, then a div with class "content".
func primaryContent(doc *html.Node) *html.Node {
	matchers := []func(*html.Node) bool{
		func(n *html.Node) bool { return n.DataAtom == atom.Main },
		func(n *html.Node) bool { return n.DataAtom == atom.Article },
		func(n *html.Node) bool { return n.DataAtom == atom.Div && hasClass(n, "content") },
	}
	for _, match := range matchers {
		if n := findElement(doc, match); n != nil {
			return n
		}
	}
	return nil
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, item := range strings.Fields(attr.Val) {
			if item == class {
				return true
			}
		}
	}
	return false
}

func removeElements(n *html.Node, drop map[atom.Atom]bool) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && drop[c.DataAtom] {
			n.RemoveChild(c)
			continue
		}
		removeElements(c, drop)
	}
}

// collectText appends every text node below n. When blocks is set, a newline
// is written after each block element.
func collectText(n *html.Node, sb *strings.Builder, blocks map[atom.Atom]bool) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb, blocks)
	}
	if n.Type == html.ElementNode && blocks[n.DataAtom] {
		sb.WriteString("\n")
	}
}

// normalizeWhitespace trims every line, splits on double spaces, drops empty
// fragments and joins the rest with single spaces.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				parts = append(parts, phrase)
			}
		}
	}
	return strings.Join(parts, " ")
}

// flattenHTML renders an html fragment as plain text, keeping one line per block.
func flattenHTML(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	collectText(doc, &sb, blockElements)
	lines := strings.Split(sb.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := multiNewlines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out) + "\n", nil
}
