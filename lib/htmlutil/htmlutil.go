package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node under node, without the
// separator-injection goquery's Text() applies.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CellText extracts a table cell's text cleaned for tabular use:
// non-printable characters (including the non-breaking spaces
// FineReport pads cells with) removed, inner whitespace collapsed,
// ends trimmed.
func CellText(sel *goquery.Selection) string {
	var texts []string
	for _, n := range sel.Nodes {
		texts = append(texts, GetText(n))
	}
	text := removeNonPrintable(strings.Join(texts, " "))
	text = innerWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
