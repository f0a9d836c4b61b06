package locator

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document evaluates queries against parsed HTML.
type Document struct {
	root *html.Node
}

func Parse(src string) (*Document, error) {
	root, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// MustParse is Parse for fixtures known to be well formed.
func MustParse(src string) *Document {
	d, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return d
}

// FindAll returns every node matching q in document order.
func (d *Document) FindAll(q Query) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(d.root, q.XPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", q.Name, err)
	}
	return nodes, nil
}

// First returns the first node matching q, or ErrNotFound.
func (d *Document) First(q Query) (*html.Node, error) {
	nodes, err := d.FindAll(q)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", q.Name, ErrNotFound)
	}
	return nodes[0], nil
}

// Has reports whether q matches anything.
func (d *Document) Has(q Query) bool {
	nodes, err := d.FindAll(q)
	return err == nil && len(nodes) > 0
}

// Text returns the whitespace-trimmed text of n.
func Text(n *html.Node) string {
	return strings.TrimSpace(htmlquery.InnerText(n))
}

// Attr returns the value of attribute name on n.
func Attr(n *html.Node, name string) string {
	return htmlquery.SelectAttr(n, name)
}
