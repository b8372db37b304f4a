package infer

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ElementAtPath resolves a click path, a list of element-child indices from
// the document element down, against a parsed document. The surface's click
// capture script records the same indices, so a path taken in the live page
// lands on the matching node in the snapshot. Returns false when the path
// runs off the tree (the page mutated between click and snapshot).
func ElementAtPath(doc *goquery.Document, path []int) (*html.Node, bool) {
	root := documentElement(doc)
	if root == nil {
		return nil, false
	}

	node := root
	for _, idx := range path {
		if idx < 0 {
			return nil, false
		}
		child := firstElementChild(node)
		for i := 0; i < idx && child != nil; i++ {
			child = nextElementSibling(child)
		}
		if child == nil {
			return nil, false
		}
		node = child
	}
	return node, true
}

func documentElement(doc *goquery.Document) *html.Node {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil
	}
	for c := doc.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func firstElementChild(node *html.Node) *html.Node {
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func nextElementSibling(node *html.Node) *html.Node {
	for c := node.NextSibling; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}
