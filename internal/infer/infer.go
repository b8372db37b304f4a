// Package infer converts a single clicked element into a structural locator
// for a page's repeating content items, without prior knowledge of the page.
//
// The engine is pure: it walks parsed HTML, never talks to a rendering
// surface, and reports "no viable locator" as a normal negative result
// rather than an error. Callers are expected to treat that result as
// recoverable and invite the user to click a different part of the item.
package infer

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

const (
	// maxAncestorDepth bounds the upward walk from the click target.
	maxAncestorDepth = 15

	// Locators are accepted only when they match between minLocatorMatches
	// and maxLocatorMatches elements document-wide. Below the floor the
	// element is unique (not a repeating item); above the ceiling the
	// selector is too generic to be a content list.
	minLocatorMatches = 2
	maxLocatorMatches = 500
)

// identifyingAttrs are semantic attributes whose values tend to survive page
// redesigns, tried in priority order.
var identifyingAttrs = []string{
	"data-testid",
	"data-test-id",
	"data-test",
	"data-qa",
	"data-cy",
	"data-component",
	"role",
	"itemprop",
}

// variantClassPrefixes mark state-scoped utility classes that change with
// pointer or breakpoint state and make locators flap.
var variantClassPrefixes = []string{
	"hover-",
	"focus-",
	"active-",
	"peer-",
	"group-",
}

// Infer walks ancestors of the clicked leaf element, at each level trying an
// attribute match, then a stable-class match, then a structural fallback,
// and returns the first locator whose document-wide match count lands in
// [2,500]. The second return is false when no ancestor within the depth
// limit yields a viable locator.
func Infer(doc *goquery.Document, leaf *html.Node) (domain.Locator, bool) {
	if doc == nil || leaf == nil {
		return domain.Locator{}, false
	}

	node := leaf
	for depth := 0; depth <= maxAncestorDepth && node != nil; depth++ {
		if node.Type != html.ElementNode {
			node = node.Parent
			continue
		}

		sibs := sameTagSiblings(node)
		if len(sibs) >= minLocatorMatches {
			if loc, ok := attributeCandidate(doc, node, sibs); ok {
				return loc, true
			}
			if loc, ok := classCandidate(doc, node, sibs); ok {
				return loc, true
			}
			if loc, ok := structuralCandidate(doc, node); ok {
				return loc, true
			}
		}

		node = node.Parent
	}

	return domain.Locator{}, false
}

// sameTagSiblings returns the element children of node's parent sharing
// node's tag, node itself included.
func sameTagSiblings(node *html.Node) []*html.Node {
	if node == nil || node.Parent == nil {
		return nil
	}
	var sibs []*html.Node
	for c := node.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == node.Data {
			sibs = append(sibs, c)
		}
	}
	return sibs
}

// attributeCandidate builds tag[attr="value"] from the first identifying
// attribute whose value is shared by at least two same-tag siblings.
func attributeCandidate(doc *goquery.Document, node *html.Node, sibs []*html.Node) (domain.Locator, bool) {
	for _, attr := range identifyingAttrs {
		val := attrValue(node, attr)
		if val == "" {
			continue
		}

		shared := 0
		for _, s := range sibs {
			if attrValue(s, attr) == val {
				shared++
			}
		}
		if shared < minLocatorMatches {
			continue
		}

		sel := fmt.Sprintf(`%s[%s="%s"]`, node.Data, attr, escapeAttrValue(val))
		if n := doc.Find(sel).Length(); n >= minLocatorMatches && n <= maxLocatorMatches {
			return domain.Locator{Selector: sel, MatchCount: n}, true
		}
	}
	return domain.Locator{}, false
}

// classCandidate builds compound and single-class selectors from the node's
// stable classes shared by at least half of its same-tag siblings. Among
// valid candidates the smallest match count wins, except that a node
// containing both an image and a link (a strong card signal) accepts the
// first valid candidate immediately. A candidate matching more than the
// ceiling is retried scoped under a simple selector for the parent before
// being discarded.
func classCandidate(doc *goquery.Document, node *html.Node, sibs []*html.Node) (domain.Locator, bool) {
	stable := stableClasses(node)
	if len(stable) == 0 {
		return domain.Locator{}, false
	}

	threshold := (len(sibs) + 1) / 2
	if threshold < minLocatorMatches {
		threshold = minLocatorMatches
	}

	var kept []string
	for _, class := range stable {
		n := 0
		for _, s := range sibs {
			if hasClass(s, class) {
				n++
			}
		}
		if n >= threshold {
			kept = append(kept, class)
		}
	}
	if len(kept) == 0 {
		return domain.Locator{}, false
	}

	selectors := []string{node.Data + "." + strings.Join(kept, ".")}
	if len(kept) > 1 {
		for _, class := range kept {
			selectors = append(selectors, node.Data+"."+class)
		}
	}

	cardSignal := containsImageAndLink(node)

	var best domain.Locator
	found := false
	for _, sel := range selectors {
		cand, ok := acceptOrScope(doc, node, sel)
		if !ok {
			continue
		}
		if cardSignal {
			return cand, true
		}
		if !found || cand.MatchCount < best.MatchCount {
			best = cand
			found = true
		}
	}
	return best, found
}

// acceptOrScope counts sel document-wide; counts above the ceiling get one
// retry scoped under the parent's simple selector.
func acceptOrScope(doc *goquery.Document, node *html.Node, sel string) (domain.Locator, bool) {
	n := doc.Find(sel).Length()
	if n >= minLocatorMatches && n <= maxLocatorMatches {
		return domain.Locator{Selector: sel, MatchCount: n}, true
	}
	if n <= maxLocatorMatches {
		return domain.Locator{}, false
	}

	parent := simpleSelector(node.Parent)
	if parent == "" {
		return domain.Locator{}, false
	}
	scoped := parent + " > " + sel
	if m := doc.Find(scoped).Length(); m >= minLocatorMatches && m <= maxLocatorMatches {
		return domain.Locator{Selector: scoped, MatchCount: m}, true
	}
	return domain.Locator{}, false
}

// structuralCandidate falls back to parent-selector > tag.
func structuralCandidate(doc *goquery.Document, node *html.Node) (domain.Locator, bool) {
	parent := simpleSelector(node.Parent)
	if parent == "" {
		return domain.Locator{}, false
	}

	sel := parent + " > " + node.Data
	if n := doc.Find(sel).Length(); n >= minLocatorMatches && n <= maxLocatorMatches {
		return domain.Locator{Selector: sel, MatchCount: n}, true
	}
	return domain.Locator{}, false
}

// simpleSelector renders a node as tag#id, tag.firstStableClass, or the bare
// tag, preferring the most specific stable form.
func simpleSelector(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode {
		return ""
	}
	if id := attrValue(node, "id"); id != "" && isCSSIdent(id) {
		return node.Data + "#" + id
	}
	if classes := stableClasses(node); len(classes) > 0 {
		return node.Data + "." + classes[0]
	}
	return node.Data
}

// stableClasses returns the node's classes minus state/responsive variants
// and anything that cannot appear in a selector without escaping.
func stableClasses(node *html.Node) []string {
	raw := attrValue(node, "class")
	if raw == "" {
		return nil
	}

	var out []string
	for _, class := range strings.Fields(raw) {
		if strings.Contains(class, ":") || !isCSSIdent(class) {
			continue
		}
		if hasVariantPrefix(class) {
			continue
		}
		out = append(out, class)
	}
	return out
}

func hasVariantPrefix(class string) bool {
	for _, p := range variantClassPrefixes {
		if strings.HasPrefix(class, p) {
			return true
		}
	}
	return false
}

// containsImageAndLink reports whether the node's subtree holds both an img
// and an anchor.
func containsImageAndLink(node *html.Node) bool {
	var hasImg, hasLink bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil || (hasImg && hasLink) {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				hasImg = true
			case "a":
				hasLink = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return hasImg && hasLink
}

func attrValue(node *html.Node, name string) string {
	if node == nil {
		return ""
	}
	for _, a := range node.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasClass(node *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(node, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// isCSSIdent accepts identifiers usable in a selector without escaping:
// letters, digits, hyphen, underscore, not starting with a digit or a
// hyphen-digit pair.
func isCSSIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
			if i == 1 && s[0] == '-' {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func escapeAttrValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}
