// Package extract holds the small parsing helpers the site adapters share:
// CSS and XPath field extraction, JSON-LD walking, and sitemap parsing.
// Adapters keep their selectors; extract keeps the mechanics.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace and trims. Every scraped field goes
// through this before validation.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Text returns the cleaned text of the first element matching the selector,
// or "" when nothing matches.
func Text(sel *goquery.Selection, selector string) string {
	return CleanText(sel.Find(selector).First().Text())
}

// Attr returns the cleaned attribute of the first element matching the
// selector, or "" when nothing matches.
func Attr(sel *goquery.Selection, selector, attr string) string {
	v, _ := sel.Find(selector).First().Attr(attr)
	return CleanText(v)
}

// Texts returns the cleaned text of every element matching the selector.
func Texts(sel *goquery.Selection, selector string) []string {
	var out []string
	sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := CleanText(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// XPathText returns the cleaned inner text of the first node matching the
// XPath expression, or "" on no match or a bad expression.
func XPathText(node *html.Node, expr string) string {
	n, err := htmlquery.Query(node, expr)
	if err != nil || n == nil {
		return ""
	}
	return CleanText(htmlquery.InnerText(n))
}

// XPathAttr returns a cleaned attribute from the first node matching the
// XPath expression.
func XPathAttr(node *html.Node, expr, attr string) string {
	n, err := htmlquery.Query(node, expr)
	if err != nil || n == nil {
		return ""
	}
	return CleanText(htmlquery.SelectAttr(n, attr))
}

// XPathNodes returns every node matching the XPath expression; nil on a bad
// expression.
func XPathNodes(node *html.Node, expr string) []*html.Node {
	nodes, err := htmlquery.QueryAll(node, expr)
	if err != nil {
		return nil
	}
	return nodes
}

// AbsoluteURL resolves href against base. Returns "" for unresolvable or
// non-http results, so adapters can skip them without a second check.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// SlugFromURL returns the last non-empty path segment of a URL, the usual
// source of stable external ids on listing sites.
func SlugFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
