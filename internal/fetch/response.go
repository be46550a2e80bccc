package fetch

import (
	"bytes"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Response is the result of one fetch.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
	Duration   time.Duration

	doc  *goquery.Document
	node *html.Node
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Document parses the body as a goquery document, lazily.
func (r *Response) Document() (*goquery.Document, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	r.doc = doc
	return doc, nil
}

// HTMLNode parses the body as an html.Node tree for XPath queries, lazily.
func (r *Response) HTMLNode() (*html.Node, error) {
	if r.node != nil {
		return r.node, nil
	}
	node, err := htmlquery.Parse(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	r.node = node
	return node, nil
}
