package scrape

import (
	"bytes"
	"context"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Page is a fetched article page. The parsed document is built lazily and
// shared between strategies.
type Page struct {
	URL  string
	Body []byte

	once sync.Once
	doc  *goquery.Document
	err  error
}

// NewPage wraps a fetched body.
func NewPage(url string, body []byte) *Page {
	return &Page{URL: url, Body: body}
}

// Document returns the parsed HTML document.
func (p *Page) Document() (*goquery.Document, error) {
	p.once.Do(func() {
		p.doc, p.err = goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
		if p.err != nil {
			p.err = eris.Wrapf(p.err, "scrape: parse html %s", p.URL)
		}
	})
	return p.doc, p.err
}

// Strategy pulls article text out of a fetched page. An empty string with a
// nil error means the strategy found nothing usable.
type Strategy interface {
	Extract(ctx context.Context, page *Page) (string, error)
	Name() string
}
