package scrape

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// SelectorOptions tunes the selector strategy.
type SelectorOptions struct {
	// Selectors are tried in order, most specific layout first.
	Selectors []string
	// MinWords is the word count a block must exceed to qualify.
	MinWords int
	// FallbackMinWords applies to the any-paragraph scan used when no tier
	// yields text.
	FallbackMinWords int
	// EnoughBlocks stops tier scanning once more blocks than this are held.
	EnoughBlocks int
}

// SelectorStrategy extracts paragraph text using an ordered list of CSS
// selector tiers.
type SelectorStrategy struct {
	opts SelectorOptions
}

// NewSelectorStrategy creates a SelectorStrategy. Zero thresholds take the
// defaults of 6, 10 and 5.
func NewSelectorStrategy(opts SelectorOptions) *SelectorStrategy {
	if opts.MinWords <= 0 {
		opts.MinWords = 6
	}
	if opts.FallbackMinWords <= 0 {
		opts.FallbackMinWords = 10
	}
	if opts.EnoughBlocks <= 0 {
		opts.EnoughBlocks = 5
	}
	return &SelectorStrategy{opts: opts}
}

func (s *SelectorStrategy) Name() string { return "selector" }

// Extract walks the selector tiers, accumulating qualifying blocks until more
// than EnoughBlocks are held. Blocks are unique per node and returned in
// document order.
func (s *SelectorStrategy) Extract(_ context.Context, page *Page) (string, error) {
	doc, err := page.Document()
	if err != nil {
		return "", err
	}

	picked := make(map[*html.Node]string)
	for _, sel := range s.opts.Selectors {
		doc.Find(sel).Each(func(_ int, p *goquery.Selection) {
			node := p.Get(0)
			if _, ok := picked[node]; ok {
				return
			}
			if text := blockText(p); wordCount(text) > s.opts.MinWords {
				picked[node] = text
			}
		})
		if len(picked) > s.opts.EnoughBlocks {
			break
		}
	}

	if len(picked) == 0 {
		doc.Find("p").Each(func(_ int, p *goquery.Selection) {
			if text := blockText(p); wordCount(text) > s.opts.FallbackMinWords {
				picked[p.Get(0)] = text
			}
		})
	}
	if len(picked) == 0 {
		return "", nil
	}

	// Re-walk the document so output follows source order regardless of
	// which tier matched each block.
	blocks := make([]string, 0, len(picked))
	doc.Find("*").Each(func(_ int, n *goquery.Selection) {
		if text, ok := picked[n.Get(0)]; ok {
			blocks = append(blocks, text)
		}
	})
	return strings.Join(blocks, "\n"), nil
}

// blockText returns the node's visible text, NFC-normalised with whitespace
// collapsed.
func blockText(s *goquery.Selection) string {
	return norm.NFC.String(strings.Join(strings.Fields(s.Text()), " "))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
