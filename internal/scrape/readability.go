package scrape

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ReadabilityStrategy extracts the main content block using the Readability
// heuristics. It is meant as the last strategy in a chain, for layouts the
// selector tiers do not know.
type ReadabilityStrategy struct{}

func (ReadabilityStrategy) Name() string { return "readability" }

// Extract returns the article's text content, one line per non-empty line.
func (ReadabilityStrategy) Extract(_ context.Context, page *Page) (string, error) {
	u, err := url.Parse(page.URL)
	if err != nil {
		return "", eris.Wrapf(err, "readability: parse url %s", page.URL)
	}

	art, err := readability.FromReader(bytes.NewReader(page.Body), u)
	if err != nil {
		return "", eris.Wrapf(err, "readability: parse %s", page.URL)
	}

	var lines []string
	for _, line := range strings.Split(art.TextContent, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return norm.NFC.String(strings.Join(lines, "\n")), nil
}
