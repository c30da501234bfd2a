package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ScrapeStatusFailed marks an article whose page yielded no usable text.
const ScrapeStatusFailed = "failed"

// Article is one document per distinct source URL.
type Article struct {
	ID                string    `json:"id" bson:"_id"`
	Title             string    `json:"title" bson:"title"`
	URL               string    `json:"url" bson:"url"`
	FeedCategory      string    `json:"rss_category" bson:"rss_category"`
	PublishedAt       string    `json:"published_at" bson:"published_at"`
	ArticleText       string    `json:"article_text" bson:"article_text"`
	ScrapeStatus      string    `json:"scrape_status,omitempty" bson:"scrape_status,omitempty"`
	Processed         *bool     `json:"processed,omitempty" bson:"processed,omitempty"` // nil until text is extracted
	Summary           string    `json:"summary,omitempty" bson:"summary,omitempty"`
	PredictedCategory Category  `json:"predicted_category,omitempty" bson:"predicted_category,omitempty"`
	Sentiment         Sentiment `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" bson:"updated_at"`
}

// IsProcessed reports whether enrichment has completed for the article.
func (a *Article) IsProcessed() bool {
	return a.Processed != nil && *a.Processed
}

// Bool returns a pointer to b, for the tri-state Processed flag.
func Bool(b bool) *bool {
	return &b
}

// Category is the model-predicted article category.
type Category string

const (
	CategoryPolitical     Category = "Political"
	CategoryAuthorOpinion Category = "Author Opinion"
	CategoryThreatful     Category = "Threatful"
	CategoryEntertainment Category = "Entertainment"
	CategoryUnknown       Category = "Unknown"
)

// Categories lists every category the model is asked to choose from.
var Categories = []Category{
	CategoryPolitical,
	CategoryAuthorOpinion,
	CategoryThreatful,
	CategoryEntertainment,
}

var knownCategories = []Category{
	CategoryPolitical,
	CategoryAuthorOpinion,
	CategoryThreatful,
	CategoryEntertainment,
	CategoryUnknown,
}

// ParseCategory matches s case-insensitively against the known categories.
// Unknown is accepted even though the prompt never offers it.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range knownCategories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", eris.Errorf("model: invalid category %q", s)
}

// DisplayCategory returns the label used in aggregate statistics. Unknown is
// presented as Author Opinion.
func DisplayCategory(c Category) string {
	if c == CategoryUnknown {
		return string(CategoryAuthorOpinion)
	}
	return string(c)
}

// Sentiment is the model-assigned article tone.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

// Sentiments lists every valid sentiment.
var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

// ParseSentiment matches s case-insensitively against the known sentiments.
func ParseSentiment(s string) (Sentiment, error) {
	s = strings.TrimSpace(s)
	for _, v := range Sentiments {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	return "", eris.Errorf("model: invalid sentiment %q", s)
}

// Enrichment is the structured result written back when enrichment succeeds.
type Enrichment struct {
	Summary   string    `json:"summary"`
	Category  Category  `json:"predicted_category"`
	Sentiment Sentiment `json:"sentiment"`
}

// Validate checks that the enrichment can be persisted with processed=true.
func (e Enrichment) Validate() error {
	if strings.TrimSpace(e.Summary) == "" {
		return eris.New("model: enrichment summary is empty")
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return err
	}
	if _, err := ParseSentiment(string(e.Sentiment)); err != nil {
		return err
	}
	return nil
}

// CountBucket is one group of an aggregate breakdown. The `_id` key is kept
// for compatibility with the dashboard that consumes it.
type CountBucket struct {
	Key   string `json:"_id" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// ArticleDigest is the projection returned by the latest-articles query.
type ArticleDigest struct {
	Title             string    `json:"title" bson:"title"`
	Summary           string    `json:"summary" bson:"summary"`
	PredictedCategory Category  `json:"predicted_category" bson:"predicted_category"`
	Sentiment         Sentiment `json:"sentiment" bson:"sentiment"`
}
