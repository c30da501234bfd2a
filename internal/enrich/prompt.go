package enrich

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newsstream/internal/model"
)

// systemPrompt is built from the category and sentiment sets the reply parser
// accepts, so the two cannot drift apart.
var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a news analysis assistant.\n\n")
	b.WriteString("TASKS:\n")
	b.WriteString("1. Write a concise summary (max 5 lines).\n")
	b.WriteString("2. Classify the article into ONE category:\n")
	for _, c := range model.Categories {
		b.WriteString("   - " + string(c) + "\n")
	}
	b.WriteString("3. Identify sentiment:\n")
	for _, s := range model.Sentiments {
		b.WriteString("   - " + string(s) + "\n")
	}
	b.WriteString("\nRULES:\n")
	b.WriteString("- Respond ONLY with a JSON object.\n")
	b.WriteString("- No explanations.\n")
	b.WriteString("- Use exactly these keys:\n")
	b.WriteString("  summary, predicted_category, sentiment")
	return b.String()
}

// prefill opens the assistant turn so the reply continues a JSON object.
const prefill = "{"

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func userMessage(text string) string {
	return "ARTICLE:\n" + text
}

// rawReply mirrors the reply object. Pointers distinguish missing keys from
// empty values.
type rawReply struct {
	Summary           *string `json:"summary"`
	PredictedCategory *string `json:"predicted_category"`
	Sentiment         *string `json:"sentiment"`
}

// parseReply decodes the model reply into a validated Enrichment. Any
// deviation from the three-key object is an ErrSchema.
func parseReply(text string) (model.Enrichment, error) {
	cleaned := cleanJSON(text)

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()

	var r rawReply
	if err := dec.Decode(&r); err != nil {
		return model.Enrichment{}, eris.Wrapf(ErrSchema, "decode reply: %v", err)
	}
	if dec.More() {
		return model.Enrichment{}, eris.Wrap(ErrSchema, "trailing data after reply object")
	}

	var missing []string
	if r.Summary == nil {
		missing = append(missing, "summary")
	}
	if r.PredictedCategory == nil {
		missing = append(missing, "predicted_category")
	}
	if r.Sentiment == nil {
		missing = append(missing, "sentiment")
	}
	if len(missing) > 0 {
		return model.Enrichment{}, eris.Wrapf(ErrSchema, "missing keys %s", strings.Join(missing, ", "))
	}

	cat, err := model.ParseCategory(*r.PredictedCategory)
	if err != nil {
		return model.Enrichment{}, eris.Wrap(ErrSchema, err.Error())
	}
	sent, err := model.ParseSentiment(*r.Sentiment)
	if err != nil {
		return model.Enrichment{}, eris.Wrap(ErrSchema, err.Error())
	}

	e := model.Enrichment{
		Summary:   strings.TrimSpace(*r.Summary),
		Category:  cat,
		Sentiment: sent,
	}
	if err := e.Validate(); err != nil {
		return model.Enrichment{}, eris.Wrap(ErrSchema, err.Error())
	}
	return e, nil
}

// cleanJSON extracts a JSON object from text that may carry markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
