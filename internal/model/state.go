package model

import "github.com/rotisserie/eris"

// State is the lifecycle position of an article. The store persists flags;
// State is derived from them.
type State string

const (
	StateDiscovered       State = "discovered"
	StateTextExtracted    State = "text_extracted"
	StateExtractionFailed State = "extraction_failed"
	StateEnriched         State = "enriched"
	StateEnrichmentFailed State = "enrichment_failed"
)

var transitions = map[State][]State{
	StateDiscovered:       {StateTextExtracted, StateExtractionFailed, StateDiscovered},
	StateExtractionFailed: {StateTextExtracted, StateExtractionFailed, StateDiscovered},
	StateTextExtracted:    {StateEnriched, StateEnrichmentFailed, StateDiscovered},
	StateEnrichmentFailed: {StateEnriched, StateEnrichmentFailed, StateDiscovered},
	StateEnriched:         {StateDiscovered, StateTextExtracted},
}

// CanTransition reports whether an article may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrIllegalTransition is returned when an article is asked to move to a
// state its current one does not lead to.
var ErrIllegalTransition = eris.New("model: illegal state transition")

// CheckTransition returns ErrIllegalTransition when a may not move to the
// target state.
func CheckTransition(a Article, to State) error {
	if from := StateOf(a); !CanTransition(from, to) {
		return eris.Wrapf(ErrIllegalTransition, "article %s: %s -> %s", a.ID, from, to)
	}
	return nil
}

// StateOf derives the lifecycle state from persisted flags. EnrichmentFailed
// is never persisted: a failed enrichment leaves the record untouched, so it
// reads back as TextExtracted and is retried on the next pass.
func StateOf(a Article) State {
	switch {
	case a.IsProcessed():
		return StateEnriched
	case a.ArticleText != "":
		return StateTextExtracted
	case a.ScrapeStatus == ScrapeStatusFailed:
		return StateExtractionFailed
	default:
		return StateDiscovered
	}
}
