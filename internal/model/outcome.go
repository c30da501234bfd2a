package model

import (
	"sync"
	"time"
)

// OutcomeStatus is the result variant for a single item in a pass.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome records what happened to one candidate during a pass.
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	ArticleID string        `json:"article_id,omitempty"`
	URL       string        `json:"url,omitempty"`
	Title     string        `json:"title,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	State     State         `json:"state,omitempty"`
}

// Succeeded builds a success outcome for a.
func Succeeded(a Article, state State) Outcome {
	return Outcome{Status: OutcomeSuccess, ArticleID: a.ID, URL: a.URL, Title: a.Title, State: state}
}

// Skipped builds a skipped outcome for a.
func Skipped(a Article, reason string) Outcome {
	return Outcome{Status: OutcomeSkipped, ArticleID: a.ID, URL: a.URL, Title: a.Title, Reason: reason, State: StateOf(a)}
}

// Failed builds a failed outcome for a.
func Failed(a Article, state State, err error) Outcome {
	o := Outcome{Status: OutcomeFailed, ArticleID: a.ID, URL: a.URL, Title: a.Title, State: state}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

// PassReport collects the outcomes of one pass. Add is safe for concurrent use.
type PassReport struct {
	Pass       string        `json:"pass"`
	Candidates int           `json:"candidates"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Outcomes   []Outcome     `json:"outcomes"`

	mu sync.Mutex
}

// NewPassReport starts a report for the named pass.
func NewPassReport(pass string, candidates int) *PassReport {
	return &PassReport{Pass: pass, Candidates: candidates, StartedAt: time.Now().UTC()}
}

// Add appends an outcome.
func (r *PassReport) Add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes = append(r.Outcomes, o)
}

// Finish stamps the pass duration.
func (r *PassReport) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Duration = time.Since(r.StartedAt)
}

// Count returns the number of outcomes with the given status.
func (r *PassReport) Count(status OutcomeStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Succeeded is the number of units actually completed.
func (r *PassReport) Succeeded() int { return r.Count(OutcomeSuccess) }

// Failed is the number of failed units.
func (r *PassReport) Failed() int { return r.Count(OutcomeFailed) }

// Skipped is the number of skipped units.
func (r *PassReport) Skipped() int { return r.Count(OutcomeSkipped) }
