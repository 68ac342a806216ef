package widget

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kjstillabower/city-weather-widget/internal/models"
	"github.com/kjstillabower/city-weather-widget/internal/observability"
	"github.com/kjstillabower/city-weather-widget/internal/suggest"
)

// Suggester produces city suggestions for a partial query.
type Suggester interface {
	Suggest(ctx context.Context, query string) ([]string, error)
}

// State is a point-in-time copy of a Widget.
type State struct {
	Query       string
	Suggestions []string
	ListboxOpen bool
	Outcome     models.Outcome
	Phase       Phase
}

// Widget holds one session's query, suggestion listbox and fetch outcome.
// The listbox and the outcome are independent: selecting a suggestion never fetches.
type Widget struct {
	fetcher   *Fetcher
	suggester Suggester
	debouncer *suggest.Debouncer

	mu          sync.Mutex
	query       string
	suggestions []string
	open        bool
	outcome     models.Outcome
	phase       Phase
	inputGen    uint64
	submitGen   uint64
}

// New creates an idle Widget.
func New(fetcher *Fetcher, suggester Suggester, debouncer *suggest.Debouncer) *Widget {
	if debouncer == nil {
		debouncer = suggest.NewDebouncer(0)
	}
	return &Widget{
		fetcher:   fetcher,
		suggester: suggester,
		debouncer: debouncer,
		outcome:   models.Idle(),
	}
}

// Input records a keystroke. After the debounce period the listbox is replaced with fresh
// suggestions, open when non-empty. Returns suggest.ErrSuperseded when newer input, a
// selection or a dismissal arrived first; the listbox is left alone in that case.
func (w *Widget) Input(ctx context.Context, query string) ([]string, error) {
	w.mu.Lock()
	w.query = query
	w.inputGen++
	gen := w.inputGen
	w.mu.Unlock()

	var names []string
	err := w.debouncer.Do(ctx, func(ctx context.Context) error {
		var err error
		names, err = w.suggester.Suggest(ctx, query)
		return err
	})
	if err != nil {
		if errors.Is(err, suggest.ErrSuperseded) {
			observability.SuggestionsSupersededTotal.Inc()
		}
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.inputGen {
		observability.SuggestionsSupersededTotal.Inc()
		return nil, suggest.ErrSuperseded
	}
	w.suggestions = names
	w.open = len(names) > 0
	return append([]string(nil), names...), nil
}

// Select writes name verbatim into the query and closes the listbox. The outcome is unchanged.
func (w *Widget) Select(name string) {
	w.debouncer.Cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputGen++
	w.query = name
	w.suggestions = nil
	w.open = false
}

// Dismiss closes the listbox and drops any pending lookup.
func (w *Widget) Dismiss() {
	w.debouncer.Cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inputGen++
	w.suggestions = nil
	w.open = false
}

// SetQuery replaces the query without looking up suggestions.
func (w *Widget) SetQuery(query string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.query = query
}

// Submit fetches weather for the current query. The previous outcome is cleared as the attempt
// starts. If another Submit begins before this one finishes, this one returns
// suggest.ErrSuperseded and leaves state to the newer attempt.
func (w *Widget) Submit(ctx context.Context) (models.Outcome, error) {
	w.mu.Lock()
	w.submitGen++
	gen := w.submitGen
	query := w.query
	w.outcome = models.Idle()
	w.phase = PhaseValidating
	if strings.TrimSpace(query) != "" {
		w.phase = PhaseFetching
	}
	w.mu.Unlock()

	out := w.fetcher.Fetch(ctx, query)

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.submitGen {
		observability.WeatherFetchesSupersededTotal.Inc()
		return out, suggest.ErrSuperseded
	}
	w.outcome = out
	w.phase = phaseFor(out)
	if out.Kind() == models.OutcomeSuccess {
		w.debouncer.Cancel()
		w.inputGen++
		w.suggestions = nil
		w.open = false
	}
	return out, nil
}

// Snapshot returns a copy of the current state.
func (w *Widget) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Query:       w.query,
		Suggestions: append([]string(nil), w.suggestions...),
		ListboxOpen: w.open,
		Outcome:     w.outcome,
		Phase:       w.phase,
	}
}
