// Package engine ties the fetch, normalize, paginate and select steps into
// one pull-based object that a view layer can drive.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"meetfeed/internal/clock"
	"meetfeed/internal/feed"
	appLog "meetfeed/internal/log"
	"meetfeed/internal/model"
	"meetfeed/internal/paging"
	"meetfeed/internal/session"
)

const DefaultPageSize = 10

var (
	// ErrNoToken means there was no session token to fetch with.
	ErrNoToken = errors.New("no session token")
	// ErrSuperseded means a newer refresh made this one's result obsolete;
	// nothing was applied.
	ErrSuperseded = errors.New("refresh superseded by a newer one")
	// ErrRankOutOfRange is returned for a display rank outside the feed.
	ErrRankOutOfRange = errors.New("rank out of range")
)

// Source produces raw meeting records; *feed.Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context, bearerToken string) ([]model.Meeting, error)
}

// FilterFunc builds the domain filters for a refresh happening at now.
type FilterFunc func(now time.Time) []feed.Filter

type Engine struct {
	source  Source
	token   session.Accessor
	clock   clock.Clock
	loc     *time.Location
	filters FilterFunc
	clamp   bool

	mu        sync.Mutex
	meetings  []model.Meeting
	keys      []string // selection key per meeting, unique within the feed
	pager     *paging.Paginator[model.Meeting]
	selection *paging.Selection[string]
	started   uint64 // last refresh generation started
	applied   uint64 // last refresh generation applied
	cancel    context.CancelFunc
	fetchedAt time.Time
	lastErr   error
	expired   bool
}

type Option func(*Engine) error

func WithClock(c clock.Clock) Option {
	return func(e *Engine) error { e.clock = c; return nil }
}

// WithLocation sets the zone "now" is taken in when filters are built.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) error {
		if loc != nil {
			e.loc = loc
		}
		return nil
	}
}

func WithPageSize(n int) Option {
	return func(e *Engine) error {
		p, err := paging.New[model.Meeting](n)
		if err != nil {
			return err
		}
		e.pager = p
		return nil
	}
}

func WithFilters(f FilterFunc) Option {
	return func(e *Engine) error { e.filters = f; return nil }
}

// WithClampOnRefresh controls whether the current page is pulled back into
// range after a refresh shrinks the feed. Default true; false keeps the
// page and may show an empty table.
func WithClampOnRefresh(clamp bool) Option {
	return func(e *Engine) error { e.clamp = clamp; return nil }
}

func New(source Source, token session.Accessor, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("engine: nil source")
	}
	if token == nil {
		return nil, errors.New("engine: nil token accessor")
	}

	pager, _ := paging.New[model.Meeting](DefaultPageSize)
	e := &Engine{
		source:    source,
		token:     token,
		clock:     clock.Real{},
		loc:       time.Local,
		filters:   func(time.Time) []feed.Filter { return nil },
		clamp:     true,
		meetings:  []model.Meeting{},
		pager:     pager,
		selection: paging.NewSelection[string](),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	return e, nil
}

// Refresh runs one fetch cycle and replaces the feed with its result. A
// failed fetch replaces the feed with an empty one and returns the error.
// Starting a refresh cancels any older one still in flight, and a result
// is only applied if no newer refresh has been applied already.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	e.started++
	gen := e.started
	if e.cancel != nil {
		e.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	expired := e.expired
	e.mu.Unlock()
	defer cancel()

	var (
		raw []model.Meeting
		err error
	)
	switch {
	case expired:
		err = session.ErrSessionExpired
	default:
		if tok := e.token(); tok == "" {
			err = ErrNoToken
		} else {
			raw, err = e.source.Fetch(fctx, tok)
		}
	}

	now := e.clock.Now().In(e.loc)
	normalized := []model.Meeting{}
	if err == nil {
		var stats feed.Stats
		normalized, stats = feed.NormalizeWithStats(raw, feed.Options{Filters: e.filters(now)})
		appLog.Info("feed refreshed", "generation", gen, "input", stats.Input, "invalid", stats.Invalid, "output", stats.Output)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	superseded := gen < e.started
	if gen <= e.applied || (superseded && fctx.Err() != nil && err != nil) {
		appLog.Debug("refresh result discarded", "generation", gen, "applied", e.applied, "latest", e.started)
		return ErrSuperseded
	}

	e.applied = gen
	e.meetings = normalized
	e.keys = selectionKeys(normalized)
	e.fetchedAt = now
	e.lastErr = err
	if e.clamp {
		e.pager.Reconcile(len(normalized))
	} else {
		e.pager.Slice(normalized)
	}

	if err != nil {
		appLog.Error("feed refresh failed; showing empty feed", err, "generation", gen)
	}
	return err
}

// Run refreshes immediately and then on every activation of sched until
// ctx is done.
func (e *Engine) Run(ctx context.Context, sched cron.Schedule) {
	_ = e.Refresh(ctx)
	clock.Loop(ctx, e.clock, sched, func(time.Time) {
		_ = e.Refresh(ctx)
	})
}

// Row is one displayed meeting.
type Row struct {
	Rank     int // 1-based position across all pages
	Meeting  model.Meeting
	Selected bool
}

// View is the read-only projection consumed by a view layer.
type View struct {
	Rows           []Row
	Page           int
	TotalPages     int
	PageSize       int
	Total          int
	SelectedCount  int
	FetchedAt      time.Time
	LastError      error
	SessionExpired bool
}

func (e *Engine) CurrentPage() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	page := e.pager.Slice(e.meetings)
	offset := e.pager.Offset()

	rows := make([]Row, len(page))
	for i, m := range page {
		rows[i] = Row{
			Rank:     offset + i + 1,
			Meeting:  m,
			Selected: e.selection.IsSelected(e.keys[offset+i]),
		}
	}

	return View{
		Rows:           rows,
		Page:           e.pager.Page(),
		TotalPages:     e.pager.TotalPages(),
		PageSize:       e.pager.PageSize(),
		Total:          len(e.meetings),
		SelectedCount:  e.selectedCountLocked(),
		FetchedAt:      e.fetchedAt,
		LastError:      e.lastErr,
		SessionExpired: e.expired,
	}
}

// NextPage advances one page, clamped to the last page, and returns the
// new page number.
func (e *Engine) NextPage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pager.NextPage()
	return e.pager.Page()
}

func (e *Engine) PrevPage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pager.PrevPage()
	return e.pager.Page()
}

// Toggle flips the selection of the meeting at display rank. Selection is
// stored by the meeting's identity, so it follows the meeting when a
// refresh changes the order.
func (e *Engine) Toggle(rank int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := e.keyAtRankLocked(rank)
	if err != nil {
		return false, err
	}
	return e.selection.Toggle(key), nil
}

func (e *Engine) IsSelected(rank int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := e.keyAtRankLocked(rank)
	if err != nil {
		return false
	}
	return e.selection.IsSelected(key)
}

// SelectedMeetings returns the selected meetings present in the current
// feed, in feed order.
func (e *Engine) SelectedMeetings() []model.Meeting {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.Meeting
	for i, m := range e.meetings {
		if e.selection.IsSelected(e.keys[i]) {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) ResetSelection() {
	e.selection.Reset()
}

// Feed returns a copy of the full normalized feed.
func (e *Engine) Feed() []model.Meeting {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Meeting(nil), e.meetings...)
}

// MarkExpired stops further fetches until ClearExpired is called.
func (e *Engine) MarkExpired() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired = true
}

func (e *Engine) ClearExpired() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired = false
}

func (e *Engine) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired
}

func (e *Engine) keyAtRankLocked(rank int) (string, error) {
	if rank < 1 || rank > len(e.meetings) {
		return "", fmt.Errorf("%w: %d (feed has %d)", ErrRankOutOfRange, rank, len(e.meetings))
	}
	return e.keys[rank-1], nil
}

func (e *Engine) selectedCountLocked() int {
	n := 0
	for _, k := range e.keys {
		if e.selection.IsSelected(k) {
			n++
		}
	}
	return n
}

// selectionKeys returns Meeting.Key for each meeting, with "#2", "#3", ...
// appended to repeats so identical records are selected independently.
// Repeats are numbered in feed order.
func selectionKeys(meetings []model.Meeting) []string {
	keys := make([]string, len(meetings))
	seen := make(map[string]int, len(meetings))
	for i, m := range meetings {
		k := m.Key()
		seen[k]++
		if n := seen[k]; n > 1 {
			k = fmt.Sprintf("%s#%d", k, n)
		}
		keys[i] = k
	}
	return keys
}
