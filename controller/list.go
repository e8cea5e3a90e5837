package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"sgb-web/library"
	"sgb-web/logger"
)

// ListController fetches one entity collection and derives the visible
// subset. Server filters go out as query parameters and trigger a fetch;
// client filters only narrow the last result.
//
// Every fetch takes a sequence number and only the response to the newest
// fetch is applied, so a slow response can never overwrite a newer one.
type ListController struct {
	env    Env
	entity *library.Entity
	log    *logger.Logger

	mu      sync.Mutex
	filters map[string]string
	items   []library.Record
	visible []library.Record
	err     string
	seq     uint64
	settled uint64
}

// NewListController returns an empty, unmounted list.
func NewListController(env Env, e *library.Entity) *ListController {
	l := &ListController{
		env:    env,
		entity: e,
		log:    env.logger("list").WithStr("entity", e.Name),
	}
	l.filters = l.defaultFilters()
	return l
}

// Entity is the listed type.
func (l *ListController) Entity() *library.Entity { return l.entity }

// Mount performs the initial fetch.
func (l *ListController) Mount(ctx context.Context) error {
	return l.fetch(ctx)
}

// Refresh re-fetches with the current filters.
func (l *ListController) Refresh(ctx context.Context) error {
	return l.fetch(ctx)
}

// SetFilter changes one filter. A server filter always re-fetches, even when
// the value did not change; a client filter only re-derives the visible list.
func (l *ListController) SetFilter(ctx context.Context, key, value string) error {
	if l.entity.IsServerFilter(key) {
		l.mu.Lock()
		l.filters[key] = value
		l.mu.Unlock()
		return l.fetch(ctx)
	}
	if _, ok := l.entity.ClientFilter(key); ok {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.filters[key] = value
		l.deriveLocked()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownFilter, key)
}

// Apply sets several filters at once and fetches a single time.
func (l *ListController) Apply(ctx context.Context, filters map[string]string) error {
	for k := range filters {
		_, client := l.entity.ClientFilter(k)
		if !client && !l.entity.IsServerFilter(k) {
			return fmt.Errorf("%w: %s", ErrUnknownFilter, k)
		}
	}
	l.mu.Lock()
	for k, v := range filters {
		l.filters[k] = v
	}
	l.mu.Unlock()
	return l.fetch(ctx)
}

// ClearFilters restores the default filters and re-fetches.
func (l *ListController) ClearFilters(ctx context.Context) error {
	l.mu.Lock()
	l.filters = l.defaultFilters()
	l.mu.Unlock()
	return l.fetch(ctx)
}

// Filters returns a copy of the filter state.
func (l *ListController) Filters() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.filters))
	for k, v := range l.filters {
		out[k] = v
	}
	return out
}

// Items is the last fetched result after scoping and sorting.
func (l *ListController) Items() []library.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]library.Record(nil), l.items...)
}

// Visible is Items narrowed by the client filters.
func (l *ListController) Visible() []library.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]library.Record(nil), l.visible...)
}

// Err is the message of the last failed fetch, cleared by the next success.
func (l *ListController) Err() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Loading reports whether the newest fetch has not settled yet.
func (l *ListController) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settled != l.seq
}

// CanCreate reports whether the create affordance is offered.
func (l *ListController) CanCreate() bool {
	return library.Can(l.env.session(), l.entity, library.ActionCreate, nil)
}

// NewCreateForm opens a creation form for this entity.
func (l *ListController) NewCreateForm() (*CreateController, error) {
	if !l.CanCreate() {
		return nil, library.ErrForbidden
	}
	return NewCreateController(l.env, l.entity), nil
}

// Open opens the fetched record with the given id. When the modal closes
// asking for a refresh, the list re-fetches.
func (l *ListController) Open(id string) (*ModalController, error) {
	l.mu.Lock()
	var rec library.Record
	for _, r := range l.items {
		if l.entity.ID(r) == id {
			rec = r
			break
		}
	}
	l.mu.Unlock()

	if rec == nil {
		return nil, fmt.Errorf("%w: %s %s", library.ErrNotFound, l.entity.Singular, id)
	}
	if !library.Can(l.env.session(), l.entity, library.ActionOpen, rec) {
		return nil, library.ErrForbidden
	}
	return l.OpenRecord(rec, false), nil
}

// OpenRecord opens rec directly, typically a record just returned by a
// creation form, without an intermediate list refresh.
func (l *ListController) OpenRecord(rec library.Record, created bool) *ModalController {
	return NewModalController(l.env, l.entity, rec, created, func(refresh bool) {
		if !refresh {
			return
		}
		if err := l.Refresh(context.Background()); err != nil {
			l.log.Warn().Err(err).Msg("refresh after close failed")
		}
	})
}

func (l *ListController) fetch(ctx context.Context) error {
	s := l.env.session()

	l.mu.Lock()
	l.seq++
	seq := l.seq
	query := l.entity.BuildQuery(s, l.filters)
	l.mu.Unlock()

	items, err := l.env.Backend.List(ctx, l.entity.Endpoint, query)

	l.mu.Lock()
	defer l.mu.Unlock()
	if seq != l.seq {
		l.log.Debug().Uint64("seq", seq).Uint64("latest", l.seq).Msg("discarding stale response")
		return nil
	}
	l.settled = seq
	if err != nil {
		l.err = userMessage(l.entity.Messages.Fetch, err)
		l.log.Warn().Err(err).Msg("fetch failed")
		return err
	}

	if l.entity.Scope != nil {
		kept := items[:0]
		for _, r := range items {
			if l.entity.Scope(s, r) {
				kept = append(kept, r)
			}
		}
		items = kept
	}
	if l.entity.Sort != nil {
		l.entity.Sort(items)
	}
	l.items = items
	l.err = ""
	l.deriveLocked()
	return nil
}

// deriveLocked recomputes visible with case-insensitive substring matching.
// Filters are combined with AND, so their order does not matter.
func (l *ListController) deriveLocked() {
	type needle struct {
		path  string
		value string
	}
	fold := cases.Fold()
	var needles []needle
	for _, f := range l.entity.ClientFilters {
		if v := strings.TrimSpace(l.filters[f.Key]); v != "" {
			needles = append(needles, needle{path: f.Path, value: fold.String(v)})
		}
	}

	visible := make([]library.Record, 0, len(l.items))
	for _, r := range l.items {
		ok := true
		for _, n := range needles {
			if !strings.Contains(fold.String(r.String(n.path)), n.value) {
				ok = false
				break
			}
		}
		if ok {
			visible = append(visible, r)
		}
	}
	l.visible = visible
}

func (l *ListController) defaultFilters() map[string]string {
	out := make(map[string]string, len(l.entity.DefaultFilters))
	for k, v := range l.entity.DefaultFilters {
		out[k] = v
	}
	return out
}
