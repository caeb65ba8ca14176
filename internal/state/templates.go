// Package state holds the template collection the admin views work on and
// reconciles it with the backend after every action.
package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pavelanni/qtadmin/internal/display"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/validate"
)

// TemplateAPI is the part of the API client the store needs.
type TemplateAPI interface {
	ListTemplates(ctx context.Context, f model.Filter) (model.TemplatePage, error)
	CreateTemplate(ctx context.Context, d model.TemplateDraft) (model.Template, error)
	GetTemplate(ctx context.Context, id int64) (model.Template, error)
	UpdateTemplate(ctx context.Context, id int64, p model.TemplatePatch) (model.Template, error)
	DeleteTemplate(ctx context.Context, id int64) error
	PreviewTemplate(ctx context.Context, id int64, count int) ([]model.PreviewSample, error)
}

// msgInvalidForm is the store error when local validation rejects a draft.
const msgInvalidForm = "Please correct the highlighted fields"

// Templates is the template state store. All methods are safe for
// concurrent use. Actions are numbered in issue order. A list response is
// dropped only when a newer list has already been applied; updates and
// deletes applied while a list was in flight are replayed onto its page.
type Templates struct {
	api      TemplateAPI
	pageSize int

	mu       sync.Mutex
	items    []model.Template
	selected *model.Template
	filter   model.Filter
	total    int
	inflight int
	lastErr  string
	issued   uint64
	listed   uint64
	listing  int
	journal  []change
}

// change is a local update or delete, stamped with the sequence number
// current when it was applied.
type change struct {
	at      uint64
	id      int64
	updated *model.Template
}

// Snapshot is a consistent copy of the store's observable state.
type Snapshot struct {
	Templates []model.Template `json:"templates"`
	Selected  *model.Template  `json:"selected,omitempty"`
	Filter    model.Filter     `json:"filter"`
	Total     int              `json:"total"`
	Loading   bool             `json:"loading"`
	Error     string           `json:"error,omitempty"`
}

// NewTemplates creates a store with default filters and the given page size.
func NewTemplates(api TemplateAPI, pageSize int) *Templates {
	f := model.DefaultFilter(pageSize)
	return &Templates{api: api, pageSize: f.Limit, filter: f}
}

// Snapshot returns a copy of the current state.
func (s *Templates) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Templates: append([]model.Template(nil), s.items...),
		Filter:    s.filter,
		Total:     s.total,
		Loading:   s.inflight > 0,
		Error:     s.lastErr,
	}
	if s.selected != nil {
		sel := *s.selected
		snap.Selected = &sel
	}
	return snap
}

// Filter returns the active filter set.
func (s *Templates) Filter() model.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Loading reports whether any action is in flight.
func (s *Templates) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Err returns the last recorded error message, or "".
func (s *Templates) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// begin marks an action in flight and clears the previous error.
func (s *Templates) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.lastErr = ""
	s.issued++
}

func (s *Templates) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
}

// failLocked records err and returns its display message.
func (s *Templates) failLocked(err error) string {
	s.lastErr = display.ErrorMessage(err)
	return s.lastErr
}

// beginList is begin for List; it also counts the list as in flight.
func (s *Templates) beginList() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.listing++
	s.lastErr = ""
	s.issued++
	return s.issued
}

// recordLocked journals a change so lists in flight can replay it.
func (s *Templates) recordLocked(id int64, updated *model.Template) {
	if s.listing == 0 {
		return
	}
	s.journal = append(s.journal, change{at: s.issued, id: id, updated: updated})
}

// replayLocked applies the changes made after list seq was issued to its page.
func (s *Templates) replayLocked(seq uint64, page model.TemplatePage) model.TemplatePage {
	for _, c := range s.journal {
		if c.at < seq {
			continue
		}
		if c.updated != nil {
			for i := range page.Items {
				if page.Items[i].ID == c.id {
					page.Items[i] = *c.updated
				}
			}
			continue
		}
		page.Items, page.Total = removeTemplate(page.Items, page.Total, c.id)
	}
	return page
}

// pruneLocked drops journal entries no list still in flight can need.
func (s *Templates) pruneLocked() {
	if s.listing == 0 {
		s.journal = nil
		return
	}
	kept := s.journal[:0]
	for _, c := range s.journal {
		if c.at >= s.listed {
			kept = append(kept, c)
		}
	}
	s.journal = kept
}

func removeTemplate(items []model.Template, total int, id int64) ([]model.Template, int) {
	kept := items[:0]
	for _, t := range items {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if removed := len(items) - len(kept); removed > 0 && total >= removed {
		total -= removed
	}
	return kept, total
}

// List fetches the page selected by the active filters and replaces the
// collection with it. On failure the collection is emptied.
func (s *Templates) List(ctx context.Context) model.Result[[]model.Template] {
	seq := s.beginList()
	defer s.end()

	page, err := s.api.ListTemplates(ctx, s.Filter())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing--
	defer s.pruneLocked()
	if seq < s.listed {
		// A newer list already replaced the collection.
		slog.Debug("discarding stale template list", "seq", seq, "listed", s.listed)
		if err != nil {
			return model.Fail[[]model.Template](display.ErrorMessage(err))
		}
		return model.OK(append([]model.Template(nil), s.items...))
	}
	s.listed = seq
	if err != nil {
		s.items = nil
		s.total = 0
		return model.Fail[[]model.Template](s.failLocked(err))
	}
	page = s.replayLocked(seq, page)
	s.items = page.Items
	s.total = page.Total
	return model.OK(append([]model.Template(nil), s.items...))
}

// Create validates and submits a draft, then re-lists so the collection
// holds the backend's view of the new record. A draft failing local
// validation never reaches the backend.
func (s *Templates) Create(ctx context.Context, draft model.TemplateDraft) model.Result[model.Template] {
	s.begin()
	defer s.end()

	draft = validate.SanitizeTemplate(draft)
	if errs := validate.TemplateForm(draft); !errs.Valid() {
		s.mu.Lock()
		s.lastErr = msgInvalidForm
		s.mu.Unlock()
		res := model.Fail[model.Template](msgInvalidForm)
		res.FieldErrors = errs
		return res
	}

	created, err := s.api.CreateTemplate(ctx, draft)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return model.Fail[model.Template](s.failLocked(err))
	}
	slog.Info("created template", "id", created.ID, "module", created.Module, "topic", created.Topic)

	s.List(ctx)
	return model.OK(created)
}

// Update applies a partial update and swaps the returned record into the
// collection and the selection in place.
func (s *Templates) Update(ctx context.Context, id int64, patch model.TemplatePatch) model.Result[model.Template] {
	s.begin()
	defer s.end()

	updated, err := s.api.UpdateTemplate(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return model.Fail[model.Template](s.failLocked(err))
	}
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i] = updated
		}
	}
	if s.selected != nil && s.selected.ID == id {
		sel := updated
		s.selected = &sel
	}
	rec := updated
	s.recordLocked(id, &rec)
	return model.OK(updated)
}

// Delete removes a template on the backend and then locally.
func (s *Templates) Delete(ctx context.Context, id int64) model.Result[int64] {
	s.begin()
	defer s.end()

	err := s.api.DeleteTemplate(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return model.Fail[int64](s.failLocked(err))
	}
	s.items, s.total = removeTemplate(s.items, s.total, id)
	if s.selected != nil && s.selected.ID == id {
		s.selected = nil
	}
	s.recordLocked(id, nil)
	slog.Info("deleted template", "id", id)
	return model.OK(id)
}

// Get fetches one template into the selection slot. The collection is untouched.
func (s *Templates) Get(ctx context.Context, id int64) model.Result[model.Template] {
	s.begin()
	defer s.end()

	t, err := s.api.GetTemplate(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return model.Fail[model.Template](s.failLocked(err))
	}
	s.selected = &t
	return model.OK(t)
}

// ClearSelection empties the selection slot.
func (s *Templates) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Preview asks the backend for count samples of a template. Nothing is stored.
func (s *Templates) Preview(ctx context.Context, id int64, count int) model.Result[[]model.PreviewSample] {
	s.begin()
	defer s.end()

	samples, err := s.api.PreviewTemplate(ctx, id, count)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return model.Fail[[]model.PreviewSample](s.failLocked(err))
	}
	return model.OK(samples)
}

// SetFilters merges patch into the filter set and rewinds to the first page.
// The caller re-lists.
func (s *Templates) SetFilters(patch model.FilterPatch) model.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = patch.Apply(s.filter)
	return s.filter
}

// ClearFilters restores the default filter set.
func (s *Templates) ClearFilters() model.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = model.DefaultFilter(s.pageSize)
	return s.filter
}

// LoadMore advances the offset by one page. The caller re-lists.
func (s *Templates) LoadMore() model.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.Offset += s.filter.Limit
	return s.filter
}
