package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pavelanni/qtadmin/internal/model"
)

// ErrPreviewCount is returned for preview counts outside 1..10.
var ErrPreviewCount = errors.New("preview count must be between 1 and 10")

// CreateTemplate stores a new template and returns it as the backend saved it.
func (c *Client) CreateTemplate(ctx context.Context, draft model.TemplateDraft) (model.Template, error) {
	var t model.Template
	err := c.do(ctx, call{
		op:         "create template",
		method:     http.MethodPost,
		path:       "/question-templates",
		body:       draft,
		out:        &t,
		unwrap:     true,
		defaultMsg: "Failed to create template",
	})
	return t, err
}

// ListTemplates returns one page of templates matching f.
func (c *Client) ListTemplates(ctx context.Context, f model.Filter) (model.TemplatePage, error) {
	q := url.Values{}
	setIf(q, "module", f.Module)
	setIf(q, "category", f.Category)
	setIf(q, "difficulty", f.Difficulty)
	setIf(q, "status", f.Status)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	q.Set("offset", strconv.Itoa(f.Offset))

	var page model.TemplatePage
	err := c.do(ctx, call{
		op:         "list templates",
		method:     http.MethodGet,
		path:       "/question-templates",
		query:      q,
		out:        &page,
		unwrap:     true,
		defaultMsg: "Failed to fetch templates",
	})
	return page, err
}

// GetTemplate fetches one template.
func (c *Client) GetTemplate(ctx context.Context, id int64) (model.Template, error) {
	var t model.Template
	err := c.do(ctx, call{
		op:         "get template",
		method:     http.MethodGet,
		path:       templatePath(id),
		out:        &t,
		unwrap:     true,
		defaultMsg: "Failed to fetch template",
	})
	return t, err
}

// UpdateTemplate applies a partial update and returns the full updated record.
func (c *Client) UpdateTemplate(ctx context.Context, id int64, patch model.TemplatePatch) (model.Template, error) {
	var t model.Template
	err := c.do(ctx, call{
		op:         "update template",
		method:     http.MethodPatch,
		path:       templatePath(id),
		body:       patch,
		out:        &t,
		unwrap:     true,
		defaultMsg: "Failed to update template",
	})
	return t, err
}

// DeleteTemplate soft-deletes a template.
func (c *Client) DeleteTemplate(ctx context.Context, id int64) error {
	return c.do(ctx, call{
		op:         "delete template",
		method:     http.MethodDelete,
		path:       templatePath(id),
		defaultMsg: "Failed to delete template",
	})
}

// PreviewTemplate asks the backend to run a template's scripts count times
// without storing anything. A zero count means the default of 3.
func (c *Client) PreviewTemplate(ctx context.Context, id int64, count int) ([]model.PreviewSample, error) {
	if count == 0 {
		count = model.DefaultPreviewCount
	}
	if count < model.MinPreviewCount || count > model.MaxPreviewCount {
		return nil, fmt.Errorf("preview template %d: %w", id, ErrPreviewCount)
	}

	var out struct {
		Samples []model.PreviewSample `json:"samples"`
	}
	err := c.do(ctx, call{
		op:         "preview template",
		method:     http.MethodPost,
		path:       templatePath(id) + "/preview",
		body:       map[string]int{"count": count},
		out:        &out,
		unwrap:     true,
		defaultMsg: "Failed to preview template",
	})
	return out.Samples, err
}

func templatePath(id int64) string {
	return "/question-templates/" + strconv.FormatInt(id, 10)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
