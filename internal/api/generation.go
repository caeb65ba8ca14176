package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pavelanni/qtadmin/internal/model"
)

// CreateJob queues an asynchronous generation run for a template.
func (c *Client) CreateJob(ctx context.Context, req model.JobRequest) (model.GenerationJob, error) {
	var job model.GenerationJob
	err := c.do(ctx, call{
		op:         "create generation job",
		method:     http.MethodPost,
		path:       "/question-generation-jobs",
		body:       req,
		out:        &job,
		unwrap:     true,
		defaultMsg: "Failed to create generation job",
	})
	return job, err
}

// GetJob fetches the current state of a generation job.
func (c *Client) GetJob(ctx context.Context, id int64) (model.GenerationJob, error) {
	var job model.GenerationJob
	err := c.do(ctx, call{
		op:         "get generation job",
		method:     http.MethodGet,
		path:       "/question-generation-jobs/" + strconv.FormatInt(id, 10),
		out:        &job,
		unwrap:     true,
		defaultMsg: "Failed to fetch generation job",
	})
	return job, err
}

// ListQuestions returns generated questions, optionally narrowed to a template or job.
func (c *Client) ListQuestions(ctx context.Context, f model.QuestionFilter) (model.QuestionPage, error) {
	q := url.Values{}
	if f.TemplateID != 0 {
		q.Set("template_id", strconv.FormatInt(f.TemplateID, 10))
	}
	if f.JobID != 0 {
		q.Set("job_id", strconv.FormatInt(f.JobID, 10))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	var page model.QuestionPage
	err := c.do(ctx, call{
		op:         "list generated questions",
		method:     http.MethodGet,
		path:       "/generated-questions",
		query:      q,
		out:        &page,
		unwrap:     true,
		defaultMsg: "Failed to fetch generated questions",
	})
	return page, err
}

// GetQuestion fetches one generated question.
func (c *Client) GetQuestion(ctx context.Context, id int64) (model.GeneratedQuestion, error) {
	var gq model.GeneratedQuestion
	err := c.do(ctx, call{
		op:         "get generated question",
		method:     http.MethodGet,
		path:       "/generated-questions/" + strconv.FormatInt(id, 10),
		out:        &gq,
		unwrap:     true,
		defaultMsg: "Failed to fetch generated question",
	})
	return gq, err
}
