package handler

import (
	"net/http"
	"strconv"

	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/model"
)

type jobView struct {
	model.GenerationJob
	StatusLabel string `json:"status_label"`
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.JobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TemplateID <= 0 || req.Count <= 0 {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
		return
	}
	job, err := h.jobs.CreateJob(r.Context(), req)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data:    h.jobView(r, job),
		Message: appI18n.Td(r.Context(), "JobCreated", map[string]any{"ID": job.ID}),
	})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeData(w, http.StatusOK, h.jobView(r, job))
}

func (h *Handler) jobView(r *http.Request, job model.GenerationJob) jobView {
	return jobView{
		GenerationJob: job,
		StatusLabel:   appI18n.Label(r.Context(), "Job", string(job.Status), string(job.Status)),
	}
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f model.QuestionFilter
	for key, dst := range map[string]*int64{"template_id": &f.TemplateID, "job_id": &f.JobID} {
		if v := q.Get(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
				return
			}
			*dst = n
		}
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"), nil)
				return
			}
			*dst = n
		}
	}
	page, err := h.jobs.ListQuestions(r.Context(), f)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    page,
		Message: appI18n.Tp(r.Context(), "QuestionsShown", len(page.Items), nil),
	})
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	question, err := h.jobs.GetQuestion(r.Context(), id)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeData(w, http.StatusOK, question)
}
