package model

import (
	"time"
)

// Difficulty represents a template's difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// QuestionType tags how a generated question is answered.
type QuestionType string

const (
	TypeMCQ        QuestionType = "mcq"
	TypeUserInput  QuestionType = "user_input"
	TypeImageBased QuestionType = "image_based"
	TypeCodeBased  QuestionType = "code_based"
)

// TemplateStatus is the lifecycle status of a template. Any value may be set
// at any time; there is no enforced transition order.
type TemplateStatus string

const (
	StatusDraft    TemplateStatus = "draft"
	StatusActive   TemplateStatus = "active"
	StatusInactive TemplateStatus = "inactive"
)

// Template is a question template as held by the backend. ID is assigned by
// the backend and never changes.
type Template struct {
	ID              int64          `json:"id"`
	Module          string         `json:"module"`
	Category        string         `json:"category"`
	Topic           string         `json:"topic"`
	Subtopic        string         `json:"subtopic"`
	Format          string         `json:"format"`
	Difficulty      Difficulty     `json:"difficulty"`
	Type            QuestionType   `json:"type"`
	Status          TemplateStatus `json:"status"`
	GradeLevel      int            `json:"grade_level"`
	DynamicQuestion string         `json:"dynamic_question"`
	LogicalAnswer   string         `json:"logical_answer"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TemplateDraft is the body sent when creating a template.
type TemplateDraft struct {
	Module          string         `json:"module"`
	Category        string         `json:"category"`
	Topic           string         `json:"topic"`
	Subtopic        string         `json:"subtopic"`
	Format          string         `json:"format"`
	Difficulty      Difficulty     `json:"difficulty"`
	Type            QuestionType   `json:"type"`
	Status          TemplateStatus `json:"status,omitempty"`
	GradeLevel      int            `json:"grade_level,omitempty"`
	DynamicQuestion string         `json:"dynamic_question"`
	LogicalAnswer   string         `json:"logical_answer"`
}

// TemplatePatch is a partial update. Nil fields are left untouched by the backend.
type TemplatePatch struct {
	Module          *string         `json:"module,omitempty"`
	Category        *string         `json:"category,omitempty"`
	Topic           *string         `json:"topic,omitempty"`
	Subtopic        *string         `json:"subtopic,omitempty"`
	Format          *string         `json:"format,omitempty"`
	Difficulty      *Difficulty     `json:"difficulty,omitempty"`
	Type            *QuestionType   `json:"type,omitempty"`
	Status          *TemplateStatus `json:"status,omitempty"`
	GradeLevel      *int            `json:"grade_level,omitempty"`
	DynamicQuestion *string         `json:"dynamic_question,omitempty"`
	LogicalAnswer   *string         `json:"logical_answer,omitempty"`
}

// DefaultLimit is the page size used when none is configured.
const DefaultLimit = 20

// Filter is the active filter set plus offset pagination.
// Empty strings mean no filtering on that field.
type Filter struct {
	Module     string `json:"module"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Status     string `json:"status"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

// DefaultFilter returns the filter set used on startup and after a clear.
func DefaultFilter(limit int) Filter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return Filter{Limit: limit}
}

// FilterPatch carries the filter fields to change. Nil fields are kept.
type FilterPatch struct {
	Module     *string `json:"module,omitempty"`
	Category   *string `json:"category,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
	Status     *string `json:"status,omitempty"`
	Limit      *int    `json:"limit,omitempty"`
}

// Apply merges the patch into f and resets the offset.
func (p FilterPatch) Apply(f Filter) Filter {
	if p.Module != nil {
		f.Module = *p.Module
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.Difficulty != nil {
		f.Difficulty = *p.Difficulty
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.Limit != nil && *p.Limit > 0 {
		f.Limit = *p.Limit
	}
	f.Offset = 0
	return f
}

// TemplatePage is one page of a template listing.
type TemplatePage struct {
	Items []Template `json:"items"`
	Total int        `json:"total"`
}

// PreviewSample is one rendered question produced by a preview. It is never stored.
type PreviewSample struct {
	Question  string         `json:"question"`
	Answer    any            `json:"answer"`
	Options   []string       `json:"options,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Preview bounds.
const (
	MinPreviewCount     = 1
	MaxPreviewCount     = 10
	DefaultPreviewCount = 3
)

// JobStatus is the state of a generation job on the backend.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job will not change status again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRequest is the body for creating a generation job.
type JobRequest struct {
	TemplateID int64 `json:"template_id"`
	Count      int   `json:"count"`
}

// GenerationJob is an asynchronous backend run of a template's scripts.
type GenerationJob struct {
	ID         int64     `json:"id"`
	TemplateID int64     `json:"template_id"`
	Count      int       `json:"count"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GeneratedQuestion is one question produced by a generation job.
type GeneratedQuestion struct {
	ID         int64     `json:"id"`
	TemplateID int64     `json:"template_id"`
	JobID      int64     `json:"job_id"`
	Question   string    `json:"question"`
	Answer     any       `json:"answer"`
	Options    []string  `json:"options,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuestionFilter narrows a generated question listing. Zero IDs are ignored.
type QuestionFilter struct {
	TemplateID int64
	JobID      int64
	Limit      int
	Offset     int
}

// QuestionPage is one page of generated questions.
type QuestionPage struct {
	Items []GeneratedQuestion `json:"items"`
	Total int                 `json:"total"`
}

// Result is what store actions hand back to their callers instead of an error.
type Result[T any] struct {
	Success     bool              `json:"success"`
	Data        T                 `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	// Status is the upstream HTTP status behind a failure, when one applies.
	Status int `json:"-"`
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail builds a failed result carrying msg.
func Fail[T any](msg string) Result[T] {
	return Result[T]{Error: msg}
}
