// Package validate holds the local checks run on a template draft before it
// is sent anywhere: required fields and length limits, a line-based lint of
// the embedded scripts, and whitespace sanitization.
package validate

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/qtadmin/internal/model"
)

// Field names used as keys in Errors.
const (
	FieldModule          = "module"
	FieldCategory        = "category"
	FieldTopic           = "topic"
	FieldSubtopic        = "subtopic"
	FieldFormat          = "format"
	FieldDifficulty      = "difficulty"
	FieldType            = "type"
	FieldDynamicQuestion = "dynamic_question"
	FieldLogicalAnswer   = "logical_answer"
)

// Limits for template form fields.
const (
	maxTaxonomyLen = 100
	maxFormatLen   = 200
	minScriptLen   = 10
)

// Errors maps a field name to its error message. A draft is valid iff it is empty.
type Errors map[string]string

// Valid reports whether no field failed.
func (e Errors) Valid() bool { return len(e) == 0 }

// Fields returns the failing field names in sorted order.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fieldRule struct {
	name  string
	label string
	value func(model.TemplateDraft) string
	max   int
	min   int
}

var templateRules = []fieldRule{
	{FieldModule, "Module", func(d model.TemplateDraft) string { return d.Module }, maxTaxonomyLen, 0},
	{FieldCategory, "Category", func(d model.TemplateDraft) string { return d.Category }, maxTaxonomyLen, 0},
	{FieldTopic, "Topic", func(d model.TemplateDraft) string { return d.Topic }, maxTaxonomyLen, 0},
	{FieldSubtopic, "Subtopic", func(d model.TemplateDraft) string { return d.Subtopic }, maxTaxonomyLen, 0},
	{FieldFormat, "Format", func(d model.TemplateDraft) string { return d.Format }, maxFormatLen, 0},
	{FieldDifficulty, "Difficulty", func(d model.TemplateDraft) string { return string(d.Difficulty) }, 0, 0},
	{FieldType, "Question type", func(d model.TemplateDraft) string { return string(d.Type) }, 0, 0},
	{FieldDynamicQuestion, "Dynamic question code", func(d model.TemplateDraft) string { return d.DynamicQuestion }, 0, minScriptLen},
	{FieldLogicalAnswer, "Logical answer code", func(d model.TemplateDraft) string { return d.LogicalAnswer }, 0, minScriptLen},
}

// TemplateForm checks that every required field is present after trimming
// and within its length bounds.
func TemplateForm(d model.TemplateDraft) Errors {
	errs := Errors{}
	for _, r := range templateRules {
		v := strings.TrimSpace(r.value(d))
		n := utf8.RuneCountInString(v)
		switch {
		case v == "":
			errs[r.name] = r.label + " is required"
		case r.max > 0 && n > r.max:
			errs[r.name] = fmt.Sprintf("%s must be %d characters or less", r.label, r.max)
		case r.min > 0 && n < r.min:
			errs[r.name] = fmt.Sprintf("%s must be at least %d characters", r.label, r.min)
		}
	}
	return errs
}

// SanitizeTemplate trims every string field. Applying it twice changes nothing.
func SanitizeTemplate(d model.TemplateDraft) model.TemplateDraft {
	d.Module = strings.TrimSpace(d.Module)
	d.Category = strings.TrimSpace(d.Category)
	d.Topic = strings.TrimSpace(d.Topic)
	d.Subtopic = strings.TrimSpace(d.Subtopic)
	d.Format = strings.TrimSpace(d.Format)
	d.Difficulty = model.Difficulty(strings.TrimSpace(string(d.Difficulty)))
	d.Type = model.QuestionType(strings.TrimSpace(string(d.Type)))
	d.Status = model.TemplateStatus(strings.TrimSpace(string(d.Status)))
	d.DynamicQuestion = strings.TrimSpace(d.DynamicQuestion)
	d.LogicalAnswer = strings.TrimSpace(d.LogicalAnswer)
	return d
}
