// Package display turns template attributes into presentation values.
// Every lookup falls back to a default for unknown keys.
package display

import (
	"errors"
	"unicode/utf8"

	"github.com/pavelanni/qtadmin/internal/api"
	"github.com/pavelanni/qtadmin/internal/model"
)

// DefaultTruncate is the length used by Truncate callers with no preference.
const DefaultTruncate = 50

const ellipsis = "..."

// FallbackError is shown when an error carries no usable message.
const FallbackError = "An unexpected error occurred"

var difficultyColors = map[model.Difficulty]string{
	model.DifficultyEasy:   "#10B981",
	model.DifficultyMedium: "#F59E0B",
	model.DifficultyHard:   "#EF4444",
	model.DifficultyExpert: "#8B5CF6",
}

const defaultDifficultyColor = "#6B7280"

// DifficultyColor returns the display color for a difficulty level.
func DifficultyColor(d model.Difficulty) string {
	if c, ok := difficultyColors[d]; ok {
		return c
	}
	return defaultDifficultyColor
}

// Badge describes how a template status is rendered.
type Badge struct {
	Label      string `json:"label"`
	Color      string `json:"color"`
	Background string `json:"background"`
	Icon       string `json:"icon"`
}

var statusBadges = map[model.TemplateStatus]Badge{
	model.StatusDraft:    {Label: "Draft", Color: "#92400E", Background: "#FEF3C7", Icon: "📝"},
	model.StatusActive:   {Label: "Active", Color: "#065F46", Background: "#D1FAE5", Icon: "✅"},
	model.StatusInactive: {Label: "Inactive", Color: "#991B1B", Background: "#FEE2E2", Icon: "⏸️"},
}

var defaultBadge = Badge{Label: "Unknown", Color: "#374151", Background: "#F3F4F6", Icon: "❔"}

// StatusBadge returns the badge for a template status.
func StatusBadge(s model.TemplateStatus) Badge {
	if b, ok := statusBadges[s]; ok {
		return b
	}
	return defaultBadge
}

var typeLabels = map[model.QuestionType]string{
	model.TypeMCQ:        "Multiple Choice",
	model.TypeUserInput:  "User Input",
	model.TypeImageBased: "Image Based",
	model.TypeCodeBased:  "Code Based",
}

var typeIcons = map[model.QuestionType]string{
	model.TypeMCQ:        "☑️",
	model.TypeUserInput:  "✏️",
	model.TypeImageBased: "🖼️",
	model.TypeCodeBased:  "💻",
}

const (
	defaultTypeLabel = "Unknown"
	defaultTypeIcon  = "❓"
)

// TypeLabel returns the human label for a question type.
func TypeLabel(t model.QuestionType) string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return defaultTypeLabel
}

// TypeIcon returns the glyph for a question type.
func TypeIcon(t model.QuestionType) string {
	if i, ok := typeIcons[t]; ok {
		return i
	}
	return defaultTypeIcon
}

// Truncate returns s unchanged if it has at most max characters, otherwise
// its first max characters followed by "...". A non-positive max means
// DefaultTruncate.
func Truncate(s string, max int) string {
	if max <= 0 {
		max = DefaultTruncate
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + ellipsis
}

// ErrorMessage extracts a displayable message from an error value: the
// message of an API error, the text of any other error, a string as is,
// and FallbackError for anything else.
func ErrorMessage(v any) string {
	switch e := v.(type) {
	case nil:
		return FallbackError
	case error:
		var re *api.RequestError
		if errors.As(e, &re) && re.Message != "" {
			return re.Message
		}
		if msg := e.Error(); msg != "" {
			return msg
		}
	case string:
		if e != "" {
			return e
		}
	case interface{ Message() string }:
		if msg := e.Message(); msg != "" {
			return msg
		}
	}
	return FallbackError
}
