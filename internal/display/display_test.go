package display

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pavelanni/qtadmin/internal/api"
	"github.com/pavelanni/qtadmin/internal/model"
)

func TestDifficultyColor(t *testing.T) {
	tests := []struct {
		in   model.Difficulty
		want string
	}{
		{model.DifficultyEasy, "#10B981"},
		{model.DifficultyMedium, "#F59E0B"},
		{model.DifficultyHard, "#EF4444"},
		{model.DifficultyExpert, "#8B5CF6"},
		{"", defaultDifficultyColor},
		{"legendary", defaultDifficultyColor},
		{"EASY", defaultDifficultyColor},
	}
	for _, tt := range tests {
		if got := DifficultyColor(tt.in); got != tt.want {
			t.Errorf("DifficultyColor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusBadge(t *testing.T) {
	for _, s := range []model.TemplateStatus{model.StatusDraft, model.StatusActive, model.StatusInactive} {
		b := StatusBadge(s)
		if b == defaultBadge {
			t.Errorf("StatusBadge(%q) returned the default", s)
		}
		if b.Label == "" || b.Color == "" || b.Background == "" || b.Icon == "" {
			t.Errorf("StatusBadge(%q) has empty attributes: %+v", s, b)
		}
	}
	for _, s := range []model.TemplateStatus{"", "archived", "Active"} {
		if got := StatusBadge(s); got != defaultBadge {
			t.Errorf("StatusBadge(%q) = %+v, want default", s, got)
		}
	}
}

func TestTypeLookups(t *testing.T) {
	known := map[model.QuestionType]string{
		model.TypeMCQ:        "Multiple Choice",
		model.TypeUserInput:  "User Input",
		model.TypeImageBased: "Image Based",
		model.TypeCodeBased:  "Code Based",
	}
	for typ, label := range known {
		if got := TypeLabel(typ); got != label {
			t.Errorf("TypeLabel(%q) = %q, want %q", typ, got, label)
		}
		if got := TypeIcon(typ); got == defaultTypeIcon {
			t.Errorf("TypeIcon(%q) returned the default", typ)
		}
	}
	for _, typ := range []model.QuestionType{"", "essay", "MCQ"} {
		if got := TypeLabel(typ); got != defaultTypeLabel {
			t.Errorf("TypeLabel(%q) = %q, want default", typ, got)
		}
		if got := TypeIcon(typ); got != defaultTypeIcon {
			t.Errorf("TypeIcon(%q) = %q, want default", typ, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"empty", "", 5, ""},
		{"shorter", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"longer", "abcdefgh", 5, "abcde..."},
		{"multibyte", "ééééééé", 3, "ééé..."},
		{"default max", strings.Repeat("x", 51), 0, strings.Repeat("x", 50) + "..."},
		{"default max fits", strings.Repeat("x", 50), 0, strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestTruncateLength(t *testing.T) {
	s := strings.Repeat("ab", 40)
	for n := 1; n < 80; n++ {
		got := Truncate(s, n)
		if utf8.RuneCountInString(got) != n+3 {
			t.Fatalf("Truncate(len 80, %d) has length %d, want %d", n, utf8.RuneCountInString(got), n+3)
		}
		if !strings.HasPrefix(s, strings.TrimSuffix(got, "...")) {
			t.Fatalf("Truncate(len 80, %d) is not a prefix: %q", n, got)
		}
	}
}

type messager struct{ msg string }

func (m messager) Message() string { return m.msg }

func TestErrorMessage(t *testing.T) {
	reqErr := &api.RequestError{Op: "list templates", Status: 500, Message: "Database unavailable"}

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"request error", reqErr, "Database unavailable"},
		{"wrapped request error", fmt.Errorf("refresh: %w", reqErr), "Database unavailable"},
		{"plain error", errors.New("boom"), "boom"},
		{"string", "just text", "just text"},
		{"message method", messager{"from method"}, "from method"},
		{"empty string", "", FallbackError},
		{"nil", nil, FallbackError},
		{"number", 42, FallbackError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.in); got != tt.want {
				t.Errorf("ErrorMessage(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
