// Package prompts renders the prompts used by the script drafting assistant.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/qtadmin/internal/model"
)

//go:embed *.txt
var promptFS embed.FS

// maxFieldLen caps how much of a single field reaches the model.
const maxFieldLen = 500

var fieldTagRegex = regexp.MustCompile(`(?i)</?\s*template-fields\b[^>]*>`)

var (
	loadOnce sync.Once
	loadErr  error
	system   *template.Template
	user     *template.Template
)

// DraftData is the template data for a drafting request.
type DraftData struct {
	Module     string
	Category   string
	Topic      string
	Subtopic   string
	Format     string
	Difficulty string
	Type       string
	GradeLevel int
}

func load() error {
	loadOnce.Do(func() {
		system, loadErr = template.ParseFS(promptFS, "draft_system.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse system prompt: %w", loadErr)
			return
		}
		user, loadErr = template.ParseFS(promptFS, "draft_user.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse user prompt: %w", loadErr)
		}
	})
	return loadErr
}

// NewDraftData builds sanitized prompt data from a template draft.
func NewDraftData(d model.TemplateDraft) DraftData {
	return DraftData{
		Module:     sanitizeField(d.Module),
		Category:   sanitizeField(d.Category),
		Topic:      sanitizeField(d.Topic),
		Subtopic:   sanitizeField(d.Subtopic),
		Format:     sanitizeField(d.Format),
		Difficulty: sanitizeField(string(d.Difficulty)),
		Type:       sanitizeField(string(d.Type)),
		GradeLevel: d.GradeLevel,
	}
}

// BuildDraftPrompt returns the system and user messages for a drafting request.
func BuildDraftPrompt(data DraftData) (sys, usr string, err error) {
	if err := load(); err != nil {
		return "", "", err
	}
	var sb, ub bytes.Buffer
	if err := system.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if err := user.Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return sb.String(), ub.String(), nil
}

// sanitizeField strips delimiter tags and newlines so a field cannot break
// out of the fields block, and caps its length.
func sanitizeField(s string) string {
	s = fieldTagRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxFieldLen {
		s = string([]rune(s)[:maxFieldLen]) + "..."
	}
	return s
}
