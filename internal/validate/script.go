package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pavelanni/qtadmin/internal/model"
)

// controlLine matches a line opening a block: a keyword followed by whitespace.
var controlLine = regexp.MustCompile(`^(if|elif|else|for|while|def|class|try|except|finally|with)\s`)

// LintIssue is an advisory finding on one script line. Lines are 1-based.
type LintIssue struct {
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

func (i LintIssue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Message)
}

// LintScript flags block-opening lines that do not end in a colon or a line
// continuation. It is a heuristic, not a parser: brackets are not balanced and
// a clean result does not mean the script runs.
func LintScript(src string) []LintIssue {
	var issues []LintIssue
	for n, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		m := controlLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		if strings.HasSuffix(trimmed, ":") || strings.HasSuffix(trimmed, `\`) {
			continue
		}
		issues = append(issues, LintIssue{
			Line:    n + 1,
			Text:    trimmed,
			Message: fmt.Sprintf("missing colon after '%s' statement", m[1]),
		})
	}
	return issues
}

// LintTemplate lints both embedded scripts of a draft, keyed by field name.
// Fields without findings are omitted.
func LintTemplate(d model.TemplateDraft) map[string][]LintIssue {
	out := make(map[string][]LintIssue)
	if issues := LintScript(d.DynamicQuestion); len(issues) > 0 {
		out[FieldDynamicQuestion] = issues
	}
	if issues := LintScript(d.LogicalAnswer); len(issues) > 0 {
		out[FieldLogicalAnswer] = issues
	}
	return out
}
