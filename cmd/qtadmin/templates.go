package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pavelanni/qtadmin/internal/display"
	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/validate"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"tpl"},
		Short:   "Manage question templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List templates matching the filters",
		RunE:  run(runTemplatesList),
	}
	lf := list.Flags()
	lf.String("module", "", "Filter by module")
	lf.String("category", "", "Filter by category")
	lf.String("difficulty", "", "Filter by difficulty (easy, medium, hard, expert)")
	lf.String("status", "", "Filter by status (draft, active, inactive)")
	lf.Int("page", 1, "Page number, starting at 1")

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a template from a JSON draft",
		RunE:  run(runTemplatesCreate),
	}
	create.Flags().StringP("file", "f", "-", "JSON file holding the draft (- for stdin)")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Apply a JSON patch to a template",
		Args:  cobra.ExactArgs(1),
		RunE:  run(runTemplatesUpdate),
	}
	update.Flags().StringP("file", "f", "-", "JSON file holding the patch (- for stdin)")

	preview := &cobra.Command{
		Use:   "preview <id>",
		Short: "Render sample questions without storing them",
		Args:  cobra.ExactArgs(1),
		RunE:  run(runTemplatesPreview),
	}
	preview.Flags().IntP("count", "c", model.DefaultPreviewCount, "Number of samples (1-10)")

	lint := &cobra.Command{
		Use:   "lint",
		Short: "Validate a JSON draft and lint its scripts locally",
		RunE:  run(runTemplatesLint),
	}
	lint.Flags().StringP("file", "f", "-", "JSON file holding the draft (- for stdin)")

	draft := &cobra.Command{
		Use:   "draft",
		Short: "Ask the LLM to propose scripts for a JSON draft",
		RunE:  run(runTemplatesDraft),
	}
	draft.Flags().StringP("file", "f", "-", "JSON file holding the draft (- for stdin)")
	addLLMFlags(draft)

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one template",
			Args:  cobra.ExactArgs(1),
			RunE:  run(runTemplatesGet),
		},
		create,
		update,
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a template",
			Args:  cobra.ExactArgs(1),
			RunE:  run(runTemplatesDelete),
		},
		preview,
		lint,
		draft,
	)
	return cmd
}

func runTemplatesList(a *app, _ []string) error {
	ctx := a.ctx()
	var patch model.FilterPatch
	for flag, dst := range map[string]**string{
		"module":     &patch.Module,
		"category":   &patch.Category,
		"difficulty": &patch.Difficulty,
		"status":     &patch.Status,
	} {
		if a.cmd.Flags().Changed(flag) || a.v.IsSet(flag) {
			v := a.v.GetString(flag)
			*dst = &v
		}
	}
	a.templates.SetFilters(patch)
	for page := a.v.GetInt("page"); page > 1; page-- {
		a.templates.LoadMore()
	}

	res := a.templates.List(ctx)
	if !res.Success {
		return failure(res)
	}
	snap := a.templates.Snapshot()
	if a.wantJSON() {
		return a.printJSON(model.TemplatePage{Items: res.Data, Total: snap.Total})
	}
	if len(res.Data) == 0 {
		a.println(appI18n.T(ctx, "NoTemplates"))
		return nil
	}

	rows := make([][]string, 0, len(res.Data))
	for _, t := range res.Data {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Module + " / " + t.Category + " / " + t.Topic,
			appI18n.Label(ctx, "Difficulty", string(t.Difficulty), string(t.Difficulty)),
			display.TypeIcon(t.Type) + " " + appI18n.Label(ctx, "Type", string(t.Type), display.TypeLabel(t.Type)),
			display.StatusBadge(t.Status).Icon + " " + appI18n.Label(ctx, "Status", string(t.Status), display.StatusBadge(t.Status).Label),
			display.Truncate(t.Format, display.DefaultTruncate),
		})
	}
	if err := a.table([]string{"ID", "TAXONOMY", "DIFFICULTY", "TYPE", "STATUS", "FORMAT"}, rows); err != nil {
		return err
	}
	a.println(appI18n.Tp(ctx, "TemplatesShown", len(res.Data), map[string]any{"Total": snap.Total}))
	return nil
}

func (a *app) printTemplate(t model.Template) error {
	if a.wantJSON() {
		return a.printJSON(t)
	}
	ctx := a.ctx()
	rows := [][]string{
		{"ID", strconv.FormatInt(t.ID, 10)},
		{"Module", t.Module},
		{"Category", t.Category},
		{"Topic", t.Topic},
		{"Subtopic", t.Subtopic},
		{"Format", t.Format},
		{"Difficulty", appI18n.Label(ctx, "Difficulty", string(t.Difficulty), string(t.Difficulty))},
		{"Type", appI18n.Label(ctx, "Type", string(t.Type), display.TypeLabel(t.Type))},
		{"Status", appI18n.Label(ctx, "Status", string(t.Status), display.StatusBadge(t.Status).Label)},
		{"Grade level", strconv.Itoa(t.GradeLevel)},
		{"Updated", t.UpdatedAt.Format("2006-01-02 15:04")},
	}
	if err := a.table([]string{"FIELD", "VALUE"}, rows); err != nil {
		return err
	}
	a.println("\n# dynamic_question\n" + t.DynamicQuestion)
	a.println("\n# logical_answer\n" + t.LogicalAnswer)
	return nil
}

func runTemplatesGet(a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res := a.templates.Get(a.ctx(), id)
	if !res.Success {
		return failure(res)
	}
	return a.printTemplate(res.Data)
}

func runTemplatesCreate(a *app, _ []string) error {
	var draft model.TemplateDraft
	if err := a.readJSON(a.v.GetString("file"), &draft); err != nil {
		return err
	}
	res := a.templates.Create(a.ctx(), draft)
	if !res.Success {
		return failure(res)
	}
	if a.wantJSON() {
		return a.printJSON(res.Data)
	}
	a.println(appI18n.Td(a.ctx(), "TemplateCreated", map[string]any{"ID": res.Data.ID}))
	printLint(a, validate.LintTemplate(draft))
	return nil
}

func runTemplatesUpdate(a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	var patch model.TemplatePatch
	if err := a.readJSON(a.v.GetString("file"), &patch); err != nil {
		return err
	}
	res := a.templates.Update(a.ctx(), id, patch)
	if !res.Success {
		return failure(res)
	}
	if a.wantJSON() {
		return a.printJSON(res.Data)
	}
	a.println(appI18n.Td(a.ctx(), "TemplateUpdated", map[string]any{"ID": id}))
	return nil
}

func runTemplatesDelete(a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res := a.templates.Delete(a.ctx(), id)
	if !res.Success {
		return failure(res)
	}
	a.println(appI18n.Td(a.ctx(), "TemplateDeleted", map[string]any{"ID": id}))
	return nil
}

func runTemplatesPreview(a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res := a.templates.Preview(a.ctx(), id, a.v.GetInt("count"))
	if !res.Success {
		return failure(res)
	}
	if a.wantJSON() {
		return a.printJSON(res.Data)
	}
	for i, s := range res.Data {
		a.println(fmt.Sprintf("%d. %s", i+1, s.Question))
		for _, o := range s.Options {
			a.println("   - " + o)
		}
		a.println(fmt.Sprintf("   answer: %v", s.Answer))
	}
	return nil
}

func runTemplatesLint(a *app, _ []string) error {
	var draft model.TemplateDraft
	if err := a.readJSON(a.v.GetString("file"), &draft); err != nil {
		return err
	}
	draft = validate.SanitizeTemplate(draft)
	errs := validate.TemplateForm(draft)
	issues := validate.LintTemplate(draft)
	if a.wantJSON() {
		return a.printJSON(map[string]any{"valid": errs.Valid(), "field_errors": errs, "issues": issues})
	}
	for _, f := range errs.Fields() {
		a.println(f + ": " + errs[f])
	}
	printLint(a, issues)
	if errs.Valid() && len(issues) == 0 {
		a.println(appI18n.T(a.ctx(), "ScriptLooksFine"))
	}
	if !errs.Valid() {
		return errors.New("draft is not valid")
	}
	return nil
}

func printLint(a *app, issues map[string][]validate.LintIssue) {
	for _, field := range []string{validate.FieldDynamicQuestion, validate.FieldLogicalAnswer} {
		for _, issue := range issues[field] {
			a.println(field + " " + issue.String() + ": " + issue.Text)
		}
	}
}

func runTemplatesDraft(a *app, _ []string) error {
	c := a.drafter()
	if c == nil {
		return errors.New("--llm-url is required for drafting")
	}
	var draft model.TemplateDraft
	if err := a.readJSON(a.v.GetString("file"), &draft); err != nil {
		return err
	}
	out, err := c.DraftScripts(a.ctx(), validate.SanitizeTemplate(draft))
	if err != nil {
		return err
	}
	if a.wantJSON() {
		return a.printJSON(out)
	}
	a.println("# dynamic_question\n" + out.DynamicQuestion)
	a.println("\n# logical_answer\n" + out.LogicalAnswer)
	if out.Notes != "" {
		a.println("\n# " + out.Notes)
	}
	printLint(a, out.Issues)
	return nil
}
