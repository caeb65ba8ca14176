package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/qtadmin/internal/display"
	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/model"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run question generation jobs",
	}

	create := &cobra.Command{
		Use:   "create <template-id>",
		Short: "Queue a generation job for a template",
		Args:  cobra.ExactArgs(1),
		RunE:  run(runJobsCreate),
	}
	create.Flags().IntP("count", "c", 10, "Number of questions to generate")
	create.Flags().Bool("wait", false, "Wait for the job to finish")
	addWaitFlags(create)

	wait := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE:  run(runJobsWait),
	}
	addWaitFlags(wait)

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "get <job-id>",
			Short: "Show a generation job",
			Args:  cobra.ExactArgs(1),
			RunE:  run(runJobsGet),
		},
		wait,
	)
	return cmd
}

func addWaitFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", 2*time.Second, "Polling interval")
	cmd.Flags().Duration("max-wait", 10*time.Minute, "Give up after this long (0 = no limit)")
}

// jobGetter fetches a generation job.
type jobGetter interface {
	GetJob(ctx context.Context, id int64) (model.GenerationJob, error)
}

// waitForJob polls until the job reaches a terminal status. onChange is
// called whenever the status differs from the previous poll.
func waitForJob(ctx context.Context, jobs jobGetter, id int64, interval time.Duration, onChange func(model.GenerationJob)) (model.GenerationJob, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last model.JobStatus
	for {
		job, err := jobs.GetJob(ctx, id)
		if err != nil {
			return job, err
		}
		if job.Status != last {
			last = job.Status
			if onChange != nil {
				onChange(job)
			}
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("wait for job %d: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func runJobsCreate(a *app, args []string) error {
	templateID, err := parseID(args[0])
	if err != nil {
		return err
	}
	count := a.v.GetInt("count")
	if count <= 0 {
		return errors.New("--count must be positive")
	}
	ctx := a.ctx()
	job, err := a.client.CreateJob(ctx, model.JobRequest{TemplateID: templateID, Count: count})
	if err != nil {
		return err
	}
	if !a.v.GetBool("wait") {
		if a.wantJSON() {
			return a.printJSON(job)
		}
		a.println(appI18n.Td(ctx, "JobCreated", map[string]any{"ID": job.ID}))
		return nil
	}
	if !a.wantJSON() {
		a.println(appI18n.Td(ctx, "JobCreated", map[string]any{"ID": job.ID}))
	}
	return a.wait(job.ID)
}

func runJobsGet(a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	job, err := a.client.GetJob(a.ctx(), id)
	if err != nil {
		return err
	}
	return a.printJob(job)
}

func runJobsWait(a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return a.wait(id)
}

func (a *app) wait(id int64) error {
	ctx := a.ctx()
	if d := a.v.GetDuration("max-wait"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	job, err := waitForJob(ctx, a.client, id, a.v.GetDuration("interval"), func(j model.GenerationJob) {
		slog.Info("job status", "job_id", j.ID, "status", j.Status)
	})
	if err != nil {
		return err
	}
	if a.wantJSON() {
		return a.printJSON(job)
	}
	a.println(appI18n.Td(a.ctx(), "JobFinished", map[string]any{
		"ID":     job.ID,
		"Status": appI18n.Label(a.ctx(), "Job", string(job.Status), string(job.Status)),
	}))
	if job.Status == model.JobFailed {
		return fmt.Errorf("job %d failed: %s", job.ID, job.Error)
	}
	return nil
}

func (a *app) printJob(job model.GenerationJob) error {
	if a.wantJSON() {
		return a.printJSON(job)
	}
	ctx := a.ctx()
	rows := [][]string{
		{"ID", strconv.FormatInt(job.ID, 10)},
		{"Template", strconv.FormatInt(job.TemplateID, 10)},
		{"Count", strconv.Itoa(job.Count)},
		{"Status", appI18n.Label(ctx, "Job", string(job.Status), string(job.Status))},
	}
	if job.Error != "" {
		rows = append(rows, []string{"Error", job.Error})
	}
	return a.table([]string{"FIELD", "VALUE"}, rows)
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Browse generated questions",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List generated questions",
		RunE:  run(runQuestionsList),
	}
	f := list.Flags()
	f.Int64("template", 0, "Only questions from this template")
	f.Int64("job", 0, "Only questions from this job")
	f.Int("offset", 0, "Number of questions to skip")

	cmd.AddCommand(list, &cobra.Command{
		Use:   "get <id>",
		Short: "Show one generated question",
		Args:  cobra.ExactArgs(1),
		RunE:  run(runQuestionsGet),
	})
	return cmd
}

func runQuestionsList(a *app, _ []string) error {
	ctx := a.ctx()
	page, err := a.client.ListQuestions(ctx, model.QuestionFilter{
		TemplateID: a.v.GetInt64("template"),
		JobID:      a.v.GetInt64("job"),
		Limit:      a.v.GetInt("limit"),
		Offset:     a.v.GetInt("offset"),
	})
	if err != nil {
		return err
	}
	if a.wantJSON() {
		return a.printJSON(page)
	}
	rows := make([][]string, 0, len(page.Items))
	for _, q := range page.Items {
		rows = append(rows, []string{
			strconv.FormatInt(q.ID, 10),
			strconv.FormatInt(q.JobID, 10),
			display.Truncate(q.Question, 60),
			fmt.Sprint(q.Answer),
		})
	}
	if err := a.table([]string{"ID", "JOB", "QUESTION", "ANSWER"}, rows); err != nil {
		return err
	}
	a.println(appI18n.Tp(ctx, "QuestionsShown", page.Total, nil))
	return nil
}

func runQuestionsGet(a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	q, err := a.client.GetQuestion(a.ctx(), id)
	if err != nil {
		return err
	}
	if a.wantJSON() {
		return a.printJSON(q)
	}
	a.println(q.Question)
	for _, o := range q.Options {
		a.println("  - " + o)
	}
	a.println(fmt.Sprintf("answer: %v", q.Answer))
	return nil
}
