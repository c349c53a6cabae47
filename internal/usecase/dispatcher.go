package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

// RunInput is everything one dispatch round needs.
type RunInput struct {
	Transcript     domain.Transcript
	JobDescription string
	Skills         []string
}

// Dispatcher runs question extraction, then every dependent pipeline
// concurrently, and joins the results into a Report.
type Dispatcher struct {
	pipeline           *Pipeline
	roundConcurrency   int
	summarizeQuestions bool
}

// NewDispatcher constructs a Dispatcher. roundConcurrency bounds how many
// pipelines run at once; values <= 0 run all of them together.
func NewDispatcher(p *Pipeline, roundConcurrency int, summarizeQuestions bool) *Dispatcher {
	return &Dispatcher{pipeline: p, roundConcurrency: roundConcurrency, summarizeQuestions: summarizeQuestions}
}

type roundTask struct {
	name string
	run  func(context.Context) bool
}

// Run executes one round. It always returns a complete report: pipelines
// that gave up contribute their defaults and are listed in Report.Degraded.
// Cancelling ctx does not abort the round.
func (d *Dispatcher) Run(ctx context.Context, in RunInput) domain.Report {
	ctx = context.WithoutCancel(ctx)
	lg := obsctx.LoggerFromContext(ctx)
	p := d.pipeline

	report := domain.Report{}
	var degraded []string

	questions, ok := p.ExtractQuestions(ctx, in.Transcript, in.JobDescription)
	report.Questions = questions
	if !ok {
		degraded = append(degraded, PipelineQuestions)
	}
	lg.Info("questions extracted", slog.Int("count", len(questions)), slog.Bool("degraded", !ok))

	tasks := []roundTask{
		{name: PipelineCandidateGrading, run: func(ctx context.Context) bool {
			var ok bool
			report.CandidateGrades, ok = p.GradeCandidates(ctx, in.Transcript, in.JobDescription, in.Skills, questions)
			return ok
		}},
		{name: PipelineInterviewerGrading, run: func(ctx context.Context) bool {
			var ok bool
			report.InterviewerGrades, ok = p.GradeInterviewers(ctx, in.Transcript, in.JobDescription, in.Skills, questions)
			return ok
		}},
		{name: PipelineSkillTags, run: func(ctx context.Context) bool {
			var ok bool
			report.SkillTags, ok = p.TagSkills(ctx, in.Transcript, in.Skills, questions)
			return ok
		}},
		{name: PipelineSummaryParagraph, run: func(ctx context.Context) bool {
			var ok bool
			report.SummaryParagraph, ok = p.SummarizeParagraph(ctx, in.Transcript)
			return ok
		}},
		{name: PipelineSummaryTopics, run: func(ctx context.Context) bool {
			var ok bool
			report.SummaryTopics, ok = p.SummarizeTopics(ctx, in.Transcript)
			return ok
		}},
		{name: PipelineFixedQA, run: func(ctx context.Context) bool {
			var ok bool
			report.FixedQA, ok = p.FixedQA(ctx, in.Transcript)
			return ok
		}},
	}
	if d.summarizeQuestions {
		tasks = append(tasks, roundTask{name: PipelineSummaryQuestions, run: func(ctx context.Context) bool {
			var ok bool
			report.SummaryQuestions, ok = p.SummarizeQuestions(ctx, in.Transcript)
			return ok
		}})
	}

	results := make([]bool, len(tasks))
	g := new(errgroup.Group)
	limit := d.roundConcurrency
	if limit <= 0 {
		limit = len(tasks)
	}
	g.SetLimit(limit)
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = t.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for i, t := range tasks {
		if !results[i] {
			degraded = append(degraded, t.name)
		}
	}
	report.Degraded = degraded

	report.CandidateScore = domain.QualityScore(report.CandidateGrades)
	report.InterviewerScore = domain.QualityScore(report.InterviewerGrades)
	observability.ObserveScores(report.CandidateScore, report.InterviewerScore)

	lg.Info("round completed",
		slog.Float64("candidate_score", report.CandidateScore),
		slog.Float64("interviewer_score", report.InterviewerScore),
		slog.Any("degraded", degraded))
	return report
}
