// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
	"github.com/fairyhunter13/ai-interview-auditor/pkg/textx"
)

// Pipeline names, used for metrics, logs and Report.Degraded.
const (
	PipelineQuestions          = "questions"
	PipelineCandidateGrading   = "candidate_grading"
	PipelineInterviewerGrading = "interviewer_grading"
	PipelineSkillTags          = "skill_tags"
	PipelineSummaryParagraph   = "summary_paragraph"
	PipelineSummaryTopics      = "summary_topics"
	PipelineSummaryQuestions   = "summary_questions"
	PipelineFixedQA            = "fixed_qa"
)

const defaultGradingConcurrency = 10

// PipelineOptions tunes the assessment pipeline.
type PipelineOptions struct {
	// AllowEmptyExtraction accepts an explicit empty question list instead of retrying it.
	AllowEmptyExtraction bool
	// GradingConcurrency bounds the per-record grading fan-out.
	GradingConcurrency int
}

// Pipeline runs the individual analysis tasks over one transcript. Every
// variant retries through the Caller and falls back to a default value; the
// boolean result reports whether the value came from the model.
type Pipeline struct {
	assistant          domain.Assistant
	caller             *ai.Caller
	catalog            config.PromptCatalog
	allowEmpty         bool
	gradingConcurrency int
}

// NewPipeline constructs a Pipeline.
func NewPipeline(assistant domain.Assistant, caller *ai.Caller, catalog config.PromptCatalog, opts PipelineOptions) *Pipeline {
	if opts.GradingConcurrency <= 0 {
		opts.GradingConcurrency = defaultGradingConcurrency
	}
	return &Pipeline{
		assistant:          assistant,
		caller:             caller,
		catalog:            catalog,
		allowEmpty:         opts.AllowEmptyExtraction,
		gradingConcurrency: opts.GradingConcurrency,
	}
}

func (p *Pipeline) begin(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := otel.Tracer("usecase.pipeline").Start(ctx, "pipeline."+name)
	span.SetAttributes(attribute.String("pipeline", name))
	ctx = obsctx.WithPipeline(ctx, name)
	start := time.Now()
	return ctx, func() {
		observability.ObservePipeline(name, time.Since(start))
		span.End()
	}
}

// ExtractQuestions pulls the interviewer's questions and the candidate's
// answers out of the transcript. An empty list is retried unless the
// pipeline allows empty extraction and the model returned an explicit [].
func (p *Pipeline) ExtractQuestions(ctx context.Context, target domain.Transcript, jobDescription string) ([]domain.QAPair, bool) {
	ctx, end := p.begin(ctx, PipelineQuestions)
	defer end()

	prompt := buildQuestionsPrompt(jobDescription)
	return ai.Call(ctx, p.caller, PipelineQuestions, []domain.QAPair{}, func(ctx context.Context) ([]domain.QAPair, error) {
		reply, err := p.assistant.RunTask(ctx, prompt, "", target)
		if err != nil {
			return nil, err
		}
		qas := dropBlankQuestions(ai.DecodeRecords[domain.QAPair](ai.FilterComplete(ai.ExtractArray[map[string]any](reply), "question")))
		if len(qas) == 0 {
			if p.allowEmpty && isEmptyArray(reply) {
				return []domain.QAPair{}, nil
			}
			return nil, fmt.Errorf("op=pipeline.questions: %w", domain.ErrEmptyResult)
		}
		return qas, nil
	})
}

func dropBlankQuestions(qas []domain.QAPair) []domain.QAPair {
	out := qas[:0]
	for _, qa := range qas {
		if strings.TrimSpace(qa.Question) != "" {
			out = append(out, qa)
		}
	}
	return out
}

// isEmptyArray reports whether the reply's bracketed payload is exactly [].
func isEmptyArray(reply string) bool {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start == -1 || end < start {
		return false
	}
	return strings.TrimSpace(reply[start+1:end]) == ""
}

type gradeReply struct {
	Grade domain.Grade `json:"grade"`
	Skill string       `json:"skill"`
}

// GradeCandidate grades one answer against the candidate rubric.
func (p *Pipeline) GradeCandidate(ctx context.Context, target domain.Transcript, jobDescription string, skills []string, qa domain.QAPair) (domain.GradedRecord, bool) {
	return p.gradeOne(ctx, candidateRole, target, jobDescription, skills, qa)
}

// GradeInterviewer grades one question against the interviewer rubric.
func (p *Pipeline) GradeInterviewer(ctx context.Context, target domain.Transcript, jobDescription string, skills []string, qa domain.QAPair) (domain.GradedRecord, bool) {
	return p.gradeOne(ctx, interviewerRole, target, jobDescription, skills, qa)
}

// GradeCandidates grades every answer concurrently, preserving order.
func (p *Pipeline) GradeCandidates(ctx context.Context, target domain.Transcript, jobDescription string, skills []string, qas []domain.QAPair) ([]domain.GradedRecord, bool) {
	ctx, end := p.begin(ctx, PipelineCandidateGrading)
	defer end()
	return p.gradeAll(ctx, candidateRole, target, jobDescription, skills, qas)
}

// GradeInterviewers grades every question concurrently, preserving order.
func (p *Pipeline) GradeInterviewers(ctx context.Context, target domain.Transcript, jobDescription string, skills []string, qas []domain.QAPair) ([]domain.GradedRecord, bool) {
	ctx, end := p.begin(ctx, PipelineInterviewerGrading)
	defer end()
	return p.gradeAll(ctx, interviewerRole, target, jobDescription, skills, qas)
}

func (p *Pipeline) gradeAll(ctx context.Context, role gradingRole, target domain.Transcript, jd string, skills []string, qas []domain.QAPair) ([]domain.GradedRecord, bool) {
	out := make([]domain.GradedRecord, len(qas))
	var degraded atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(p.gradingConcurrency)
	for i, qa := range qas {
		g.Go(func() error {
			rec, ok := p.gradeOne(ctx, role, target, jd, skills, qa)
			out[i] = rec
			if !ok {
				degraded.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, !degraded.Load()
}

func (p *Pipeline) gradeOne(ctx context.Context, role gradingRole, target domain.Transcript, jd string, skills []string, qa domain.QAPair) (domain.GradedRecord, bool) {
	prompt := buildGradingPrompt(role, p.catalog, jd, skills, qa)
	return ai.Call(ctx, p.caller, role.name, domain.SentinelRecord(qa), func(ctx context.Context) (domain.GradedRecord, error) {
		reply, err := p.assistant.RunTask(ctx, prompt, "", target)
		if err != nil {
			return domain.GradedRecord{}, err
		}
		grades := ai.DecodeRecords[gradeReply](ai.FilterComplete(ai.ExtractArray[map[string]any](reply), "grade", "skill"))
		if len(grades) == 0 {
			return domain.GradedRecord{}, fmt.Errorf("op=pipeline.%s: %w", role.name, domain.ErrEmptyResult)
		}
		g := grades[0]
		if !g.Grade.Usable() {
			return domain.GradedRecord{}, fmt.Errorf("op=pipeline.%s: grade %d outside rubric: %w", role.name, g.Grade, domain.ErrSchemaInvalid)
		}
		skill := textx.CanonicalSkill(g.Skill, skills)
		if skill == "" {
			return domain.GradedRecord{}, fmt.Errorf("op=pipeline.%s: empty skill: %w", role.name, domain.ErrSchemaInvalid)
		}
		return domain.GradedRecord{Question: qa.Question, Answer: qa.Answer, Skill: skill, Grade: g.Grade}, nil
	})
}

type skillTag struct {
	Index *int   `json:"index"`
	Skill string `json:"skill"`
}

// TagSkills tags every question with one skill in a single call. A reply
// must cover every question index; otherwise it is retried, and on
// exhaustion every record is tagged unknown.
func (p *Pipeline) TagSkills(ctx context.Context, target domain.Transcript, skills []string, qas []domain.QAPair) ([]domain.GradedRecord, bool) {
	ctx, end := p.begin(ctx, PipelineSkillTags)
	defer end()

	if len(qas) == 0 {
		return []domain.GradedRecord{}, true
	}
	def := make([]domain.GradedRecord, len(qas))
	for i, qa := range qas {
		def[i] = domain.SentinelRecord(qa)
	}
	prompt := buildSkillTagPrompt(skills, qas)
	return ai.Call(ctx, p.caller, PipelineSkillTags, def, func(ctx context.Context) ([]domain.GradedRecord, error) {
		reply, err := p.assistant.RunTask(ctx, prompt, "", target)
		if err != nil {
			return nil, err
		}
		tags := ai.DecodeRecords[skillTag](ai.FilterComplete(ai.ExtractArray[map[string]any](reply), "index", "skill"))
		if len(tags) == 0 {
			return nil, fmt.Errorf("op=pipeline.skill_tags: %w", domain.ErrEmptyResult)
		}
		out := make([]domain.GradedRecord, len(qas))
		covered := 0
		for _, t := range tags {
			if t.Index == nil || *t.Index < 0 || *t.Index >= len(qas) || out[*t.Index].Skill != "" {
				continue
			}
			skill := textx.CanonicalSkill(t.Skill, skills)
			if skill == "" {
				continue
			}
			qa := qas[*t.Index]
			out[*t.Index] = domain.GradedRecord{Question: qa.Question, Answer: qa.Answer, Skill: skill}
			covered++
		}
		if covered != len(qas) {
			return nil, fmt.Errorf("op=pipeline.skill_tags: tagged %d of %d questions: %w", covered, len(qas), domain.ErrSchemaInvalid)
		}
		return out, nil
	})
}

// SummarizeParagraph writes a fact-based paragraph about the candidate.
func (p *Pipeline) SummarizeParagraph(ctx context.Context, target domain.Transcript) (string, bool) {
	return p.summarize(ctx, PipelineSummaryParagraph, p.catalog.Summaries.Paragraph, target)
}

// SummarizeTopics writes a summary grouped under topic headers.
func (p *Pipeline) SummarizeTopics(ctx context.Context, target domain.Transcript) (string, bool) {
	return p.summarize(ctx, PipelineSummaryTopics, p.catalog.Summaries.Topics, target)
}

// SummarizeQuestions lists each interview question with the candidate's response.
func (p *Pipeline) SummarizeQuestions(ctx context.Context, target domain.Transcript) (string, bool) {
	return p.summarize(ctx, PipelineSummaryQuestions, p.catalog.Summaries.Questions, target)
}

func (p *Pipeline) summarize(ctx context.Context, name string, sp config.SummaryPrompt, target domain.Transcript) (string, bool) {
	ctx, end := p.begin(ctx, name)
	defer end()

	return ai.Call(ctx, p.caller, name, "", func(ctx context.Context) (string, error) {
		reply, err := p.assistant.Summarize(ctx, sp.Context, sp.AnswerFormat, target)
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return "", fmt.Errorf("op=pipeline.%s: %w", name, domain.ErrEmptyResult)
		}
		return reply, nil
	})
}

// FixedQA answers the catalog's standard questions.
func (p *Pipeline) FixedQA(ctx context.Context, target domain.Transcript) ([]domain.QAPair, bool) {
	ctx, end := p.begin(ctx, PipelineFixedQA)
	defer end()

	questions := p.catalog.FixedQuestions
	return ai.Call(ctx, p.caller, PipelineFixedQA, []domain.QAPair{}, func(ctx context.Context) ([]domain.QAPair, error) {
		pairs, err := p.assistant.AnswerQuestions(ctx, questions, target)
		if err != nil {
			return nil, err
		}
		if len(pairs) == 0 {
			return nil, fmt.Errorf("op=pipeline.fixed_qa: %w", domain.ErrEmptyResult)
		}
		return pairs, nil
	})
}
