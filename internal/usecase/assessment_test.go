package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

var transcript = domain.Transcript{ID: "tr-1", Text: "Interviewer: hi. Candidate: hello."}

func TestExtractQuestions_ParsesProseWrappedArray(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{questions: func(int) (string, error) { return threeQuestions, nil }}
	qas, ok := newTestPipeline(f, PipelineOptions{}).ExtractQuestions(context.Background(), transcript, "Backend engineer")
	require.True(t, ok)
	require.Len(t, qas, 3)
	assert.Equal(t, "Tell me about Go channels", qas[0].Question)
	assert.Equal(t, "What is a race?", qas[2].Question)
	assert.Equal(t, 1, f.Calls("questions"))
}

func TestExtractQuestions_EmptyIsRetried(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{questions: func(n int) (string, error) {
		if n < 3 {
			return "[]", nil
		}
		return threeQuestions, nil
	}}
	qas, ok := newTestPipeline(f, PipelineOptions{}).ExtractQuestions(context.Background(), transcript, "")
	require.True(t, ok)
	assert.Len(t, qas, 3)
	assert.Equal(t, 3, f.Calls("questions"))
}

func TestExtractQuestions_BlankQuestionsDropped(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{questions: func(n int) (string, error) {
		if n == 1 {
			return `[{"question":"  ","answer":"a"},{"question":"","answer":"b"}]`, nil
		}
		return `[{"question":"","answer":"x"},{"question":"Why Go?","answer":"Simplicity"},{"question":"\t","answer":"y"}]`, nil
	}}
	qas, ok := newTestPipeline(f, PipelineOptions{AllowEmptyExtraction: true}).ExtractQuestions(context.Background(), transcript, "")
	require.True(t, ok)
	assert.Equal(t, []domain.QAPair{{Question: "Why Go?", Answer: "Simplicity"}}, qas)
	assert.Equal(t, 2, f.Calls("questions"))
}

func TestExtractQuestions_ExhaustedReturnsEmpty(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{questions: func(int) (string, error) { return "no questions found", nil }}
	qas, ok := newTestPipeline(f, PipelineOptions{}).ExtractQuestions(context.Background(), transcript, "")
	assert.False(t, ok)
	assert.NotNil(t, qas)
	assert.Empty(t, qas)
	assert.Equal(t, 10, f.Calls("questions"))
}

func TestExtractQuestions_AllowEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reply     string
		wantCalls int
		wantOK    bool
	}{
		{name: "explicit empty array accepted", reply: "There were none: [ ]", wantCalls: 1, wantOK: true},
		{name: "unparseable still retried", reply: "[{broken", wantCalls: 10, wantOK: false},
		{name: "missing array still retried", reply: "nothing", wantCalls: 10, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeAssistant{questions: func(int) (string, error) { return tt.reply, nil }}
			qas, ok := newTestPipeline(f, PipelineOptions{AllowEmptyExtraction: true}).ExtractQuestions(context.Background(), transcript, "")
			assert.Equal(t, tt.wantOK, ok)
			assert.Empty(t, qas)
			assert.Equal(t, tt.wantCalls, f.Calls("questions"))
		})
	}
}

func TestExtractQuestions_DropsIncompleteRecords(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{questions: func(int) (string, error) {
		return `[{"question":"q1","answer":"a1"},{"answer":"orphan"},{"question":"q2"}]`, nil
	}}
	qas, ok := newTestPipeline(f, PipelineOptions{}).ExtractQuestions(context.Background(), transcript, "")
	require.True(t, ok)
	assert.Equal(t, []domain.QAPair{{Question: "q1", Answer: "a1"}, {Question: "q2"}}, qas)
}

func TestGradeCandidate_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		replies   []string
		wantGrade domain.Grade
		wantSkill string
		wantOK    bool
		wantCalls int
	}{
		{name: "integer grade", replies: []string{`[{"grade":5,"skill":"go"}]`}, wantGrade: 5, wantSkill: "Go", wantOK: true, wantCalls: 1},
		{name: "numeric string grade", replies: []string{`[{"grade":"2","skill":"SQL"}]`}, wantGrade: 2, wantSkill: "SQL", wantOK: true, wantCalls: 1},
		{name: "out of range retried", replies: []string{`[{"grade":7,"skill":"Go"}]`, `[{"grade":4,"skill":"Go"}]`}, wantGrade: 4, wantSkill: "Go", wantOK: true, wantCalls: 2},
		{name: "non numeric retried", replies: []string{`[{"grade":"great","skill":"Go"}]`, `[{"grade":1,"skill":"Go"}]`}, wantGrade: 1, wantSkill: "Go", wantOK: true, wantCalls: 2},
		{name: "missing skill retried", replies: []string{`[{"grade":3}]`, `[{"grade":3,"skill":" "}]`, `[{"grade":3,"skill":"Go"}]`}, wantGrade: 3, wantSkill: "Go", wantOK: true, wantCalls: 3},
		{name: "skill outside list kept", replies: []string{`[{"grade":3,"skill":"Leadership"}]`}, wantGrade: 3, wantSkill: "Leadership", wantOK: true, wantCalls: 1},
		{name: "never valid yields sentinel", replies: []string{`<grade>4</grade>`}, wantGrade: domain.SentinelGrade, wantSkill: domain.UnknownSkill, wantOK: false, wantCalls: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeAssistant{candidate: func(_ string, n int) (string, error) {
				if n > len(tt.replies) {
					return tt.replies[len(tt.replies)-1], nil
				}
				return tt.replies[n-1], nil
			}}
			qa := domain.QAPair{Question: "q", Answer: "a"}
			rec, ok := newTestPipeline(f, PipelineOptions{}).GradeCandidate(context.Background(), transcript, "jd", []string{"Go", "SQL"}, qa)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantGrade, rec.Grade)
			assert.Equal(t, tt.wantSkill, rec.Skill)
			assert.Equal(t, "q", rec.Question)
			assert.Equal(t, "a", rec.Answer)
			assert.Equal(t, tt.wantCalls, f.Calls("candidate"))
		})
	}
}

func TestGradeInterviewer_UsesInterviewerRubric(t *testing.T) {
	t.Parallel()

	prompt := buildGradingPrompt(interviewerRole, config.DefaultCatalog(), "jd", []string{"Go"}, domain.QAPair{Question: "q"})
	assert.Contains(t, prompt, "5: Very Necessary\n4: Critical\n3: Moderately Important\n2: Optional\n1: Unnecessary")
	assert.Contains(t, prompt, "interviewer's question")
	assert.Contains(t, prompt, `[{"grade":<grade>,"skill":<skill>}]`)

	f := &fakeAssistant{interviewer: func(string, int) (string, error) { return `[{"grade":5,"skill":"Go"}]`, nil }}
	rec, ok := newTestPipeline(f, PipelineOptions{}).GradeInterviewer(context.Background(), transcript, "jd", []string{"Go"}, domain.QAPair{Question: "q"})
	require.True(t, ok)
	assert.Equal(t, domain.Grade(5), rec.Grade)
	assert.Equal(t, 1, f.Calls("interviewer"))
}

func TestGradeCandidates_PreservesOrderAndBoundsConcurrency(t *testing.T) {
	t.Parallel()

	qas := make([]domain.QAPair, 8)
	for i := range qas {
		qas[i] = domain.QAPair{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)}
	}
	f := &fakeAssistant{delay: 10 * time.Millisecond, candidate: func(q string, _ int) (string, error) {
		var i int
		_, _ = fmt.Sscanf(q, "q%d", &i)
		return fmt.Sprintf(`[{"grade":%d,"skill":"Go"}]`, i%5+1), nil
	}}
	p := newTestPipeline(f, PipelineOptions{GradingConcurrency: 3})

	recs, ok := p.GradeCandidates(context.Background(), transcript, "jd", []string{"Go"}, qas)
	require.True(t, ok)
	require.Len(t, recs, len(qas))
	for i, r := range recs {
		assert.Equal(t, qas[i].Question, r.Question)
		assert.Equal(t, domain.Grade(i%5+1), r.Grade)
	}
	assert.LessOrEqual(t, f.maxInFlight.Load(), int32(3))
}

func TestGradeCandidates_DegradedRecordKeepsPosition(t *testing.T) {
	t.Parallel()

	qas := []domain.QAPair{{Question: "good"}, {Question: "bad"}, {Question: "fine"}}
	f := &fakeAssistant{candidate: func(q string, _ int) (string, error) {
		if q == "bad" {
			return "", &domain.UpstreamError{Provider: "fake", StatusCode: 503}
		}
		return `[{"grade":4,"skill":"Go"}]`, nil
	}}
	recs, ok := newTestPipeline(f, PipelineOptions{}).GradeCandidates(context.Background(), transcript, "", nil, qas)
	assert.False(t, ok)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.GradedRecord{Question: "bad", Skill: domain.UnknownSkill, Grade: 0}, recs[1])
	assert.Equal(t, domain.Grade(4), recs[2].Grade)
	assert.Equal(t, 10, f.Calls("candidate:bad"))
	assert.Equal(t, 1, f.Calls("candidate:good"))
}

func TestGradeCandidates_Empty(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{}
	recs, ok := newTestPipeline(f, PipelineOptions{}).GradeCandidates(context.Background(), transcript, "", nil, nil)
	assert.True(t, ok)
	assert.Empty(t, recs)
	assert.Zero(t, f.Calls("candidate"))
}

func TestGrade_PermanentErrorStopsEarly(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{candidate: func(string, int) (string, error) {
		return "", &domain.UpstreamError{Provider: "fake", StatusCode: 401, Body: "bad key"}
	}}
	rec, ok := newTestPipeline(f, PipelineOptions{}).GradeCandidate(context.Background(), transcript, "", nil, domain.QAPair{Question: "q"})
	assert.False(t, ok)
	assert.Equal(t, domain.UnknownSkill, rec.Skill)
	assert.Equal(t, 1, f.Calls("candidate"))
}

func TestTagSkills(t *testing.T) {
	t.Parallel()

	qas := []domain.QAPair{{Question: "q0"}, {Question: "q1"}, {Question: "q2"}}

	t.Run("matched by index", func(t *testing.T) {
		t.Parallel()
		f := &fakeAssistant{skillTags: func(int) (string, error) {
			return `[{"index":2,"skill":"sql"},{"index":0,"skill":"Go"},{"index":1,"skill":"Go"}]`, nil
		}}
		recs, ok := newTestPipeline(f, PipelineOptions{}).TagSkills(context.Background(), transcript, []string{"Go", "SQL"}, qas)
		require.True(t, ok)
		assert.Equal(t, []string{"Go", "Go", "SQL"}, []string{recs[0].Skill, recs[1].Skill, recs[2].Skill})
		assert.Equal(t, "q2", recs[2].Question)
	})

	t.Run("partial coverage retried then unknown", func(t *testing.T) {
		t.Parallel()
		f := &fakeAssistant{skillTags: func(int) (string, error) {
			return `[{"index":0,"skill":"Go"},{"index":7,"skill":"Go"}]`, nil
		}}
		recs, ok := newTestPipeline(f, PipelineOptions{}).TagSkills(context.Background(), transcript, []string{"Go"}, qas)
		assert.False(t, ok)
		require.Len(t, recs, 3)
		for _, r := range recs {
			assert.Equal(t, domain.UnknownSkill, r.Skill)
		}
		assert.Equal(t, 10, f.Calls("skill_tags"))
	})

	t.Run("no questions no call", func(t *testing.T) {
		t.Parallel()
		f := &fakeAssistant{}
		recs, ok := newTestPipeline(f, PipelineOptions{}).TagSkills(context.Background(), transcript, nil, nil)
		assert.True(t, ok)
		assert.Empty(t, recs)
		assert.Zero(t, f.Calls("skill_tags"))
	})
}

func TestSummaries(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{summarize: func(format string, n int) (string, error) {
		if format == "paragraph" && n == 1 {
			return "   ", nil
		}
		return "  " + format + " summary \n", nil
	}}
	p := newTestPipeline(f, PipelineOptions{})

	para, ok := p.SummarizeParagraph(context.Background(), transcript)
	require.True(t, ok)
	assert.Equal(t, "paragraph summary", para)
	assert.Equal(t, 2, f.Calls("summary:paragraph"))

	topics, ok := p.SummarizeTopics(context.Background(), transcript)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(topics, "**<topic header>**"))

	qs, ok := p.SummarizeQuestions(context.Background(), transcript)
	require.True(t, ok)
	assert.Contains(t, qs, "<Interview Question>")
}

func TestFixedQA(t *testing.T) {
	t.Parallel()

	f := &fakeAssistant{answer: func(n int) ([]domain.QAPair, error) {
		if n == 1 {
			return nil, &domain.UpstreamError{Provider: "fake", StatusCode: 429}
		}
		return []domain.QAPair{{Question: "what role?", Answer: "SRE"}}, nil
	}}
	start := time.Now()
	pairs, ok := newTestPipeline(f, PipelineOptions{}).FixedQA(context.Background(), transcript)
	require.True(t, ok)
	assert.Equal(t, "SRE", pairs[0].Answer)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.Equal(t, 2, f.Calls("fixed_qa"))
}
