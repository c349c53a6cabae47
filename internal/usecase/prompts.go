package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

const questionsPrompt = `You are reading the transcript of a job interview.

Here is the job description for that interview: <jd>%s</jd>

Please pull out the questions asked by the interviewer and the responses of the candidate.
Format the questions as if they were appearing on a test.

Return data in the following JSON format: [{"question":<question>,"answer":<answer>}].`

const gradingPrompt = `You are reading the transcript of a job interview.

Here is the job description for that interview: <jd>%s</jd>

Here is a question asked by the interviewer in the transcript: <question>%s</question>
Here is the candidate's answer: <answer>%s</answer>
Reference the transcript for a more complete understanding of the %s.

As %s, please grade %s with an integer grade based on the rubric below:
Rubric:
%s
Then, tag the %s as relating to one of the following skills: %s

Return data in the following JSON format: [{"grade":<grade>,"skill":<skill>}].`

const skillTagPrompt = `You are reading the transcript of a job interview.

Here are the questions asked by the interviewer, each with its index:
%s

Tag every question as relating to one of the following skills: %s

Return one entry per question in the following JSON format: [{"index":<index>,"skill":<skill>}].`

// gradingRole describes who is graded and against which rubric.
type gradingRole struct {
	name     string
	focus    string
	assessor string
	subject  string
	tagged   string
	rubric   func(config.PromptCatalog) []config.RubricAnchor
}

var (
	candidateRole = gradingRole{
		name:     PipelineCandidateGrading,
		focus:    "candidate's answer",
		assessor: "a candidate assessor",
		subject:  "the candidate's answer to the question",
		tagged:   "question and answer",
		rubric:   func(c config.PromptCatalog) []config.RubricAnchor { return c.CandidateRubric },
	}
	interviewerRole = gradingRole{
		name:     PipelineInterviewerGrading,
		focus:    "interviewer's question",
		assessor: "an interviewer assessor",
		subject:  "the interviewer's question",
		tagged:   "question",
		rubric:   func(c config.PromptCatalog) []config.RubricAnchor { return c.InterviewerRubric },
	}
)

func buildQuestionsPrompt(jd string) string {
	return fmt.Sprintf(questionsPrompt, jd)
}

func buildGradingPrompt(role gradingRole, catalog config.PromptCatalog, jd string, skills []string, qa domain.QAPair) string {
	var rubric strings.Builder
	for _, a := range role.rubric(catalog) {
		fmt.Fprintf(&rubric, "%d: %s\n", a.Grade, a.Label)
	}
	return fmt.Sprintf(gradingPrompt,
		jd, qa.Question, qa.Answer, role.focus,
		role.assessor, role.subject, rubric.String(),
		role.tagged, skillList(skills))
}

func buildSkillTagPrompt(skills []string, qas []domain.QAPair) string {
	type indexed struct {
		Index    int    `json:"index"`
		Question string `json:"question"`
	}
	items := make([]indexed, len(qas))
	for i, qa := range qas {
		items[i] = indexed{Index: i, Question: qa.Question}
	}
	b, _ := json.Marshal(items)
	return fmt.Sprintf(skillTagPrompt, string(b), skillList(skills))
}

func skillList(skills []string) string {
	if len(skills) == 0 {
		return "any skill relevant to the job description"
	}
	return strings.Join(skills, ", ")
}
