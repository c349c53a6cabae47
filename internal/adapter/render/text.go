// Package render formats session reports as plain text for terminals and
// the text/plain report endpoint.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

// Section identifiers accepted by Text.
const (
	SectionParagraph   = "paragraph"
	SectionTopics      = "topics"
	SectionQuestions   = "questions"
	SectionFixedQA     = "fixed_qa"
	SectionCandidate   = "candidate"
	SectionInterviewer = "interviewer"
	SectionSkills      = "skills"
)

// Sections lists every section in display order.
var Sections = []string{
	SectionParagraph,
	SectionTopics,
	SectionQuestions,
	SectionFixedQA,
	SectionCandidate,
	SectionInterviewer,
	SectionSkills,
}

const divider = "~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~ ~"

// ValidSection reports whether s names a known section. Empty means all.
func ValidSection(s string) bool {
	if s == "" {
		return true
	}
	for _, v := range Sections {
		if v == s {
			return true
		}
	}
	return false
}

// Text writes the report. When section is empty every section is written.
func Text(w io.Writer, r domain.Report, section string) error {
	if !ValidSection(section) {
		return fmt.Errorf("op=render.text: unknown section %q: %w", section, domain.ErrInvalidArgument)
	}
	var b strings.Builder
	for _, s := range Sections {
		if section != "" && s != section {
			continue
		}
		if s == SectionQuestions && section == "" && r.SummaryQuestions == "" {
			continue
		}
		writeSection(&b, s, r)
	}
	if section == "" && len(r.Degraded) > 0 {
		fmt.Fprintf(&b, "Degraded: %s\n", strings.Join(r.Degraded, ", "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeSection(b *strings.Builder, s string, r domain.Report) {
	switch s {
	case SectionParagraph:
		heading(b, "Paragraph Summary")
		b.WriteString(orNone(r.SummaryParagraph) + "\n\n")
	case SectionTopics:
		heading(b, "Topic Summary")
		b.WriteString(orNone(r.SummaryTopics) + "\n\n")
	case SectionQuestions:
		heading(b, "Interviewer Questions")
		b.WriteString(orNone(r.SummaryQuestions) + "\n\n")
	case SectionFixedQA:
		heading(b, "Basic Question-Answer")
		if len(r.FixedQA) == 0 {
			b.WriteString("(none)\n")
		}
		for _, qa := range r.FixedQA {
			fmt.Fprintf(b, "%s\nAnswer: %s\n\n", qa.Question, qa.Answer)
		}
		b.WriteString("\n")
	case SectionCandidate:
		heading(b, "Candidate Assessment")
		for _, g := range r.CandidateGrades {
			fmt.Fprintf(b, "%s\nQuestion: %s\nAnswer: %s\nSkill: %s\nGrade: %d\n", divider, g.Question, g.Answer, g.Skill, g.Grade)
		}
		score(b, r.CandidateScore)
	case SectionInterviewer:
		heading(b, "Interviewer Assessment")
		for _, g := range r.InterviewerGrades {
			fmt.Fprintf(b, "%s\nQuestion: %s\nGrade: %d\nSkill: %s\n", divider, g.Question, g.Grade, g.Skill)
		}
		score(b, r.InterviewerScore)
	case SectionSkills:
		heading(b, "Skill Tags")
		if len(r.SkillTags) == 0 {
			b.WriteString("(none)\n")
		}
		for _, t := range r.SkillTags {
			fmt.Fprintf(b, "[%s] %s\n", t.Skill, t.Question)
		}
		b.WriteString("\n")
	}
}

func heading(b *strings.Builder, title string) {
	fmt.Fprintf(b, "== %s ==\n", title)
}

func score(b *strings.Builder, s float64) {
	fmt.Fprintf(b, "%s\nQuality Score: %.1f\nQuality score formula: (total points)/(5 * # of graded questions)\n\n", divider, domain.Percent(s))
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
