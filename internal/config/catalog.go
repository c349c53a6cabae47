package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// RubricAnchor names one point of an ordinal rubric.
type RubricAnchor struct {
	Grade int    `yaml:"grade"`
	Label string `yaml:"label"`
}

// SummaryPrompt is the context and answer format for one summary style.
type SummaryPrompt struct {
	Context      string `yaml:"context"`
	AnswerFormat string `yaml:"answer_format"`
}

// PromptCatalog holds the prompt material that is tuned without code changes.
type PromptCatalog struct {
	CandidateRubric   []RubricAnchor `yaml:"candidate_rubric"`
	InterviewerRubric []RubricAnchor `yaml:"interviewer_rubric"`
	Summaries         struct {
		Paragraph SummaryPrompt `yaml:"paragraph"`
		Topics    SummaryPrompt `yaml:"topics"`
		Questions SummaryPrompt `yaml:"questions"`
	} `yaml:"summaries"`
	FixedQuestions []domain.FixedQuestion `yaml:"fixed_questions"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() PromptCatalog {
	c, err := parseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from path, or returns the embedded one when path is empty.
func LoadCatalog(path string) (PromptCatalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return PromptCatalog{}, fmt.Errorf("op=config.LoadCatalog: %w", err)
	}
	// #nosec G304 -- operator-provided configuration file
	content, err := os.ReadFile(absPath)
	if err != nil {
		return PromptCatalog{}, fmt.Errorf("op=config.LoadCatalog: %w", err)
	}
	c, err := parseCatalog(content)
	if err != nil {
		return PromptCatalog{}, fmt.Errorf("op=config.LoadCatalog: %s: %w", absPath, err)
	}
	return c, nil
}

func parseCatalog(content []byte) (PromptCatalog, error) {
	var c PromptCatalog
	if err := yaml.Unmarshal(content, &c); err != nil {
		return PromptCatalog{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return PromptCatalog{}, err
	}
	sortRubric(c.CandidateRubric)
	sortRubric(c.InterviewerRubric)
	return c, nil
}

// Validate checks that both rubrics cover grades 1..5 exactly once and that
// at least one fixed question exists.
func (c PromptCatalog) Validate() error {
	for name, r := range map[string][]RubricAnchor{
		"candidate_rubric":   c.CandidateRubric,
		"interviewer_rubric": c.InterviewerRubric,
	} {
		if len(r) != int(domain.MaxGrade) {
			return fmt.Errorf("%s: want %d anchors, got %d: %w", name, domain.MaxGrade, len(r), domain.ErrInvalidArgument)
		}
		seen := map[int]bool{}
		for _, a := range r {
			if !domain.Grade(a.Grade).Usable() || seen[a.Grade] || a.Label == "" {
				return fmt.Errorf("%s: bad anchor %d %q: %w", name, a.Grade, a.Label, domain.ErrInvalidArgument)
			}
			seen[a.Grade] = true
		}
	}
	if len(c.FixedQuestions) == 0 {
		return fmt.Errorf("fixed_questions: empty: %w", domain.ErrInvalidArgument)
	}
	return nil
}

func sortRubric(r []RubricAnchor) {
	sort.Slice(r, func(i, j int) bool { return r[i].Grade > r[j].Grade })
}
