package httpserver

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	"github.com/fairyhunter13/ai-interview-auditor/internal/usecase"
)

// createSessionRequest is the body of POST /v1/sessions.
type createSessionRequest struct {
	UploadID       string   `json:"upload_id" validate:"omitempty,max=100"`
	MediaURL       string   `json:"media_url" validate:"omitempty,url,max=2048"`
	TranscriptID   string   `json:"transcript_id" validate:"omitempty,max=200"`
	TranscriptText string   `json:"transcript_text" validate:"omitempty,max=1000000"`
	JobDescription string   `json:"job_description" validate:"max=20000"`
	Skills         []string `json:"skills" validate:"max=100,dive,max=100"`
}

func (c createSessionRequest) input() usecase.CreateInput {
	return usecase.CreateInput{
		Source: domain.Source{
			UploadID:       strings.TrimSpace(c.UploadID),
			MediaURL:       strings.TrimSpace(c.MediaURL),
			TranscriptID:   strings.TrimSpace(c.TranscriptID),
			TranscriptText: c.TranscriptText,
		},
		JobDescription: c.JobDescription,
		Skills:         c.Skills,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New(validator.WithRequiredStructEnabled()) })
	return vld
}

// validateStruct returns a field -> failed tag map, or nil when v is valid.
func validateStruct(v any) map[string]string {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	out := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[toSnake(fe.Field())] = fe.Tag()
		}
		return out
	}
	out["_"] = err.Error()
	return out
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// validID reports whether id is safe to use as a session id.
func validID(id string) bool { return idPattern.MatchString(id) }

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
