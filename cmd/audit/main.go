// Command audit runs one analysis round in-process and prints the text report.
//
//	audit -transcript interview.txt -jd "Backend engineer" -skills Go,SQL
//	audit -transcript-id 6a1f... -section candidate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/render"
	"github.com/fairyhunter13/ai-interview-auditor/internal/app"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	"github.com/fairyhunter13/ai-interview-auditor/internal/usecase"
	"github.com/fairyhunter13/ai-interview-auditor/pkg/textx"
)

type options struct {
	transcriptPath string
	transcriptID   string
	jobDescription string
	skills         []string
	section        string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var (
		o      options
		skills string
	)
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.transcriptPath, "transcript", "", "path to a plain-text transcript")
	fs.StringVar(&o.transcriptID, "transcript-id", "", "AssemblyAI transcript id")
	fs.StringVar(&o.jobDescription, "jd", "", "job description")
	fs.StringVar(&skills, "skills", "", "comma-separated skills to tag")
	fs.StringVar(&o.section, "section", "", "print only one section: "+strings.Join(render.Sections, ", "))
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if (o.transcriptPath == "") == (o.transcriptID == "") {
		return options{}, errors.New("exactly one of -transcript or -transcript-id is required")
	}
	if o.section != "" && !render.ValidSection(o.section) {
		return options{}, fmt.Errorf("unknown section %q", o.section)
	}
	o.skills = textx.SplitSkills(skills)
	return o, nil
}

// loadTranscript reads the file or fetches the provider text for the id.
func loadTranscript(ctx context.Context, o options, tr domain.Transcriber) (domain.Transcript, error) {
	if o.transcriptPath != "" {
		b, err := os.ReadFile(o.transcriptPath)
		if err != nil {
			return domain.Transcript{}, fmt.Errorf("read transcript: %w", err)
		}
		text := textx.SanitizeText(string(b))
		if text == "" {
			return domain.Transcript{}, errors.New("transcript file is empty")
		}
		return domain.Transcript{Text: text}, nil
	}
	text, err := tr.GetTranscriptText(ctx, o.transcriptID)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("fetch transcript %s: %w", o.transcriptID, err)
	}
	return domain.Transcript{ID: o.transcriptID, Text: text}, nil
}

func audit(ctx context.Context, o options, tr domain.Transcriber, d *usecase.Dispatcher, w io.Writer) error {
	target, err := loadTranscript(ctx, o, tr)
	if err != nil {
		return err
	}
	report := d.Run(ctx, usecase.RunInput{
		Transcript:     target,
		JobDescription: o.jobDescription,
		Skills:         o.skills,
	})
	return render.Text(w, report, o.section)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.NewLogger(stderr, cfg))

	rdb, err := app.NewRedisClient(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer func(c *redis.Client) { _ = c.Close() }(rdb)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, running without the shared rate limiter", slog.Any("error", err))
			rdb = nil
		}
	}
	transcriber, assistant := app.BuildAI(cfg, rdb)
	dispatcher, _, err := app.BuildDispatcher(cfg, assistant)
	if err != nil {
		return err
	}
	return audit(ctx, opts, transcriber, dispatcher, stdout)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}
}
