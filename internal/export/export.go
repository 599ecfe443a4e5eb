// Package export writes the monthly CSV reports read by the finance team.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smallbiznis/patronage/internal/clock"
	"github.com/smallbiznis/patronage/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Source is what a run reads from.
type Source interface {
	LatestTransactionAt(ctx context.Context) (time.Time, bool, error)
	Query(ctx context.Context, query string, params map[string]any) (*Table, error)
}

type Options struct {
	// RootDir must exist; the run is skipped otherwise.
	RootDir   string
	StartDate string
	EndDate   string
}

// Summary describes a finished run. SkipReason is set when nothing was written.
type Summary struct {
	Range      Range
	Dir        string
	Files      []string
	Uploaded   []string
	SkipReason string
}

type Params struct {
	fx.In

	Source    Source
	Uploader  Uploader `optional:"true"`
	AppConfig config.Config
	Clock     clock.Clock
	Log       *zap.Logger
}

type Runner struct {
	source     Source
	uploader   Uploader
	websiteURL string
	clock      clock.Clock
	log        *zap.Logger
}

func NewRunner(p Params) *Runner {
	return &Runner{
		source:     p.Source,
		uploader:   p.Uploader,
		websiteURL: p.AppConfig.Platform.WebsiteURL,
		clock:      p.Clock,
		log:        p.Log.Named("export"),
	}
}

func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	period, err := MonthlyRange(opts.StartDate, opts.EndDate, r.clock.Now())
	if err != nil {
		return nil, err
	}
	summary := &Summary{Range: period, Dir: OutputDir(opts.RootDir, period)}
	log := r.log.With(
		zap.Time("start_date", period.Start),
		zap.Time("end_date", period.End),
		zap.Int("days", period.Days()),
	)

	if info, err := os.Stat(opts.RootDir); err != nil || !info.IsDir() {
		summary.SkipReason = fmt.Sprintf("export root %q is not a directory", opts.RootDir)
		log.Warn("monthly export skipped", zap.String("reason", summary.SkipReason))
		return summary, nil
	}

	latest, ok, err := r.source.LatestTransactionAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest transaction: %w", err)
	}
	if !ok || latest.Before(period.End) {
		summary.SkipReason = "the last transaction is older than the end date, the data is not recent enough"
		log.Warn("monthly export skipped",
			zap.String("reason", summary.SkipReason),
			zap.Time("latest_transaction_at", latest),
		)
		return summary, nil
	}

	if err := os.MkdirAll(summary.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	params := map[string]any{
		"start_date":  period.Start,
		"end_date":    period.End,
		"website_url": r.websiteURL,
	}
	var runErr error
	for _, report := range Reports {
		filename, uploaded, err := r.writeReport(ctx, opts.RootDir, summary.Dir, report, params)
		if err != nil {
			log.Error("report failed", zap.String("report", report.Filename), zap.Error(err))
			runErr = errors.Join(runErr, fmt.Errorf("%s: %w", report.Filename, err))
			continue
		}
		summary.Files = append(summary.Files, filename)
		if uploaded {
			summary.Uploaded = append(summary.Uploaded, filename)
		}
		log.Info("report written", zap.String("file", filename))
	}
	return summary, runErr
}

func (r *Runner) writeReport(ctx context.Context, root, dir string, report Report, params map[string]any) (string, bool, error) {
	table, err := r.source.Query(ctx, report.Query, params)
	if err != nil {
		return "", false, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		return "", false, err
	}
	filename := filepath.Join(dir, report.Filename)
	if err := os.WriteFile(filename, buf.Bytes(), 0o644); err != nil {
		return "", false, err
	}

	if r.uploader == nil {
		return filename, false, nil
	}
	key, err := filepath.Rel(root, filename)
	if err != nil {
		return "", false, err
	}
	if err := r.uploader.Upload(ctx, filepath.ToSlash(key), bytes.NewReader(buf.Bytes())); err != nil {
		return "", false, err
	}
	return filename, true, nil
}
