package spam

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	jsoniter "github.com/json-iterator/go"
	obsmetrics "github.com/smallbiznis/patronage/internal/observability/metrics"
	"github.com/smallbiznis/patronage/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DefaultKeywords is the denylist applied to collective profile fields.
var DefaultKeywords = []string{"keto", "porn", "pills"}

const (
	FieldName            = "name"
	FieldWebsite         = "website"
	FieldDescription     = "description"
	FieldLongDescription = "longDescription"

	abuseChannel = "abuse"
)

// Content is the free-text part of a collective profile.
type Content struct {
	CollectiveID    snowflake.ID
	Slug            string
	Name            string
	Website         string
	Description     string
	LongDescription string
}

// Result lists matched keywords per field. An empty Warnings map means the
// content is clean.
type Result struct {
	CollectiveID snowflake.ID        `json:"collectiveId"`
	Warnings     map[string][]string `json:"warnings"`
}

func (r Result) Suspicious() bool { return len(r.Warnings) > 0 }

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	Log       *zap.Logger
	Notifier  slack.Provider
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

// Scanner holds no per-request state; one instance serves the whole process.
type Scanner struct {
	keywords      []string
	notifier      slack.Provider
	log           *zap.Logger
	metrics       *obsmetrics.Metrics
	notifyTimeout time.Duration
	inflight      sync.WaitGroup
}

func NewScanner(p Params) *Scanner {
	s := &Scanner{
		keywords:      DefaultKeywords,
		notifier:      p.Notifier,
		log:           p.Log.Named("spam.scanner"),
		metrics:       p.Metrics,
		notifyTimeout: 10 * time.Second,
	}
	if s.notifier == nil {
		s.notifier = &slack.NoOpProvider{}
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				s.Wait()
				return nil
			},
		})
	}
	return s
}

// SuspiciousKeywords returns the denylisted keywords contained in content.
// Matching is a case-sensitive substring test.
func (s *Scanner) SuspiciousKeywords(content string) []string {
	var found []string
	for _, keyword := range s.keywords {
		if strings.Contains(content, keyword) {
			found = append(found, keyword)
		}
	}
	return found
}

// CollectiveCheck scans a collective profile. When something matches, an alert
// is posted in the background; the caller never waits on it.
func (s *Scanner) CollectiveCheck(ctx context.Context, c Content) Result {
	result := Result{CollectiveID: c.CollectiveID, Warnings: map[string][]string{}}

	fields := []struct {
		name  string
		value string
	}{
		{FieldName, c.Name},
		{FieldWebsite, c.Website},
		{FieldDescription, c.Description},
		{FieldLongDescription, c.LongDescription},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if found := s.SuspiciousKeywords(field.value); len(found) > 0 {
			result.Warnings[field.name] = found
			s.metrics.RecordSpamDetection(ctx, field.name)
		}
	}

	if result.Suspicious() {
		s.notifyAsync(ctx, c, result)
	}
	return result
}

func (s *Scanner) notifyAsync(ctx context.Context, c Content, result Result) {
	message, err := alertMessage(c, result)
	if err != nil {
		s.log.Warn("failed to encode spam alert", zap.Error(err))
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.PostMessage(notifyCtx, abuseChannel, message); err != nil {
			s.metrics.RecordNotificationFailure(notifyCtx, "slack")
			s.log.Warn("spam alert not delivered",
				zap.String("collective_id", c.CollectiveID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until background alerts have finished.
func (s *Scanner) Wait() {
	s.inflight.Wait()
}

func alertMessage(c Content, result Result) (string, error) {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	target := c.Slug
	if target == "" {
		target = c.CollectiveID.String()
	}
	return fmt.Sprintf("*Suspicious collective data was submitted for collective:* %s\n```%s```", target, payload), nil
}
