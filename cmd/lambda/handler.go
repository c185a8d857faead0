package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/engine"
)

type runner interface {
	RunDue(ctx context.Context) (map[domain.MonitorID]engine.Outcome, error)
}

type handler struct {
	runner runner
	log    *zap.Logger
}

// Summary is the invocation result shown in the Lambda console.
type Summary struct {
	Total   int `json:"total"`
	Checked int `json:"checked"`
	Down    int `json:"down"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

func (h *handler) Handle(ctx context.Context, ev events.CloudWatchEvent) (Summary, error) {
	outs, err := h.runner.RunDue(ctx)
	if err != nil {
		h.log.Error("lambda_pass_error", zap.String("event_id", ev.ID), zap.Error(err))
		return Summary{}, err
	}
	s := summarize(outs)
	h.log.Info("lambda_pass_done",
		zap.String("event_id", ev.ID),
		zap.Int("total", s.Total),
		zap.Int("down", s.Down),
		zap.Int("failed", s.Failed),
	)
	return s, nil
}

func summarize(outs map[domain.MonitorID]engine.Outcome) Summary {
	s := Summary{Total: len(outs)}
	for _, o := range outs {
		switch o.Status {
		case engine.StatusChecked:
			s.Checked++
			if o.Verdict == domain.VerdictDown {
				s.Down++
			}
		case engine.StatusFailed:
			s.Failed++
		case engine.StatusSkipped:
			s.Skipped++
		case engine.StatusInvalid:
			s.Invalid++
		}
	}
	return s
}
