package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/engine"
)

type fakeRunner struct {
	outs  map[domain.MonitorID]engine.Outcome
	err   error
	calls int
}

func (f *fakeRunner) RunDue(context.Context) (map[domain.MonitorID]engine.Outcome, error) {
	f.calls++
	return f.outs, f.err
}

func TestHandle_Summarizes(t *testing.T) {
	r := &fakeRunner{outs: map[domain.MonitorID]engine.Outcome{
		"a": {Status: engine.StatusChecked, Verdict: domain.VerdictUp},
		"b": {Status: engine.StatusChecked, Verdict: domain.VerdictDown},
		"c": {Status: engine.StatusFailed},
		"d": {Status: engine.StatusSkipped, Reason: engine.ReasonInProgress},
		"e": {Status: engine.StatusInvalid},
	}}
	h := &handler{runner: r, log: zap.NewNop()}

	got, err := h.Handle(context.Background(), events.CloudWatchEvent{ID: "ev-1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := Summary{Total: 5, Checked: 2, Down: 1, Failed: 1, Skipped: 1, Invalid: 1}
	if got != want || r.calls != 1 {
		t.Fatalf("got %+v (calls=%d), want %+v", got, r.calls, want)
	}
}

func TestHandle_PassError(t *testing.T) {
	r := &fakeRunner{err: errors.New("list monitors: connection refused")}
	h := &handler{runner: r, log: zap.NewNop()}
	if _, err := h.Handle(context.Background(), events.CloudWatchEvent{}); err == nil {
		t.Fatalf("expected error to reach the Lambda runtime")
	}
}
