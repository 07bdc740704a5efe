package service

import (
	"context"
	"testing"
	"time"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:00", want: "0 0 9 * * *"},
		{in: "23:59", want: "0 59 23 * * *"},
		{in: "7:05", want: "0 5 7 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "12:00:00", wantErr: true},
	}
	for _, tt := range tests {
		got, err := buildDailySpec(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("buildDailySpec(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("buildDailySpec(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestBuildIntervalSpec(t *testing.T) {
	if _, err := buildIntervalSpec(0); err == nil {
		t.Error("expected error for zero interval")
	}
	if got, _ := buildIntervalSpec(5 * time.Hour); got != "@every 18000s" {
		t.Errorf("spec = %q", got)
	}
	if got, _ := buildIntervalSpec(time.Millisecond); got != "@every 1s" {
		t.Errorf("spec = %q", got)
	}
}

func TestSchedulerRunsJobsWithContext(t *testing.T) {
	s := NewSchedulerService(time.UTC, nil)
	if _, err := s.ScheduleDaily("bad", func(context.Context) {}); err == nil {
		t.Fatal("expected error for bad daily time")
	}
	if _, err := s.ScheduleDaily("08:30", func(context.Context) {}); err != nil {
		t.Fatalf("ScheduleDaily: %v", err)
	}

	type ctxKey struct{}
	ran := make(chan interface{}, 1)
	if _, err := s.ScheduleInterval(time.Second, func(ctx context.Context) {
		select {
		case ran <- ctx.Value(ctxKey{}):
		default:
		}
	}); err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	if s.Jobs() != 2 {
		t.Fatalf("Jobs = %d, want 2", s.Jobs())
	}

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "scheduler"))
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	select {
	case v := <-ran:
		if v != "scheduler" {
			t.Errorf("job context value = %v", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("interval job did not run")
	}
}
