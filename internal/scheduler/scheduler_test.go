package scheduler

import (
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("reminder", "0 9,12,19 * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("winner", "0 0 1 * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("bad", "not a cron", func() {}); err == nil {
		t.Error("Expected error for invalid expression")
	}

	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].Next.Before(jobs[i-1].Next) {
			t.Errorf("jobs not ordered by next run: %+v", jobs)
		}
	}
}

func TestSchedulerWithLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	s := NewScheduler(WithLocation(loc))
	defer s.Stop()

	if err := s.AddJob("winner", "0 0 1 * *", func() {}); err != nil {
		t.Fatal(err)
	}
	next := s.Jobs()[0].Next.In(loc)
	if next.Day() != 1 || next.Hour() != 0 || next.Minute() != 0 {
		t.Errorf("next run %v is not midnight on the 1st in %v", next, loc)
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	ran := make(chan struct{}, 1)
	if err := s.AddJob("tick", "@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
