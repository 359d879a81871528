package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/store"
)

func newJobService() *JobService {
	return NewJobService(store.NewMemory())
}

func submitJob(t *testing.T, svc *JobService, userID string) *model.GenerationJob {
	t.Helper()
	job, err := svc.Submit(context.Background(), userID, &model.DesignGenerateRequest{
		OriginalImage: "https://example.com/hand.jpg",
		Settings: model.DesignSettings{
			Shape:     model.ShapeAlmond,
			Length:    model.LengthMedium,
			Finish:    model.FinishGlossy,
			BaseColor: "nude pink",
		},
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return job
}

func TestSubmit_StartsPending(t *testing.T) {
	svc := newJobService()
	job := submitJob(t, svc, "user-1")

	if job.Status != model.JobStatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}
	if job.AutoSaved {
		t.Error("new job must not be auto-saved")
	}
}

func TestTransitions_HappyPath(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")

	processing, err := svc.MarkProcessing(ctx, job.ID)
	if err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	if processing.Status != model.JobStatusProcessing {
		t.Errorf("expected processing, got %s", processing.Status)
	}

	completed, err := svc.MarkCompleted(ctx, job.ID, []string{"img-1", "img-2"})
	if err != nil {
		t.Fatalf("mark completed failed: %v", err)
	}
	if completed.Status != model.JobStatusCompleted {
		t.Errorf("expected completed, got %s", completed.Status)
	}
	if len(completed.ResultImages) != 2 {
		t.Errorf("expected 2 result images, got %d", len(completed.ResultImages))
	}
	if completed.CompletedAt == nil {
		t.Error("expected completedAt to be set")
	}
}

func TestTransitions_PendingToCompletedSkipsProcessing(t *testing.T) {
	svc := newJobService()
	job := submitJob(t, svc, "user-1")

	completed, err := svc.MarkCompleted(context.Background(), job.ID, []string{"img"})
	if err != nil {
		t.Fatalf("direct completion failed: %v", err)
	}
	if completed.Status != model.JobStatusCompleted {
		t.Errorf("expected completed, got %s", completed.Status)
	}
}

func TestTransitions_FirstCompletionWins(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")

	if _, err := svc.MarkCompleted(ctx, job.ID, []string{"first"}); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}

	// Duplicate provider callback with different results changes nothing.
	second, err := svc.MarkCompleted(ctx, job.ID, []string{"second-a", "second-b"})
	if err != nil {
		t.Fatalf("duplicate completion errored: %v", err)
	}
	if len(second.ResultImages) != 1 || second.ResultImages[0] != "first" {
		t.Errorf("duplicate completion overwrote results: %v", second.ResultImages)
	}
}

func TestTransitions_FailedStaysFailed(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")

	if _, err := svc.MarkFailed(ctx, job.ID, "provider down"); err != nil {
		t.Fatalf("mark failed errored: %v", err)
	}

	// Late completion after the failure is absorbed.
	late, err := svc.MarkCompleted(ctx, job.ID, []string{"late"})
	if err != nil {
		t.Fatalf("late completion errored: %v", err)
	}
	if late.Status != model.JobStatusFailed {
		t.Errorf("expected failed, got %s", late.Status)
	}
	if len(late.ResultImages) != 0 {
		t.Errorf("failed job gained results: %v", late.ResultImages)
	}
	if late.Error == nil || *late.Error != "provider down" {
		t.Errorf("expected original failure reason, got %v", late.Error)
	}
}

func TestTransitions_NoBackwardMove(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")

	if _, err := svc.MarkCompleted(ctx, job.ID, []string{"img"}); err != nil {
		t.Fatal(err)
	}

	// Terminal states absorb repeated marks without erroring.
	got, err := svc.MarkProcessing(ctx, job.ID)
	if err != nil {
		t.Fatalf("late processing mark errored: %v", err)
	}
	if got.Status != model.JobStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestConcurrentCompleteAndFail_OneTerminalState(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.MarkCompleted(ctx, job.ID, []string{"img"})
	}()
	go func() {
		defer wg.Done()
		_, _ = svc.MarkFailed(ctx, job.ID, "timeout")
	}()
	wg.Wait()

	final, err := svc.Get(ctx, "user-1", job.ID)
	if err != nil {
		t.Fatal(err)
	}
	switch final.Status {
	case model.JobStatusCompleted:
		if len(final.ResultImages) == 0 || final.Error != nil {
			t.Errorf("inconsistent completed job: %+v", final)
		}
	case model.JobStatusFailed:
		if len(final.ResultImages) != 0 || final.Error == nil {
			t.Errorf("inconsistent failed job: %+v", final)
		}
	default:
		t.Errorf("job ended in non-terminal state %s", final.Status)
	}
}

func TestGet_ChecksOwnership(t *testing.T) {
	svc := newJobService()
	job := submitJob(t, svc, "user-1")

	if _, err := svc.Get(context.Background(), "intruder", job.ID); !errors.Is(err, model.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestPoll_PartitionsJobs(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()

	pending := submitJob(t, svc, "user-1")
	processing := submitJob(t, svc, "user-1")
	completed := submitJob(t, svc, "user-1")
	consumed := submitJob(t, svc, "user-1")
	failed := submitJob(t, svc, "user-1")
	otherUser := submitJob(t, svc, "user-2")

	if _, err := svc.MarkProcessing(ctx, processing.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkCompleted(ctx, completed.ID, []string{"img"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkCompleted(ctx, consumed.ID, []string{"img"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Consume(ctx, "user-1", consumed.ID, noopSave); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkFailed(ctx, failed.ID, "boom"); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.Poll(ctx, "user-1")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	if len(resp.ActiveJobs) != 2 {
		t.Errorf("expected 2 active jobs, got %d", len(resp.ActiveJobs))
	}
	for _, a := range resp.ActiveJobs {
		if a.JobID != pending.ID && a.JobID != processing.ID {
			t.Errorf("unexpected active job %s", a.JobID)
		}
		if a.JobID == otherUser.ID {
			t.Error("poll leaked another user's job")
		}
	}

	if len(resp.CompletedJobs) != 1 || resp.CompletedJobs[0].JobID != completed.ID {
		t.Errorf("expected only the unconsumed completed job, got %+v", resp.CompletedJobs)
	}
}

func noopSave(_ context.Context, job *model.GenerationJob) ([]string, error) {
	return job.ResultImages, nil
}

func TestConsume_ExactlyOnce(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")
	if _, err := svc.MarkCompleted(ctx, job.ID, []string{"img-1"}); err != nil {
		t.Fatal(err)
	}

	var saves int32
	save := func(_ context.Context, j *model.GenerationJob) ([]string, error) {
		atomic.AddInt32(&saves, 1)
		return j.ResultImages, nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*model.DesignSaveResponse, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.Consume(ctx, "user-1", job.ID, save)
			if err != nil {
				t.Errorf("consume failed: %v", err)
				return
			}
			results[i] = resp
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&saves); n != 1 {
		t.Fatalf("save ran %d times, want exactly 1", n)
	}

	var winners, losers int
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Saved {
			winners++
		}
		if r.AlreadySaved {
			losers++
		}
	}
	if winners != 1 || losers != callers-1 {
		t.Errorf("expected 1 winner and %d losers, got %d/%d", callers-1, winners, losers)
	}
}

func TestConsume_RejectsNonCompleted(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")

	if _, err := svc.Consume(ctx, "user-1", job.ID, noopSave); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for pending job, got %v", err)
	}
}

func TestConsume_RejectsOtherUser(t *testing.T) {
	svc := newJobService()
	ctx := context.Background()
	job := submitJob(t, svc, "user-1")
	if _, err := svc.MarkCompleted(ctx, job.ID, []string{"img"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Consume(ctx, "intruder", job.ID, noopSave); !errors.Is(err, model.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}

	// The failed attempt must not consume the job.
	resp, err := svc.Consume(ctx, "user-1", job.ID, noopSave)
	if err != nil {
		t.Fatalf("owner consume failed: %v", err)
	}
	if !resp.Saved {
		t.Error("owner should still be able to consume")
	}
}
