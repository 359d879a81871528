package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/store"
)

// fakeEnqueuer records enqueued tasks instead of touching redis.
type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newDesignService(grant int, enqueuer TaskEnqueuer) (*DesignService, *store.Memory, *CreditService, *JobService) {
	mem := store.NewMemory()
	credits := NewCreditService(mem, grant)
	jobs := NewJobService(mem)
	svc := NewDesignService(credits, jobs, enqueuer, nil, 1)
	return svc, mem, credits, jobs
}

func validGenerateRequest() *model.DesignGenerateRequest {
	return &model.DesignGenerateRequest{
		OriginalImage: "https://example.com/hand.jpg",
		Settings: model.DesignSettings{
			Shape:     model.ShapeCoffin,
			Length:    model.LengthLong,
			Finish:    model.FinishChrome,
			BaseColor: "emerald",
			Theme:     "gold foil accents",
		},
		Quantity: 3,
	}
}

func TestStartDesign_ChargesAndEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, credits, _ := newDesignService(5, enq)
	ctx := context.Background()

	resp, err := svc.StartDesign(ctx, "user-1", validGenerateRequest())
	if err != nil {
		t.Fatalf("start design failed: %v", err)
	}
	if resp.JobID == "" || resp.Status != model.JobStatusPending {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.CreditsRemaining == nil || *resp.CreditsRemaining != 2 {
		t.Errorf("expected 2 credits remaining, got %v", resp.CreditsRemaining)
	}

	if len(enq.tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(enq.tasks))
	}
	task := enq.tasks[0]
	if task.Type() != TaskTypeDesignRender {
		t.Errorf("task type = %s", task.Type())
	}

	var payload model.DesignJobTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("bad task payload: %v", err)
	}
	if payload.JobID != resp.JobID {
		t.Errorf("payload jobId = %s, want %s", payload.JobID, resp.JobID)
	}
	if payload.Reservation.Amount != 3 || payload.Reservation.State != model.ReservationPending {
		t.Errorf("unexpected reservation in payload: %+v", payload.Reservation)
	}

	balance, _ := credits.GetBalance(ctx, "user-1")
	if balance.Credits != 2 {
		t.Errorf("expected 3 credits reserved from 5, got balance %d", balance.Credits)
	}

	// The payload copy must be settleable by whichever process consumes the
	// task, not just the authorizing one.
	if err := credits.Refund(ctx, &payload.Reservation); err != nil {
		t.Fatalf("refund via payload reservation failed: %v", err)
	}
	balance, _ = credits.GetBalance(ctx, "user-1")
	if balance.Credits != 5 {
		t.Errorf("expected refund via payload reservation to restore 5, got %d", balance.Credits)
	}
}

func TestStartDesign_InsufficientCredits(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, _, jobs := newDesignService(2, enq)
	ctx := context.Background()

	_, err := svc.StartDesign(ctx, "user-1", validGenerateRequest())
	if !errors.Is(err, model.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if len(enq.tasks) != 0 {
		t.Error("denied request must not enqueue a task")
	}

	poll, _ := jobs.Poll(ctx, "user-1")
	if len(poll.ActiveJobs) != 0 {
		t.Error("denied request must not create a job")
	}
}

func TestStartDesign_EnqueueFailureRefunds(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	svc, _, credits, jobs := newDesignService(5, enq)
	ctx := context.Background()

	resp, err := svc.StartDesign(ctx, "user-1", validGenerateRequest())
	if err == nil {
		t.Fatalf("expected enqueue error, got %+v", resp)
	}

	balance, _ := credits.GetBalance(ctx, "user-1")
	if balance.Credits != 5 {
		t.Errorf("expected full refund after enqueue failure, got %d", balance.Credits)
	}

	poll, _ := jobs.Poll(ctx, "user-1")
	if len(poll.ActiveJobs) != 0 {
		t.Error("job must be failed, not left active, after enqueue failure")
	}
}

func TestStartDesign_DefaultQuantity(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, credits, _ := newDesignService(5, enq)
	ctx := context.Background()

	req := validGenerateRequest()
	req.Quantity = 0
	if _, err := svc.StartDesign(ctx, "user-1", req); err != nil {
		t.Fatalf("start design failed: %v", err)
	}

	balance, _ := credits.GetBalance(ctx, "user-1")
	if balance.Credits != 4 {
		t.Errorf("zero quantity should default to one image, balance %d", balance.Credits)
	}
}

func TestSaveDesign_WithoutStorageKeepsProviderURLs(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc, _, _, jobs := newDesignService(5, enq)
	ctx := context.Background()

	resp, err := svc.StartDesign(ctx, "user-1", validGenerateRequest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jobs.MarkCompleted(ctx, resp.JobID, []string{"https://provider/img-1.png"}); err != nil {
		t.Fatal(err)
	}

	saved, err := svc.SaveDesign(ctx, "user-1", resp.JobID)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !saved.Saved || saved.AlreadySaved {
		t.Errorf("unexpected save response: %+v", saved)
	}
	if len(saved.AssetURLs) != 1 || saved.AssetURLs[0] != "https://provider/img-1.png" {
		t.Errorf("expected provider URL passthrough, got %v", saved.AssetURLs)
	}

	again, err := svc.SaveDesign(ctx, "user-1", resp.JobID)
	if err != nil {
		t.Fatalf("second save errored: %v", err)
	}
	if !again.AlreadySaved || again.Saved {
		t.Errorf("second save should report alreadySaved, got %+v", again)
	}
}
