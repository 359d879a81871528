package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nailglow/api/internal/client"
	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/service"
	"github.com/nailglow/api/internal/store"
	"github.com/nailglow/api/internal/websocket"
)

// fakeArtClient scripts the provider round trip.
type fakeArtClient struct {
	images    []string
	submitErr error
	pollErr   error
	submits   int
}

func (f *fakeArtClient) SubmitRender(_ context.Context, _ *client.RenderRequest) (*client.RenderSubmitResponse, error) {
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &client.RenderSubmitResponse{TaskID: "task-1", Status: "queued"}, nil
}

func (f *fakeArtClient) GetRenderStatus(_ context.Context, taskID string) (*client.RenderResult, error) {
	return &client.RenderResult{TaskID: taskID, Status: "completed", Images: f.images}, nil
}

func (f *fakeArtClient) PollRenderStatus(ctx context.Context, taskID string, _, _ time.Duration) (*client.RenderResult, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.GetRenderStatus(ctx, taskID)
}

func (f *fakeArtClient) IsConfigured() bool { return true }

type workerFixture struct {
	worker  *DesignWorker
	jobs    *service.JobService
	credits *service.CreditService
	store   *store.Memory
}

func newWorkerFixture(t *testing.T, art client.ArtGenerator) *workerFixture {
	t.Helper()
	mem := store.NewMemory()
	jobs := service.NewJobService(mem)
	credits := service.NewCreditService(mem, 10)
	hub := websocket.NewHub()
	go hub.Run()
	w := NewDesignWorker(jobs, credits, art, hub, time.Millisecond, time.Second)
	return &workerFixture{worker: w, jobs: jobs, credits: credits, store: mem}
}

// startJob authorizes credits and creates a pending job, mirroring the
// submission path, and returns the asynq task the queue would deliver.
func (fx *workerFixture) startJob(t *testing.T, userID string, quantity int) (*model.GenerationJob, *asynq.Task) {
	t.Helper()
	ctx := context.Background()

	res, err := fx.credits.Authorize(ctx, userID, quantity)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	job, err := fx.jobs.Submit(ctx, userID, &model.DesignGenerateRequest{
		OriginalImage: "https://example.com/hand.jpg",
		Settings: model.DesignSettings{
			Shape:     model.ShapeOval,
			Length:    model.LengthShort,
			Finish:    model.FinishMatte,
			BaseColor: "lilac",
		},
		Quantity: quantity,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	payload, err := json.Marshal(model.DesignJobTaskPayload{JobID: job.ID, Reservation: *res})
	if err != nil {
		t.Fatal(err)
	}
	return job, asynq.NewTask(service.TaskTypeDesignRender, payload)
}

func TestProcessTask_SuccessCompletesAndCommits(t *testing.T) {
	art := &fakeArtClient{images: []string{"img-1", "img-2"}}
	fx := newWorkerFixture(t, art)
	ctx := context.Background()

	job, task := fx.startJob(t, "user-1", 2)

	if err := fx.worker.ProcessTask(ctx, task); err != nil {
		t.Fatalf("process task failed: %v", err)
	}

	final, err := fx.jobs.Get(ctx, "user-1", job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != model.JobStatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if len(final.ResultImages) != 2 {
		t.Errorf("expected 2 images, got %d", len(final.ResultImages))
	}

	// Credits stay spent: 10 - 2 = 8, commit does not restore.
	balance, _ := fx.credits.GetBalance(ctx, "user-1")
	if balance.Credits != 8 {
		t.Errorf("expected 8 credits after commit, got %d", balance.Credits)
	}
}

func TestProcessTask_FatalFailureRefundsAndSkipsRetry(t *testing.T) {
	art := &fakeArtClient{pollErr: fmt.Errorf("%w: nsfw content", model.ErrGenerationFailed)}
	fx := newWorkerFixture(t, art)
	ctx := context.Background()

	job, task := fx.startJob(t, "user-1", 2)

	err := fx.worker.ProcessTask(ctx, task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("fatal failure must skip retry, got %v", err)
	}

	final, _ := fx.jobs.Get(ctx, "user-1", job.ID)
	if final.Status != model.JobStatusFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	if final.Error == nil {
		t.Error("expected failure reason on job")
	}

	balance, _ := fx.credits.GetBalance(ctx, "user-1")
	if balance.Credits != 10 {
		t.Errorf("expected full refund, got %d", balance.Credits)
	}
}

func TestProcessTask_DuplicateDeliveryIsIdempotent(t *testing.T) {
	art := &fakeArtClient{images: []string{"img-1"}}
	fx := newWorkerFixture(t, art)
	ctx := context.Background()

	job, task := fx.startJob(t, "user-1", 1)

	if err := fx.worker.ProcessTask(ctx, task); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := fx.worker.ProcessTask(ctx, task); err != nil {
		t.Fatalf("duplicate delivery errored: %v", err)
	}

	if art.submits != 1 {
		t.Errorf("duplicate delivery re-rendered: %d submits", art.submits)
	}

	final, _ := fx.jobs.Get(ctx, "user-1", job.ID)
	if final.Status != model.JobStatusCompleted || len(final.ResultImages) != 1 {
		t.Errorf("job state corrupted by duplicate delivery: %+v", final)
	}

	balance, _ := fx.credits.GetBalance(ctx, "user-1")
	if balance.Credits != 9 {
		t.Errorf("duplicate delivery changed the balance: %d", balance.Credits)
	}
}

func TestProcessTask_EmptyResultIsFatal(t *testing.T) {
	art := &fakeArtClient{images: nil}
	fx := newWorkerFixture(t, art)
	ctx := context.Background()

	job, task := fx.startJob(t, "user-1", 1)

	err := fx.worker.ProcessTask(ctx, task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("empty result must be fatal, got %v", err)
	}

	final, _ := fx.jobs.Get(ctx, "user-1", job.ID)
	if final.Status != model.JobStatusFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	balance, _ := fx.credits.GetBalance(ctx, "user-1")
	if balance.Credits != 10 {
		t.Errorf("expected refund, got %d", balance.Credits)
	}
}

func TestProcessTask_BadPayloadSkipsRetry(t *testing.T) {
	fx := newWorkerFixture(t, &fakeArtClient{})

	task := asynq.NewTask(service.TaskTypeDesignRender, []byte("not json"))
	err := fx.worker.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("malformed payload must skip retry, got %v", err)
	}
}

func TestBuildRenderPrompt_IncludesSettings(t *testing.T) {
	job := &model.GenerationJob{
		Settings: model.DesignSettings{
			Shape:     model.ShapeStiletto,
			Length:    model.LengthExtra,
			Finish:    model.FinishShimmer,
			BaseColor: "midnight blue",
			Theme:     "constellations",
		},
	}
	prompt := buildRenderPrompt(job)
	for _, want := range []string{"stiletto", "extra_long", "shimmer", "midnight blue", "constellations"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q: %s", want, prompt)
		}
	}
}
