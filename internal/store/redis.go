package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nailglow/api/internal/model"
)

// Redis implements JobStore, CreditStore and SiteStore on top of a single
// Redis instance. Records are stored as JSON blobs; the atomic paths use
// WATCH-based optimistic transactions.
type Redis struct {
	client *redis.Client
}

const txRetries = 5

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func jobKey(jobID string) string          { return fmt.Sprintf("job:%s", jobID) }
func userJobsKey(userID string) string    { return fmt.Sprintf("user:%s:jobs", userID) }
func balanceKey(userID string) string     { return fmt.Sprintf("balance:%s", userID) }
func reservationKey(id string) string     { return fmt.Sprintf("reservation:%s", id) }
func siteKey(siteID string) string        { return fmt.Sprintf("site:%s", siteID) }
func versionKey(siteID, id string) string { return fmt.Sprintf("site:%s:version:%s", siteID, id) }
func pointerKey(siteID string) string     { return fmt.Sprintf("site:%s:pointer", siteID) }

func (r *Redis) getJSON(ctx context.Context, key string, dst any, missing error) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return missing
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

func (r *Redis) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, 0).Err()
}

// Jobs

func (r *Redis) CreateJob(ctx context.Context, job *model.GenerationJob) error {
	if err := r.setJSON(ctx, jobKey(job.ID), job); err != nil {
		return err
	}
	return r.client.SAdd(ctx, userJobsKey(job.UserID), job.ID).Err()
}

func (r *Redis) GetJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	var job model.GenerationJob
	if err := r.getJSON(ctx, jobKey(jobID), &job, model.ErrJobNotFound); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Redis) UpdateJob(ctx context.Context, jobID string, mutate func(*model.GenerationJob) error) (*model.GenerationJob, error) {
	key := jobKey(jobID)
	var updated *model.GenerationJob

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrJobNotFound
			}
			return err
		}
		var job model.GenerationJob
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if err := mutate(&job); err != nil {
			return err
		}
		out, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("job update contention on %s", jobID)
}

func (r *Redis) ListJobsByUser(ctx context.Context, userID string) ([]*model.GenerationJob, error) {
	ids, err := r.client.SMembers(ctx, userJobsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*model.GenerationJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Credits

func (r *Redis) GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	var b model.CreditBalance
	if err := r.getJSON(ctx, balanceKey(userID), &b, ErrBalanceNotFound); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Redis) PutBalance(ctx context.Context, balance *model.CreditBalance) error {
	return r.setJSON(ctx, balanceKey(balance.UserID), balance)
}

func (r *Redis) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	return r.adjustCredits(ctx, userID, amount, true)
}

func (r *Redis) DebitCredits(ctx context.Context, userID string, amount int) (int, error) {
	return r.adjustCredits(ctx, userID, -amount, false)
}

// adjustCredits applies a delta under WATCH so concurrent calls for the
// same user serialize. Debits fail without side effects when the balance
// does not cover the amount.
func (r *Redis) adjustCredits(ctx context.Context, userID string, delta int, upsert bool) (int, error) {
	key := balanceKey(userID)
	var remaining int

	txn := func(tx *redis.Tx) error {
		var b model.CreditBalance
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if !upsert {
				return ErrBalanceNotFound
			}
			b = model.CreditBalance{
				UserID: userID,
				Tier:   model.TierFree,
				Status: model.SubscriptionActive,
			}
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &b); err != nil {
				return err
			}
		}
		if b.Credits+delta < 0 {
			remaining = b.Credits
			return model.ErrInsufficientCredits
		}
		b.Credits += delta
		b.UpdatedAt = time.Now()
		out, err := json.Marshal(&b)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			remaining = b.Credits
		}
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return remaining, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return remaining, err
	}
	return 0, fmt.Errorf("balance contention for user %s", userID)
}

func (r *Redis) CreateReservation(ctx context.Context, res *model.Reservation) error {
	return r.setJSON(ctx, reservationKey(res.ID), res)
}

func (r *Redis) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := r.getJSON(ctx, reservationKey(id), &res, ErrReservationNotFound); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Redis) TransitionReservation(ctx context.Context, id string, from, to model.ReservationState) (bool, error) {
	key := reservationKey(id)
	var swapped bool

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrReservationNotFound
			}
			return err
		}
		var res model.Reservation
		if err := json.Unmarshal(data, &res); err != nil {
			return err
		}
		if res.State != from {
			swapped = false
			return nil
		}
		res.State = to
		out, err := json.Marshal(&res)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}

	for i := 0; i < txRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return swapped, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, err
	}
	return false, fmt.Errorf("reservation contention on %s", id)
}

// Sites

func (r *Redis) CreateSite(ctx context.Context, site *model.Site) error {
	return r.setJSON(ctx, siteKey(site.ID), site)
}

func (r *Redis) GetSite(ctx context.Context, siteID string) (*model.Site, error) {
	var site model.Site
	if err := r.getJSON(ctx, siteKey(siteID), &site, model.ErrSiteNotFound); err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *Redis) PutVersion(ctx context.Context, version *model.SiteVersion) error {
	return r.setJSON(ctx, versionKey(version.SiteID, version.ID), version)
}

func (r *Redis) GetVersion(ctx context.Context, siteID, versionID string) (*model.SiteVersion, error) {
	var v model.SiteVersion
	if err := r.getJSON(ctx, versionKey(siteID, versionID), &v, model.ErrVersionNotFound); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Redis) GetPointer(ctx context.Context, siteID string) (*model.HistoryPointer, error) {
	var p model.HistoryPointer
	if err := r.getJSON(ctx, pointerKey(siteID), &p, model.ErrSiteNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Redis) PutPointer(ctx context.Context, siteID string, pointer *model.HistoryPointer) error {
	return r.setJSON(ctx, pointerKey(siteID), pointer)
}
