// Package reconciler keeps the locally held campaign list in step
// with the backend: a wholesale fetch on load, then in-place patches
// from push events.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
	"github.com/unclebandit/smsleopard-dashboard/internal/channel"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

// SessionExpiredMessage is shown when a load is rejected for a stale
// credential, right before the login redirect fires.
const SessionExpiredMessage = "Session expired or invalid. Please log in again."

// DefaultRedirectDelay is how long the session-expired message stays
// up before navigating to the login entry point.
const DefaultRedirectDelay = 2 * time.Second

// CampaignAPI is the slice of the backend client the reconciler uses.
type CampaignAPI interface {
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
	DeleteCampaign(ctx context.Context, id int) error
}

type Reconciler struct {
	api CampaignAPI

	// Navigate is invoked (after RedirectDelay) with "/login" when a
	// load fails on authorization.
	Navigate      func(path string)
	RedirectDelay time.Duration

	mu        sync.Mutex
	campaigns []model.Campaign
	lastError string
}

func New(api CampaignAPI) *Reconciler {
	return &Reconciler{api: api, RedirectDelay: DefaultRedirectDelay}
}

// Load replaces the entire local collection with a fresh fetch.
// Insertion order follows fetch order and is never re-sorted.
// Failures leave the UI usable: the list is cleared, an inline error
// is kept, and a retry happens only on the next explicit call.
func (r *Reconciler) Load(ctx context.Context) error {
	campaigns, err := r.api.ListCampaigns(ctx)
	if err != nil {
		r.mu.Lock()
		r.campaigns = nil
		if errors.Is(err, apperrors.ErrUnauthorized) {
			r.lastError = SessionExpiredMessage
		} else {
			r.lastError = err.Error()
		}
		r.mu.Unlock()

		if errors.Is(err, apperrors.ErrUnauthorized) && r.Navigate != nil {
			delay := r.RedirectDelay
			time.AfterFunc(delay, func() { r.Navigate("/login") })
		}
		return err
	}

	r.mu.Lock()
	r.campaigns = campaigns
	r.lastError = ""
	r.mu.Unlock()
	return nil
}

// ApplyProgress patches counters for one campaign and re-derives its
// status: pending with any progress becomes sending; sending with all
// recipients processed becomes completed. Counters are last-write-wins,
// so duplicate or out-of-order deliveries settle on the same state.
// Unknown ids are ignored.
func (r *Reconciler) ApplyProgress(id, successCount, failureCount, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findLocked(id)
	if c == nil {
		return
	}

	status := c.Status
	if status == model.StatusPending && (successCount > 0 || failureCount > 0) {
		status = model.StatusSending
	}
	// A zero total says nothing about completion, so it can never
	// finish a campaign (and never overwrites a known total below).
	processed := successCount + failureCount
	if total > 0 && processed >= total && status == model.StatusSending {
		status = model.StatusCompleted
	}

	c.Status = status
	c.SuccessCount = successCount
	c.FailureCount = failureCount
	if total > 0 {
		c.RecipientsTotal = total
	}
}

// ApplyStatusUpdate overwrites the stored status unconditionally: the
// backend's explicit status always beats the local heuristic. Unknown
// ids are ignored.
func (r *Reconciler) ApplyStatusUpdate(id int, status model.CampaignStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.findLocked(id)
	if c == nil {
		return
	}
	c.Status = status
}

// DeleteMany issues one deletion per id concurrently. Only ids the
// backend confirmed are removed locally; the rest come back in a
// single aggregated error listing each failed id and its reason.
func (r *Reconciler) DeleteMany(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	type outcome struct {
		id  int
		err error
	}
	results := make([]outcome, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			results[i] = outcome{id: id, err: r.api.DeleteCampaign(ctx, id)}
		}(i, id)
	}
	wg.Wait()

	deleted := make(map[int]bool)
	var failed []apperrors.FailedDelete
	for _, res := range results {
		if res.err == nil {
			deleted[res.id] = true
			continue
		}
		failed = append(failed, apperrors.FailedDelete{ID: res.id, Reason: res.err.Error()})
	}

	if len(deleted) > 0 {
		r.mu.Lock()
		kept := r.campaigns[:0]
		for _, c := range r.campaigns {
			if !deleted[c.ID] {
				kept = append(kept, c)
			}
		}
		r.campaigns = kept
		r.mu.Unlock()
	}

	if len(failed) > 0 {
		return &apperrors.BatchDeleteError{Failed: failed}
	}
	return nil
}

// Bind subscribes to the two patch events. The returned func detaches
// both listeners and is safe to call on every exit path; detaching
// stops further mutation but does not abort in-flight requests.
func (r *Reconciler) Bind(ch channel.Channel) (func(), error) {
	offProgress, err := ch.Subscribe("campaignProgress", func(payload []byte) {
		var ev model.CampaignProgress
		if err := json.Unmarshal(payload, &ev); err != nil || ev.CampaignID == 0 {
			log.Println("⚠️ Invalid campaignProgress payload:", string(payload))
			return
		}
		r.ApplyProgress(ev.CampaignID, ev.SuccessCount, ev.FailureCount, ev.TotalRecipients)
	})
	if err != nil {
		return nil, err
	}

	offStatus, err := ch.Subscribe("campaignStatusUpdate", func(payload []byte) {
		var ev model.CampaignStatusUpdate
		if err := json.Unmarshal(payload, &ev); err != nil || ev.CampaignID == 0 || ev.Status == "" {
			log.Println("⚠️ Invalid campaignStatusUpdate payload:", string(payload))
			return
		}
		r.ApplyStatusUpdate(ev.CampaignID, ev.Status)
	})
	if err != nil {
		offProgress()
		return nil, err
	}

	return func() {
		offProgress()
		offStatus()
	}, nil
}

// Snapshot returns a copy of the collection in fetch order.
func (r *Reconciler) Snapshot() []model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Campaign, len(r.campaigns))
	copy(out, r.campaigns)
	return out
}

// LastError returns the inline error from the most recent load, or "".
func (r *Reconciler) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

func (r *Reconciler) findLocked(id int) *model.Campaign {
	for i := range r.campaigns {
		if r.campaigns[i].ID == id {
			return &r.campaigns[i]
		}
	}
	return nil
}
