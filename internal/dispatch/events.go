package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Event announces that a job finished.
type Event struct {
	JobID       string    `json:"job_id"`
	Kind        Kind      `json:"kind"`
	InventoryID uint      `json:"inventory_id,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

func newEvent(job Job, err error) Event {
	ev := Event{
		JobID:       job.ID,
		Kind:        job.Kind,
		InventoryID: job.InventoryID,
		Status:      StatusDone,
		FinishedAt:  time.Now().UTC(),
	}
	if err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
	}
	return ev
}

// EventsChannel is the pub/sub channel job events are published on.
func (q *Queue) EventsChannel() string { return q.key + ":events" }

func (q *Queue) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.rdb.Publish(ctx, q.EventsChannel(), payload).Err()
}

// Subscribe streams job events until ctx is done, then closes the channel.
// The subscription is active when Subscribe returns.
func (q *Queue) Subscribe(ctx context.Context) (<-chan Event, error) {
	ps := q.rdb.Subscribe(ctx, q.EventsChannel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to job events: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
