package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arbitrium/internal/dispatch"

	"github.com/gorilla/websocket"
)

func TestJobEvents_ForwardsEvents(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	want := dispatch.Event{JobID: "j1", Kind: dispatch.KindReconcile, InventoryID: 5, Status: dispatch.StatusDone}
	env.queue.events <- want

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got dispatch.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.JobID != want.JobID || got.Kind != want.Kind || got.InventoryID != 5 || got.Status != dispatch.StatusDone {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}
