package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/msrd0/tg2mx-bot/internal/stickers"
)

type stateWrite struct {
	RoomID    string
	EventType string
	StateKey  string
}

type fakeRoomState struct {
	existing map[string]stickers.RoomPack
	writes   []stateWrite
}

func (f *fakeRoomState) GetRoomState(_ context.Context, _, _, stateKey string, out any) (bool, error) {
	pack, ok := f.existing[stateKey]
	if !ok {
		return false, nil
	}
	*out.(*stickers.RoomPack) = pack
	return true, nil
}

func (f *fakeRoomState) SendStateEvent(_ context.Context, roomID, eventType, stateKey string, content any) error {
	f.writes = append(f.writes, stateWrite{RoomID: roomID, EventType: eventType, StateKey: stateKey})
	pack := *content.(*stickers.RoomPack)
	if f.existing == nil {
		f.existing = make(map[string]stickers.RoomPack)
	}
	f.existing[stateKey] = pack
	return nil
}

const packDoc = `{
	"title": "Test Pack",
	"id": "testpack",
	"stickers": [
		{"id": "one", "body": "first", "url": "mxc://x/1", "info": {"w": 256, "h": 256}},
		{"id": "two", "body": "second", "url": "mxc://x/2"}
	]
}`

func packServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("User-Agent = %q", got)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_WritesRoomState(t *testing.T) {
	srv := packServer(t, packDoc)
	rooms := &fakeRoomState{}
	m := New(srv.Client(), rooms, slog.Default())

	if err := m.Run(context.Background(), "!room:x", srv.URL); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(rooms.writes) != 1 {
		t.Fatalf("expected one state write, got %d", len(rooms.writes))
	}
	w := rooms.writes[0]
	if w.EventType != stickers.RoomEmotesEventType || w.StateKey != "testpack" || w.RoomID != "!room:x" {
		t.Fatalf("write = %+v", w)
	}
	pack := rooms.existing["testpack"]
	if pack.Pack.DisplayName != "Test Pack" || len(pack.Images) != 2 {
		t.Fatalf("converted pack = %+v", pack)
	}
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	srv := packServer(t, packDoc)
	rooms := &fakeRoomState{}
	m := New(srv.Client(), rooms, slog.Default())

	for i := range 2 {
		if err := m.Run(context.Background(), "!room:x", srv.URL); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(rooms.writes) != 1 {
		t.Fatalf("second run must not re-write room state, got %d writes", len(rooms.writes))
	}
}

func TestRun_DerivesIDFromTitle(t *testing.T) {
	srv := packServer(t, `{"title": "My Fancy Pack!", "stickers": [{"id": "s", "url": "mxc://x/1"}]}`)
	rooms := &fakeRoomState{}
	m := New(srv.Client(), rooms, slog.Default())

	if err := m.Run(context.Background(), "!room:x", srv.URL); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rooms.writes) != 1 || rooms.writes[0].StateKey != "myfancypack" {
		t.Fatalf("writes = %+v", rooms.writes)
	}
}

func TestRun_DeclaredLengthOverCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(MaxContentLength+1))
		_, _ = w.Write(make([]byte, MaxContentLength+1))
	}))
	t.Cleanup(srv.Close)

	rooms := &fakeRoomState{}
	m := New(srv.Client(), rooms, slog.Default())

	err := m.Run(context.Background(), "!room:x", srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected size-limit error, got %v", err)
	}
	if len(rooms.writes) != 0 {
		t.Fatal("an oversized fetch must not write state")
	}
}

func TestRun_StreamedLengthOverCap(t *testing.T) {
	// chunked response: no declared length, one byte over the cap
	body := strings.Repeat("x", MaxContentLength+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(body[:10]))
		flusher.Flush()
		_, _ = w.Write([]byte(body[10:]))
	}))
	t.Cleanup(srv.Close)

	rooms := &fakeRoomState{}
	m := New(srv.Client(), rooms, slog.Default())

	err := m.Run(context.Background(), "!room:x", srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected size-limit error, got %v", err)
	}
	if len(rooms.writes) != 0 {
		t.Fatal("an oversized fetch must not write state")
	}
}

func TestRun_HTTPErrorIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	m := New(srv.Client(), &fakeRoomState{}, slog.Default())
	if err := m.Run(context.Background(), "!room:x", srv.URL); err == nil {
		t.Fatal("expected an error for HTTP 404")
	}
}
