package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeHomeserver struct {
	mux         *http.ServeMux
	accountData map[string]json.RawMessage
	roomState   map[string]json.RawMessage
	sent        []Event
}

func newFakeHomeserver(t *testing.T) (*fakeHomeserver, *Client) {
	t.Helper()
	hs := &fakeHomeserver{
		mux:         http.NewServeMux(),
		accountData: make(map[string]json.RawMessage),
		roomState:   make(map[string]json.RawMessage),
	}

	hs.mux.HandleFunc("POST /_matrix/client/v3/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "hunter2" {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(APIError{Code: "M_FORBIDDEN", Message: "bad password"})
			return
		}
		_ = json.NewEncoder(w).Encode(loginResponse{UserID: "@bot:example.org", AccessToken: "syt_token"})
	})

	hs.mux.HandleFunc("/_matrix/client/v3/user/{user}/account_data/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		switch r.Method {
		case http.MethodGet:
			raw, ok := hs.accountData[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(APIError{Code: "M_NOT_FOUND", Message: "no data"})
				return
			}
			_, _ = w.Write(raw)
		case http.MethodPut:
			hs.accountData[key] = mustReadAll(r)
			_, _ = w.Write([]byte("{}"))
		}
	})

	hs.mux.HandleFunc("PUT /_matrix/client/v3/rooms/{room}/send/{type}/{txn}", func(w http.ResponseWriter, r *http.Request) {
		hs.sent = append(hs.sent, Event{
			Type:    r.PathValue("type"),
			EventID: "$" + r.PathValue("txn"),
			Content: mustReadAll(r),
		})
		_ = json.NewEncoder(w).Encode(sendResponse{EventID: "$" + r.PathValue("txn")})
	})

	hs.mux.HandleFunc("GET /_matrix/client/v3/joined_rooms", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(joinedRoomsResponse{JoinedRooms: []string{"!joined:example.org"}})
	})

	hs.mux.HandleFunc("GET /_matrix/client/v3/sync", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(SyncResponse{NextBatch: "s1"})
	})

	srv := httptest.NewServer(hs.mux)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "@bot:example.org", slog.Default())
	client.http = srv.Client()
	return hs, client
}

func mustReadAll(r *http.Request) json.RawMessage {
	var raw json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&raw)
	return raw
}

func TestClient_Login(t *testing.T) {
	_, client := newFakeHomeserver(t)

	if err := client.Login(context.Background(), "hunter2", "tg2mx bot"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if client.accessToken != "syt_token" {
		t.Fatalf("access token = %q", client.accessToken)
	}
}

func TestClient_LoginRejected(t *testing.T) {
	_, client := newFakeHomeserver(t)

	err := client.Login(context.Background(), "wrong", "tg2mx bot")
	if err == nil {
		t.Fatal("expected login failure")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "M_FORBIDDEN" {
		t.Fatalf("expected M_FORBIDDEN, got %v", err)
	}
}

func TestClient_AccountDataRoundTrip(t *testing.T) {
	_, client := newFakeHomeserver(t)
	ctx := context.Background()

	var out map[string]string
	found, err := client.GetAccountData(ctx, "com.example.key", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("key should be absent")
	}

	if err := client.SetAccountData(ctx, "com.example.key", map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	found, err = client.GetAccountData(ctx, "com.example.key", &out)
	if err != nil || !found {
		t.Fatalf("get after set: %v, %v", found, err)
	}
	if out["hello"] != "world" {
		t.Fatalf("out = %v", out)
	}
}

func TestClient_SendReaction(t *testing.T) {
	hs, client := newFakeHomeserver(t)

	if err := client.SendReaction(context.Background(), "!room:example.org", "$target", "✅"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if len(hs.sent) != 1 || hs.sent[0].Type != EventTypeReaction {
		t.Fatalf("sent = %+v", hs.sent)
	}
	var content ReactionContent
	if err := json.Unmarshal(hs.sent[0].Content, &content); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rel := content.RelatesTo
	if rel.RelType != "m.annotation" || rel.EventID != "$target" || rel.Key != "✅" {
		t.Fatalf("relates_to = %+v", rel)
	}
}

func TestClient_SendMessageUniqueTxnIDs(t *testing.T) {
	hs, client := newFakeHomeserver(t)
	ctx := context.Background()

	for range 3 {
		if _, err := client.SendMessage(ctx, "!room:example.org", NewText("hi")); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	seen := make(map[string]bool)
	for _, ev := range hs.sent {
		if seen[ev.EventID] {
			t.Fatalf("transaction id reused: %s", ev.EventID)
		}
		seen[ev.EventID] = true
	}
}

func TestClient_InRoom(t *testing.T) {
	_, client := newFakeHomeserver(t)
	ctx := context.Background()

	in, err := client.InRoom(ctx, "!joined:example.org")
	if err != nil || !in {
		t.Fatalf("InRoom(joined) = %v, %v", in, err)
	}
	in, err = client.InRoom(ctx, "!other:example.org")
	if err != nil || in {
		t.Fatalf("InRoom(other) = %v, %v", in, err)
	}
}

func TestClient_Sync(t *testing.T) {
	_, client := newFakeHomeserver(t)

	resp, err := client.Sync(context.Background(), "", time.Second)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if resp.NextBatch != "s1" {
		t.Fatalf("next batch = %q", resp.NextBatch)
	}
}

func TestAsReplyTo(t *testing.T) {
	orig := &MessageEvent{
		Type:    EventTypeMessage,
		Sender:  "@user:example.org",
		EventID: "$orig",
		RoomID:  "!room:example.org",
		Content: NewText("!import cats"),
	}

	reply := AsReplyTo(orig, NewHTML("done", "<b>done</b>"))

	if reply.RelatesTo == nil || reply.RelatesTo.InReplyTo == nil || reply.RelatesTo.InReplyTo.EventID != "$orig" {
		t.Fatalf("relates_to = %+v", reply.RelatesTo)
	}
	if !strings.HasPrefix(reply.Body, "> <@user:example.org> !import cats") {
		t.Fatalf("fallback body = %q", reply.Body)
	}
	if !strings.Contains(reply.FormattedBody, "<mx-reply>") || !strings.HasSuffix(reply.FormattedBody, "<b>done</b>") {
		t.Fatalf("formatted body = %q", reply.FormattedBody)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(&APIError{Status: http.StatusNotFound}) {
		t.Error("404 should be not-found")
	}
	if !IsNotFound(&APIError{Status: http.StatusBadRequest, Code: "M_NOT_FOUND"}) {
		t.Error("M_NOT_FOUND should be not-found")
	}
	if IsNotFound(&APIError{Status: http.StatusForbidden, Code: "M_FORBIDDEN"}) {
		t.Error("forbidden is not not-found")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("plain errors are not not-found")
	}
}
