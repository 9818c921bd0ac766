// Package migrate converts maunium sticker picker packs into MSC2545
// room sticker packs. The pack document is fetched over HTTP with a hard
// size cap; packs whose derived id already exists in room state are
// skipped as a no-op success.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/msrd0/tg2mx-bot/internal/stickers"
)

// MaxContentLength caps the pack document size, both as declared by the
// server and as actually streamed.
const MaxContentLength = 100 * 1024

const userAgent = "tg2mx_bot"

// ErrTooLarge is returned when the pack document exceeds MaxContentLength.
var ErrTooLarge = errors.New("maximum content length exceeded")

// RoomStater is the slice of the protocol client the migration needs.
type RoomStater interface {
	GetRoomState(ctx context.Context, roomID, eventType, stateKey string, out any) (bool, error)
	SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content any) error
}

// Migrator runs migrate jobs.
type Migrator struct {
	http   *http.Client
	rooms  RoomStater
	logger *slog.Logger
}

func New(httpClient *http.Client, rooms RoomStater, logger *slog.Logger) *Migrator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{http: httpClient, rooms: rooms, logger: logger}
}

// Run fetches the maunium pack at packURL and writes it as an MSC2545
// pack into roomID's state. Running it again for the same pack completes
// without touching room state.
func (m *Migrator) Run(ctx context.Context, roomID, packURL string) error {
	pack, err := m.fetchPack(ctx, packURL)
	if err != nil {
		return fmt.Errorf("failed to load the sticker pack: %w", err)
	}

	id := pack.ID
	if id == "" {
		id = stickers.DeriveID(pack.Title)
	}
	if id == "" {
		return fmt.Errorf("pack %q has no usable id", pack.Title)
	}

	var existing stickers.RoomPack
	found, err := m.rooms.GetRoomState(ctx, roomID, stickers.RoomEmotesEventType, id, &existing)
	if err != nil {
		return fmt.Errorf("failed to check for an existing pack: %w", err)
	}
	if found {
		m.logger.Info("migrate_already_done", "pack_id", id, "room_id", roomID)
		return nil
	}

	converted := pack.Convert()
	if err := m.rooms.SendStateEvent(ctx, roomID, stickers.RoomEmotesEventType, id, &converted); err != nil {
		return fmt.Errorf("failed to add the sticker pack to the room: %w", err)
	}
	m.logger.Info("migrate_done", "pack_id", id, "stickers", len(converted.Images), "room_id", roomID)
	return nil
}

// fetchPack downloads and decodes the pack document, rejecting anything
// over MaxContentLength before and while streaming.
func (m *Migrator) fetchPack(ctx context.Context, packURL string) (*stickers.MauniumPack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, packURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid pack url: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching pack returned HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxContentLength {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentLength+1))
	if err != nil {
		return nil, fmt.Errorf("reading pack body: %w", err)
	}
	if len(data) > MaxContentLength {
		return nil, ErrTooLarge
	}

	var pack stickers.MauniumPack
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("decoding pack document: %w", err)
	}
	return &pack, nil
}
