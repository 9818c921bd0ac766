// Package importer brings telegram sticker packs into a room as MSC2545
// sticker packs. Media uploads are deduplicated through the content-
// addressed cache in account data, so re-importing a pack (or importing
// two packs sharing stickers) never uploads the same bytes twice.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"

	"github.com/msrd0/tg2mx-bot/internal/mediacache"
	"github.com/msrd0/tg2mx-bot/internal/stickers"
)

// Uploader is the slice of the protocol client that stores media.
type Uploader interface {
	UploadMedia(ctx context.Context, contentType, filename string, data []byte) (string, error)
}

// RoomStater writes the imported pack into room state.
type RoomStater interface {
	SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content any) error
}

// Importer runs import jobs.
type Importer struct {
	tg     *telegramAPI
	upload Uploader
	rooms  RoomStater
	cache  mediacache.AccountDataStore
	logger *slog.Logger
}

// Options configures the importer. BotToken is required to talk to the
// telegram API; BaseURL and HTTPClient exist for tests.
type Options struct {
	BotToken   string
	BaseURL    string
	HTTPClient *http.Client
}

func New(opts Options, upload Uploader, rooms RoomStater, cache mediacache.AccountDataStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		tg:     newTelegramAPI(opts.HTTPClient, opts.BaseURL, opts.BotToken),
		upload: upload,
		rooms:  rooms,
		cache:  cache,
		logger: logger,
	}
}

// Run imports the telegram sticker pack named by pack into roomID.
// Stickers that fail individually are logged and skipped; the job still
// succeeds as long as the pack itself could be written. The media cache
// is flushed back to account data win or lose.
func (imp *Importer) Run(ctx context.Context, roomID, pack string) error {
	if imp.tg.token == "" {
		return fmt.Errorf("no telegram bot token configured")
	}

	name, err := PackName(pack)
	if err != nil {
		return fmt.Errorf("invalid sticker pack url: %w", err)
	}
	id := stickers.DeriveID(name)
	if id == "" {
		return fmt.Errorf("cannot derive a pack id from %q", name)
	}

	cache, err := mediacache.Load(ctx, imp.cache, imp.logger)
	if err != nil {
		return fmt.Errorf("failed to load database from account data: %w", err)
	}
	defer func() {
		if err := cache.Flush(ctx); err != nil {
			imp.logger.Error("media_map_flush_failed", "error", err.Error())
		}
	}()

	set, err := imp.tg.getStickerSet(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load the sticker pack from telegram: %w", err)
	}

	images := make(map[string]stickers.Image, len(set.Stickers))
	for i, sticker := range set.Stickers {
		key := fmt.Sprintf("%s_%d", id, i)
		image, err := imp.importSticker(ctx, cache, sticker)
		if err != nil {
			// partial success: skipped stickers stay log-only
			imp.logger.Warn("sticker_import_failed", "pack", name, "index", i, "error", err.Error())
			continue
		}
		images[key] = *image
	}
	if len(images) == 0 {
		return fmt.Errorf("no sticker of pack %q could be imported", name)
	}

	roomPack := stickers.RoomPack{
		Pack:   stickers.PackMeta{DisplayName: set.Title},
		Images: images,
	}
	if err := imp.rooms.SendStateEvent(ctx, roomID, stickers.RoomEmotesEventType, id, &roomPack); err != nil {
		return fmt.Errorf("failed to add the sticker pack to the room: %w", err)
	}

	imp.logger.Info("import_done",
		"pack", name,
		"pack_id", id,
		"imported", len(images),
		"skipped", len(set.Stickers)-len(images),
	)
	return nil
}

// importSticker downloads one sticker and returns its pack entry, going
// through the dedup cache before uploading.
func (imp *Importer) importSticker(ctx context.Context, cache *mediacache.Cache, sticker telegramSticker) (*stickers.Image, error) {
	file, err := imp.tg.getFile(ctx, sticker.FileID)
	if err != nil {
		return nil, err
	}
	data, err := imp.tg.downloadFile(ctx, file.FilePath)
	if err != nil {
		return nil, err
	}

	contentType := http.DetectContentType(data)
	hash := mediacache.HashOf(data)
	url, cached := cache.Get(hash)
	if !cached {
		url, err = imp.upload.UploadMedia(ctx, contentType, path.Base(file.FilePath), data)
		if err != nil {
			return nil, fmt.Errorf("upload sticker: %w", err)
		}
		cache.Put(hash, url)
	}

	body := sticker.Emoji
	if body == "" {
		body = path.Base(file.FilePath)
	}
	return &stickers.Image{
		URL:  url,
		Body: body,
		Info: &stickers.ImageInfo{
			Width:    sticker.Width,
			Height:   sticker.Height,
			Size:     len(data),
			Mimetype: contentType,
		},
		Usage: []string{"sticker"},
	}, nil
}
