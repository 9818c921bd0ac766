package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Telegram Bot API

const maxStickerDownload = 10 << 20

type telegramAPI struct {
	http    *http.Client
	baseURL string
	token   string
}

func newTelegramAPI(httpClient *http.Client, baseURL, token string) *telegramAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &telegramAPI{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type telegramStickerSet struct {
	Name     string            `json:"name"`
	Title    string            `json:"title"`
	Stickers []telegramSticker `json:"stickers"`
}

type telegramSticker struct {
	FileID     string `json:"file_id"`
	Emoji      string `json:"emoji,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	IsAnimated bool   `json:"is_animated,omitempty"`
	IsVideo    bool   `json:"is_video,omitempty"`
}

type telegramFile struct {
	FileID   string `json:"file_id"`
	FileSize int    `json:"file_size,omitempty"`
	FilePath string `json:"file_path"`
}

func (t *telegramAPI) call(ctx context.Context, method string, query url.Values, out any) error {
	u := t.baseURL + "/bot" + t.token + "/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

func (t *telegramAPI) getStickerSet(ctx context.Context, name string) (*telegramStickerSet, error) {
	query := url.Values{}
	query.Set("name", name)
	var set telegramStickerSet
	if err := t.call(ctx, "getStickerSet", query, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (t *telegramAPI) getFile(ctx context.Context, fileID string) (*telegramFile, error) {
	query := url.Values{}
	query.Set("file_id", fileID)
	var file telegramFile
	if err := t.call(ctx, "getFile", query, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (t *telegramAPI) downloadFile(ctx context.Context, filePath string) ([]byte, error) {
	u := t.baseURL + "/file/bot" + t.token + "/" + filePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram download %s: %w", filePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download %s: HTTP %d", filePath, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxStickerDownload))
	if err != nil {
		return nil, fmt.Errorf("telegram download %s: %w", filePath, err)
	}
	return data, nil
}

// PackName extracts the sticker set name from a pack argument: a share
// url like https://t.me/addstickers/Name, a tg://addstickers?set=Name
// link, or the bare set name.
func PackName(pack string) (string, error) {
	pack = strings.TrimSpace(pack)
	if pack == "" {
		return "", fmt.Errorf("invalid sticker pack url: empty")
	}

	if strings.HasPrefix(pack, "tg://") {
		u, err := url.Parse(pack)
		if err != nil || u.Query().Get("set") == "" {
			return "", fmt.Errorf("invalid sticker pack url %q", pack)
		}
		return u.Query().Get("set"), nil
	}

	for _, prefix := range []string{"https://t.me/addstickers/", "http://t.me/addstickers/", "t.me/addstickers/"} {
		if name, ok := strings.CutPrefix(pack, prefix); ok {
			name = strings.TrimSuffix(name, "/")
			if name == "" || strings.ContainsAny(name, "/?#") {
				return "", fmt.Errorf("invalid sticker pack url %q", pack)
			}
			return name, nil
		}
	}

	if strings.ContainsAny(pack, "/?#: ") {
		return "", fmt.Errorf("invalid sticker pack url %q", pack)
	}
	return pack, nil
}
