// Package matrix is a minimal client for the Matrix client-server API,
// covering exactly the surface the bot needs: password login, sync
// long-polling, message/reaction sends, account data, room state, media
// upload and room membership.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const defaultRequestTimeout = 60 * time.Second

// APIError is a Matrix error response (errcode + error message).
type APIError struct {
	Status  int
	Code    string `json:"errcode"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("matrix: HTTP %d", e.Status)
	}
	return fmt.Sprintf("matrix: %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 or M_NOT_FOUND API error.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.Status == http.StatusNotFound || apiErr.Code == "M_NOT_FOUND"
}

// Client talks to one homeserver as one account. All requests pass
// through a shared rate limiter; homeservers throttle chatty bots.
type Client struct {
	http        *http.Client
	homeserver  string
	userID      string
	accessToken string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

func NewClient(homeserver, userID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:       &http.Client{},
		homeserver: strings.TrimRight(homeserver, "/"),
		userID:     userID,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		logger:     logger,
	}
}

// UserID returns the account's fully qualified user id.
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) url(path string, query url.Values) string {
	u := c.homeserver + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs one JSON request with the default timeout.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.doWithTimeout(ctx, method, path, query, body, out, defaultRequestTimeout)
}

func (c *Client) doWithTimeout(ctx context.Context, method, path string, query url.Values, body, out any, timeout time.Duration) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type loginRequest struct {
	Type       string          `json:"type"`
	Identifier loginIdentifier `json:"identifier"`
	Password   string          `json:"password"`
	DeviceName string          `json:"initial_device_display_name,omitempty"`
}

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

// Login performs a password login and keeps the access token for all
// subsequent requests.
func (c *Client) Login(ctx context.Context, password, deviceName string) error {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, loginRequest{
		Type:       "m.login.password",
		Identifier: loginIdentifier{Type: "m.id.user", User: c.userID},
		Password:   password,
		DeviceName: deviceName,
	}, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.accessToken = resp.AccessToken
	if resp.UserID != "" {
		c.userID = resp.UserID
	}
	c.logger.Info("matrix_login_ok", "user_id", c.userID)
	return nil
}

// SetDisplayName sets the account's profile display name.
func (c *Client) SetDisplayName(ctx context.Context, name string) error {
	path := "/_matrix/client/v3/profile/" + url.PathEscape(c.userID) + "/displayname"
	if err := c.do(ctx, http.MethodPut, path, nil, map[string]string{"displayname": name}, nil); err != nil {
		return fmt.Errorf("set display name: %w", err)
	}
	return nil
}

// Sync performs one /sync long poll. An empty since token requests the
// initial snapshot.
func (c *Client) Sync(ctx context.Context, since string, timeout time.Duration) (*SyncResponse, error) {
	query := url.Values{}
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	if since != "" {
		query.Set("since", since)
	}
	var resp SyncResponse
	err := c.doWithTimeout(ctx, http.MethodGet, "/_matrix/client/v3/sync", query, nil, &resp, timeout+30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	return &resp, nil
}

type sendResponse struct {
	EventID string `json:"event_id"`
}

func (c *Client) sendEvent(ctx context.Context, roomID, eventType string, content any) (string, error) {
	txnID := uuid.NewString()
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/send/" + url.PathEscape(eventType) + "/" + txnID
	var resp sendResponse
	if err := c.do(ctx, http.MethodPut, path, nil, content, &resp); err != nil {
		return "", fmt.Errorf("send %s to %s: %w", eventType, roomID, err)
	}
	return resp.EventID, nil
}

// SendMessage sends an m.room.message event and returns its event id.
func (c *Client) SendMessage(ctx context.Context, roomID string, content MessageContent) (string, error) {
	return c.sendEvent(ctx, roomID, EventTypeMessage, content)
}

// SendReaction annotates the given event with a single-character key.
func (c *Client) SendReaction(ctx context.Context, roomID, eventID, key string) error {
	_, err := c.sendEvent(ctx, roomID, EventTypeReaction, ReactionContent{
		RelatesTo: RelatesTo{
			RelType: "m.annotation",
			EventID: eventID,
			Key:     key,
		},
	})
	return err
}

// GetAccountData reads one account data key into out. It returns false
// without error when the key has never been written.
func (c *Client) GetAccountData(ctx context.Context, key string, out any) (bool, error) {
	path := "/_matrix/client/v3/user/" + url.PathEscape(c.userID) + "/account_data/" + url.PathEscape(key)
	err := c.do(ctx, http.MethodGet, path, nil, nil, out)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get account data %s: %w", key, err)
	}
	return true, nil
}

// SetAccountData overwrites one account data key wholesale.
func (c *Client) SetAccountData(ctx context.Context, key string, value any) error {
	path := "/_matrix/client/v3/user/" + url.PathEscape(c.userID) + "/account_data/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodPut, path, nil, value, nil); err != nil {
		return fmt.Errorf("set account data %s: %w", key, err)
	}
	return nil
}

// GetRoomState reads one state event's content into out. It returns false
// without error when the state event does not exist.
func (c *Client) GetRoomState(ctx context.Context, roomID, eventType, stateKey string, out any) (bool, error) {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/state/" + url.PathEscape(eventType) + "/" + url.PathEscape(stateKey)
	err := c.do(ctx, http.MethodGet, path, nil, nil, out)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get state %s/%s in %s: %w", eventType, stateKey, roomID, err)
	}
	return true, nil
}

// SendStateEvent writes one state event's content wholesale.
func (c *Client) SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content any) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/state/" + url.PathEscape(eventType) + "/" + url.PathEscape(stateKey)
	if err := c.do(ctx, http.MethodPut, path, nil, content, nil); err != nil {
		return fmt.Errorf("send state %s/%s to %s: %w", eventType, stateKey, roomID, err)
	}
	return nil
}

type uploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// UploadMedia uploads raw bytes to the media repository and returns the
// mxc:// URI.
func (c *Client) UploadMedia(ctx context.Context, contentType, filename string, data []byte) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	query := url.Values{}
	if filename != "" {
		query.Set("filename", filename)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/_matrix/media/v3/upload", query), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := decodeResponse(resp, &out); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	return out.ContentURI, nil
}

// JoinRoom accepts an invitation (or joins a public room).
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID)
	if err := c.do(ctx, http.MethodPost, path, nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	return nil
}

// LeaveRoom leaves a room. Leaving while invited rejects the invitation.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/leave"
	if err := c.do(ctx, http.MethodPost, path, nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("leave %s: %w", roomID, err)
	}
	return nil
}

type joinedRoomsResponse struct {
	JoinedRooms []string `json:"joined_rooms"`
}

// InRoom reports whether the account is currently joined to roomID.
func (c *Client) InRoom(ctx context.Context, roomID string) (bool, error) {
	var resp joinedRoomsResponse
	if err := c.do(ctx, http.MethodGet, "/_matrix/client/v3/joined_rooms", nil, nil, &resp); err != nil {
		return false, fmt.Errorf("joined rooms: %w", err)
	}
	for _, id := range resp.JoinedRooms {
		if id == roomID {
			return true, nil
		}
	}
	return false, nil
}
