package matrix

import "encoding/json"

// Event types and membership values used by the bot.
const (
	EventTypeMessage  = "m.room.message"
	EventTypeMember   = "m.room.member"
	EventTypeReaction = "m.reaction"

	MembershipInvite = "invite"
	MembershipJoin   = "join"
)

// Event is one protocol event as delivered by /sync. Content stays raw
// until the caller knows which shape to decode it into.
type Event struct {
	Type           string          `json:"type"`
	Sender         string          `json:"sender,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	StateKey       *string         `json:"state_key,omitempty"`
	OriginServerTS int64           `json:"origin_server_ts,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string     `json:"msgtype"`
	Body          string     `json:"body"`
	Format        string     `json:"format,omitempty"`
	FormattedBody string     `json:"formatted_body,omitempty"`
	RelatesTo     *RelatesTo `json:"m.relates_to,omitempty"`
}

// MemberContent is the content of an m.room.member event.
type MemberContent struct {
	Membership string `json:"membership"`
}

// RelatesTo carries reply and annotation relations.
type RelatesTo struct {
	RelType   string     `json:"rel_type,omitempty"`
	EventID   string     `json:"event_id,omitempty"`
	Key       string     `json:"key,omitempty"`
	InReplyTo *InReplyTo `json:"m.in_reply_to,omitempty"`
}

// InReplyTo names the event a message replies to.
type InReplyTo struct {
	EventID string `json:"event_id"`
}

// ReactionContent is the content of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// MessageEvent is a full m.room.message event including its room id. Queued
// jobs persist this record so a reply can be routed back to the original
// message after a restart.
type MessageEvent struct {
	Type           string         `json:"type"`
	Sender         string         `json:"sender"`
	EventID        string         `json:"event_id"`
	RoomID         string         `json:"room_id"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        MessageContent `json:"content"`
}

// SyncResponse is the subset of a /sync response the bot consumes.
type SyncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join   map[string]JoinedRoomSync  `json:"join,omitempty"`
		Invite map[string]InvitedRoomSync `json:"invite,omitempty"`
	} `json:"rooms,omitempty"`
}

// JoinedRoomSync carries the timeline delta of one joined room.
type JoinedRoomSync struct {
	Timeline struct {
		Events []Event `json:"events,omitempty"`
	} `json:"timeline,omitempty"`
}

// InvitedRoomSync carries the stripped state of one pending invite.
type InvitedRoomSync struct {
	InviteState struct {
		Events []Event `json:"events,omitempty"`
	} `json:"invite_state,omitempty"`
}
