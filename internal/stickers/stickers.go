// Package stickers holds the sticker pack data formats shared by the
// import and migrate backends: the MSC2545 room-emotes state content, the
// maunium sticker picker pack schema, and pack id derivation.
package stickers

import (
	"strings"
	"unicode"
)

// RoomEmotesEventType is the state event type that room sticker packs are
// stored under.
const RoomEmotesEventType = "im.ponies.room_emotes"

// ImageInfo mirrors the protocol's media info block.
type ImageInfo struct {
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
	Size     int    `json:"size,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
}

// Image is one entry of an MSC2545 pack.
type Image struct {
	URL   string     `json:"url"`
	Body  string     `json:"body,omitempty"`
	Info  *ImageInfo `json:"info,omitempty"`
	Usage []string   `json:"usage,omitempty"`
}

// PackMeta is the pack-level metadata of an MSC2545 pack.
type PackMeta struct {
	DisplayName string `json:"display_name,omitempty"`
}

// RoomPack is the content of an im.ponies.room_emotes state event.
type RoomPack struct {
	Pack   PackMeta         `json:"pack"`
	Images map[string]Image `json:"images"`
}

// MauniumSticker is one sticker of a maunium sticker picker pack document.
type MauniumSticker struct {
	ID   string     `json:"id,omitempty"`
	Body string     `json:"body"`
	URL  string     `json:"url"`
	Info *ImageInfo `json:"info,omitempty"`
}

// MauniumPack is the JSON document published by maunium's sticker picker.
type MauniumPack struct {
	Title    string           `json:"title"`
	ID       string           `json:"id,omitempty"`
	Stickers []MauniumSticker `json:"stickers"`
}

// DeriveID derives the state key a pack is stored under from its name:
// lowercased with everything except letters and digits dropped.
func DeriveID(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Convert turns a maunium pack into MSC2545 room pack content. Sticker
// keys prefer the sticker's own id and fall back to its body.
func (p *MauniumPack) Convert() RoomPack {
	images := make(map[string]Image, len(p.Stickers))
	for _, s := range p.Stickers {
		key := s.ID
		if key == "" {
			key = s.Body
		}
		if key == "" {
			continue
		}
		if _, dup := images[key]; dup {
			continue
		}
		images[key] = Image{
			URL:   s.URL,
			Body:  s.Body,
			Info:  s.Info,
			Usage: []string{"sticker"},
		}
	}
	return RoomPack{
		Pack:   PackMeta{DisplayName: p.Title},
		Images: images,
	}
}
