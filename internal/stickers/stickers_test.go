package stickers

import "testing"

func TestDeriveID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"CatStickers", "catstickers"},
		{"my_pack", "mypack"},
		{"Cat Dog 2", "catdog2"},
		{"pack-with.punctuation!", "packwithpunctuation"},
		{"", ""},
		{"ÜmlautPack", "ümlautpack"},
	}
	for _, tc := range cases {
		if got := DeriveID(tc.in); got != tc.want {
			t.Errorf("DeriveID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConvert(t *testing.T) {
	pack := MauniumPack{
		Title: "Test Pack",
		Stickers: []MauniumSticker{
			{ID: "first", Body: "a sticker", URL: "mxc://x/1", Info: &ImageInfo{Width: 256}},
			{Body: "keyed by body", URL: "mxc://x/2"},
			{ID: "first", Body: "duplicate key", URL: "mxc://x/3"},
			{URL: "mxc://x/4"},
		},
	}

	got := pack.Convert()

	if got.Pack.DisplayName != "Test Pack" {
		t.Fatalf("display name = %q", got.Pack.DisplayName)
	}
	if len(got.Images) != 2 {
		t.Fatalf("expected 2 images, got %d: %v", len(got.Images), got.Images)
	}
	first := got.Images["first"]
	if first.URL != "mxc://x/1" {
		t.Fatalf("duplicate keys should keep the first entry, got %q", first.URL)
	}
	if first.Info == nil || first.Info.Width != 256 {
		t.Fatalf("info should be carried over, got %+v", first.Info)
	}
	if len(first.Usage) != 1 || first.Usage[0] != "sticker" {
		t.Fatalf("usage should mark stickers, got %v", first.Usage)
	}
	if _, ok := got.Images["keyed by body"]; !ok {
		t.Fatalf("sticker without id should be keyed by body, got %v", got.Images)
	}
}
