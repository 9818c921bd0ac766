package bot

import "testing"

func TestGate_AllowList(t *testing.T) {
	g := NewGate("@a:x,@b:x")
	if !g.IsAdmin("@a:x") {
		t.Error("@a:x should pass")
	}
	if !g.IsAdmin("@b:x") {
		t.Error("@b:x should pass")
	}
	if g.IsAdmin("@c:x") {
		t.Error("@c:x should not pass")
	}
}

func TestGate_SpaceSeparated(t *testing.T) {
	g := NewGate("@a:x @b:x, @c:x")
	for _, u := range []string{"@a:x", "@b:x", "@c:x"} {
		if !g.IsAdmin(u) {
			t.Errorf("%s should pass", u)
		}
	}
	if g.IsAdmin("@d:x") {
		t.Error("@d:x should not pass")
	}
}

func TestGate_AbsentListIsOpen(t *testing.T) {
	g := NewGate("")
	if !g.IsAdmin("@anyone:anywhere") {
		t.Error("absent allow-list means open mode")
	}
}
