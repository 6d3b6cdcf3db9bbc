package recordid

import "testing"

func TestNew(t *testing.T) {
	a := New()
	b := New()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("expected valid uuids, got %q %q", a, b)
	}
}

func TestValid(t *testing.T) {
	if Valid("not-a-uuid") {
		t.Fatal("expected false")
	}
	if !Valid("0f8c65d3-e4c4-4a89-b638-c31a8262e0fb") {
		t.Fatal("expected true")
	}
}
