package variables

import "testing"

func TestSetAndGet(t *testing.T) {
	s := NewStore(nil)
	if _, ok := s.Get("orderId"); ok {
		t.Fatal("expected missing value in fresh store")
	}
	s.Set("orderId", "abc-123")
	got, ok := s.Get("orderId")
	if !ok || got != "abc-123" {
		t.Fatalf("Get = (%q, %v), want (abc-123, true)", got, ok)
	}
}

func TestSeedCopied(t *testing.T) {
	seed := map[string]string{"user": "u1"}
	s := NewStore(seed)
	seed["user"] = "mutated"
	if got, _ := s.Get("user"); got != "u1" {
		t.Fatalf("seed mutation leaked into store: %q", got)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewStore(map[string]string{"a": "1"})
	all := s.All()
	all["a"] = "changed"
	if got, _ := s.Get("a"); got != "1" {
		t.Fatalf("All() copy mutation leaked: %q", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}
