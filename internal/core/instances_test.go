package core

import "testing"

func TestInstancesLifecycle(t *testing.T) {
	instances := NewInstances[int]()
	if err := instances.Insert("b", 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := instances.Insert("a", 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := instances.Insert("a", 3); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}

	if got := instances.All(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected items ordered by id, got %v", got)
	}
	if value, ok := instances.Get("a"); !ok || value != 1 {
		t.Fatalf("unexpected get: %v %v", value, ok)
	}

	if value, ok := instances.Remove("a"); !ok || value != 1 {
		t.Fatalf("unexpected remove: %v %v", value, ok)
	}
	if _, ok := instances.Remove("a"); ok {
		t.Fatalf("second remove must report missing")
	}
	if instances.Len() != 1 || instances.IDs()[0] != "b" {
		t.Fatalf("unexpected ids after remove: %v", instances.IDs())
	}
}
