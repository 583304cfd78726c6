package vectorstore

import (
	"context"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if names := r.List(); len(names) != 0 {
		t.Errorf("empty registry List = %v", names)
	}

	emb := NewEmbeddedStore()
	r.Register(emb.Kind(), emb)

	got, err := r.Get("embedded")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != emb {
		t.Error("Get returned a different driver")
	}

	if _, err := r.Get("pgvector"); err == nil {
		t.Error("Get(unregistered) = nil error")
	}

	results := r.HealthCheckAll(context.Background())
	if results["embedded"] != nil {
		t.Errorf("embedded health = %v", results["embedded"])
	}
}
