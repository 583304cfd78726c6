package embeddings

import (
	"context"
	"errors"
	"testing"
)

type stubDriver struct {
	name      string
	healthErr error
}

func (d *stubDriver) Kind() string      { return d.name }
func (d *stubDriver) Model() string     { return "stub-model" }
func (d *stubDriver) Version() string   { return "" }
func (d *stubDriver) Dimensions() int   { return 8 }
func (d *stubDriver) MaxBatchSize() int { return 16 }
func (d *stubDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, nil
}
func (d *stubDriver) HealthCheck(ctx context.Context) error { return d.healthErr }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	drv := &stubDriver{name: "openai"}
	r.Register("openai", drv)

	got, err := r.Get("openai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != drv {
		t.Error("Get returned a different driver")
	}

	if _, err := r.Get("ollama"); err == nil {
		t.Error("Get(unregistered) = nil error")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	if names := r.List(); len(names) != 0 {
		t.Errorf("empty registry List = %v", names)
	}
	r.Register("openai", &stubDriver{name: "openai"})
	r.Register("ollama", &stubDriver{name: "ollama"})
	if names := r.List(); len(names) != 2 {
		t.Errorf("List = %v", names)
	}
}

func TestRegistryHealthCheckAll(t *testing.T) {
	r := NewRegistry()
	r.Register("healthy", &stubDriver{name: "healthy"})
	r.Register("broken", &stubDriver{name: "broken", healthErr: errors.New("down")})

	results := r.HealthCheckAll(context.Background())
	if results["healthy"] != nil {
		t.Errorf("healthy driver error = %v", results["healthy"])
	}
	if results["broken"] == nil {
		t.Error("broken driver reported healthy")
	}
}
