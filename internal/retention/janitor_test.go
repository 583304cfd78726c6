package retention

import (
	"context"
	"testing"
	"time"

	"github.com/and27/supportops/internal/store"
	"github.com/and27/supportops/pkg/models"
)

func TestRunCyclePrunesOldRuns(t *testing.T) {
	t.Setenv("SUPPORTOPS_DATA_DIR", "")
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	old := &models.AgentRun{OrgID: "org-1", Action: models.ActionReply, CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &models.AgentRun{OrgID: "org-1", Action: models.ActionReply}
	if err := st.CreateRun(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateRun(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	j := NewJanitor(st, 24*time.Hour, time.Hour)
	j.runCycle(ctx)

	runs, err := st.ListRuns(ctx, "org-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != fresh.ID {
		t.Errorf("runs = %+v", runs)
	}
}

func TestStartDisabledWithoutTTL(t *testing.T) {
	t.Setenv("SUPPORTOPS_DATA_DIR", "")
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	j := NewJanitor(st, 0, time.Hour)

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return for zero ttl")
	}
}
