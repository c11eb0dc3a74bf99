package health

import (
	"context"
	"testing"
)

func pass(name string) Checker {
	return func(ctx context.Context) Status {
		return Status{Name: name, Healthy: true}
	}
}

func fail(name, detail string) Checker {
	return func(ctx context.Context) Status {
		return Status{Name: name, Healthy: false, Detail: detail}
	}
}

func TestCheckAllEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("statuses = %d, want 0", len(statuses))
	}
}

func TestCheckAllAggregates(t *testing.T) {
	r := NewRegistry()
	r.Register("database", pass("database"))
	r.Register("realtime", pass("realtime"))

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("all probes pass, expected healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0].Name != "database" || statuses[1].Name != "realtime" {
		t.Errorf("statuses out of registration order: %+v", statuses)
	}
}

func TestCheckAllOneFailureFailsAggregate(t *testing.T) {
	r := NewRegistry()
	r.Register("database", fail("database", "connection refused"))
	r.Register("realtime", pass("realtime"))

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("expected unhealthy aggregate")
	}
	if statuses[0].Detail != "connection refused" {
		t.Errorf("detail = %q", statuses[0].Detail)
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	r := NewRegistry()
	r.Register("database", fail("database", "old"))
	r.Register("database", pass("database"))

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("replacement probe passes, expected healthy")
	}
	if len(statuses) != 1 {
		t.Errorf("statuses = %d, want 1 after replacement", len(statuses))
	}
}

func TestPanickingProbeReportedUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("flaky", func(ctx context.Context) Status {
		panic("boom")
	})
	r.Register("database", pass("database"))

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("panicking probe should fail the aggregate")
	}
	if statuses[0].Healthy {
		t.Error("panicking probe should be unhealthy")
	}
	if statuses[0].Name != "flaky" {
		t.Errorf("name = %q, want flaky", statuses[0].Name)
	}
}
