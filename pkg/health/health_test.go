package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckerAggregates(t *testing.T) {
	c := NewChecker()
	c.Register("ok", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("bad", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDown, Message: "unreachable"}
	})

	report := c.Run(context.Background())
	if report.Status != StatusDown {
		t.Errorf("overall status = %s, want down", report.Status)
	}
	if len(report.Components) != 2 {
		t.Errorf("components = %d, want 2", len(report.Components))
	}
	if report.Components["bad"].Message != "unreachable" {
		t.Errorf("message lost: %+v", report.Components["bad"])
	}
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	c.Register("ok", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp}
	})

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready = %d, want 200", rec.Code)
	}

	c.Register("down", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDown}
	})
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready = %d, want 503", rec.Code)
	}
}
