package trace

import "testing"

func TestDisabledTracerIsNoOp(t *testing.T) {
	tr := New(false, "", nil).Start("run")
	if tr != nil {
		t.Fatal("expected nil trace when disabled")
	}
	if tr.ID() != "" {
		t.Error("expected empty id on nil trace")
	}
	end := tr.Span("translate")
	end()
	tr.End()
}

func TestEnabledTracerAssignsIDs(t *testing.T) {
	tracer := New(true, "http://localhost:3000", nil)

	a := tracer.Start("run/a")
	b := tracer.Start("run/b")
	if a.ID() == "" || b.ID() == "" {
		t.Fatal("expected trace ids")
	}
	if a.ID() == b.ID() {
		t.Error("expected distinct trace ids")
	}

	end := a.Span("verify")
	end()
	a.End()
}
