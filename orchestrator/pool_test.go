package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mercury-testing/perfcore/session"
)

func TestCreateFinalize_SingleContext(t *testing.T) {
	o := NewOrchestrator()

	h, err := o.CreateTestContext("CheckoutViewTest", "test_checkout_flow")
	if err != nil {
		t.Fatalf("CreateTestContext: %v", err)
	}
	if !h.Valid() {
		t.Fatal("expected a valid handle")
	}

	snap, err := o.FinalizeTestContext(h, 92.5, "")
	if err != nil {
		t.Fatalf("FinalizeTestContext: %v", err)
	}
	if snap.Grade != "A" {
		t.Fatalf("expected default grade A for score 92.5, got %q", snap.Grade)
	}
	if snap.Status != StatusFinalized {
		t.Fatalf("expected finalized status, got %v", snap.Status)
	}

	stats := o.GetOrchestratorStatistics()
	if stats.TotalCreated != 1 || stats.TotalFinalized != 1 || stats.ActiveContexts != 0 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestCreateTestContext_FirstHandleOnFreshPoolIsNeverTheErrorSentinel(t *testing.T) {
	o := NewOrchestrator()
	h, err := o.CreateTestContext("Class", "method")
	if err != nil {
		t.Fatalf("CreateTestContext: %v", err)
	}
	if h == 0 {
		t.Fatal("a freshly issued handle must never equal the <=0 error sentinel")
	}
	if !h.Valid() {
		t.Fatalf("expected the first handle issued by a fresh pool to be valid, got %d", h)
	}
	if _, err := o.FinalizeTestContext(h, 100, ""); err != nil {
		t.Fatalf("expected FinalizeTestContext on the first-ever issued handle to succeed: %v", err)
	}
}

func TestCreateTestContext_RejectsEmptyNames(t *testing.T) {
	o := NewOrchestrator()
	if _, err := o.CreateTestContext("", "method"); err == nil {
		t.Fatal("expected error for empty class name")
	}
	if _, err := o.CreateTestContext("Class", ""); err == nil {
		t.Fatal("expected error for empty method name")
	}
}

func TestFinalize_PreservesVerbatimGrade(t *testing.T) {
	o := NewOrchestrator()
	h, _ := o.CreateTestContext("Class", "method")
	snap, err := o.FinalizeTestContext(h, 10, "C+")
	if err != nil {
		t.Fatalf("FinalizeTestContext: %v", err)
	}
	if snap.Grade != "C+" {
		t.Fatalf("expected verbatim grade C+, got %q", snap.Grade)
	}
}

func TestFinalize_StaleOrDoubleFinalizeFails(t *testing.T) {
	o := NewOrchestrator()
	h, _ := o.CreateTestContext("Class", "method")
	if _, err := o.FinalizeTestContext(h, 50, "C"); err != nil {
		t.Fatalf("first finalize should succeed: %v", err)
	}
	if _, err := o.FinalizeTestContext(h, 50, "C"); err == nil {
		t.Fatal("expected error on double finalize of the same handle")
	}
}

func TestFinalize_InvalidHandleFails(t *testing.T) {
	o := NewOrchestrator()
	if _, err := o.FinalizeTestContext(-1, 50, "C"); err == nil {
		t.Fatal("expected error for negative handle")
	}
	if _, err := o.FinalizeTestContext(999999, 50, "C"); err == nil {
		t.Fatal("expected error for out-of-range handle")
	}
}

func TestUpdateTestContext_AndNPlusOneAnalysis(t *testing.T) {
	o := NewOrchestrator()
	h, _ := o.CreateTestContext("Class", "method")

	m := &session.Metrics{QueryCount: 20}
	if err := o.UpdateTestContext(h, m); err != nil {
		t.Fatalf("UpdateTestContext: %v", err)
	}
	if err := o.UpdateNPlusOneAnalysis(h, session.SeverityHigh, session.CauseSerializerNPlusOne); err != nil {
		t.Fatalf("UpdateNPlusOneAnalysis: %v", err)
	}

	snap, err := o.FinalizeTestContext(h, 40, "D")
	require.NoError(t, err)
	require.Equal(t, session.SeverityHigh, snap.NPlusOneSeverity)
	require.Equal(t, session.CauseSerializerNPlusOne, snap.NPlusOneCause)
	require.Equal(t, "D", snap.Grade)
	require.Equal(t, StatusFinalized, snap.Status)
}

func TestContextPoolExhaustionAndRecovery(t *testing.T) {
	o := NewOrchestrator()

	handles := make([]ContextHandle, 0, MaxTestContexts)
	for i := 0; i < MaxTestContexts; i++ {
		h, err := o.CreateTestContext("Class", "method")
		if err != nil {
			t.Fatalf("unexpected exhaustion at %d: %v", i, err)
		}
		handles = append(handles, h)
	}

	if _, err := o.CreateTestContext("Class", "overflow"); err == nil {
		t.Fatal("expected pool exhaustion on the 257th create")
	}

	if _, err := o.FinalizeTestContext(handles[0], 100, ""); err != nil {
		t.Fatalf("finalize should succeed: %v", err)
	}

	if _, err := o.CreateTestContext("Class", "recovered"); err != nil {
		t.Fatalf("expected create to succeed after freeing a slot: %v", err)
	}

	for _, h := range handles[1:] {
		o.FinalizeTestContext(h, 100, "")
	}
}

func TestConcurrentCreateFinalize_CountsAreExact(t *testing.T) {
	o := NewOrchestrator()
	const threads = 8
	const perThread = 16

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perThread; j++ {
				h, err := o.CreateTestContext("Class", "method")
				if err != nil {
					return
				}
				o.FinalizeTestContext(h, 80, "")
			}
		}()
	}
	wg.Wait()

	stats := o.GetOrchestratorStatistics()
	if stats.TotalCreated != threads*perThread {
		t.Fatalf("expected %d total created, got %d", threads*perThread, stats.TotalCreated)
	}
	if stats.TotalFinalized != threads*perThread {
		t.Fatalf("expected %d total finalized, got %d", threads*perThread, stats.TotalFinalized)
	}
	if stats.ActiveContexts != 0 {
		t.Fatalf("expected 0 active contexts, got %d", stats.ActiveContexts)
	}
}
