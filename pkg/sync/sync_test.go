package sync

import (
	"os/exec"
	"testing"
	"time"

	"github.com/axkibe/lsyncd-go/pkg/delay"
	"github.com/axkibe/lsyncd-go/pkg/inlet"
	"github.com/axkibe/lsyncd-go/pkg/process"
)

func newTestSync(t *testing.T, action ActionFunc) *Sync {
	t.Helper()
	completions := make(chan process.Completion, 8)
	s, err := New(Config{
		Name:         "test",
		Source:       "/src",
		Target:       "/dst",
		Delay:        0,
		MaxProcesses: 1,
		Action:       action,
	}, completions)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDelayExcludedPathDropped(t *testing.T) {
	s := newTestSync(t, func(in *inlet.Inlet) error { return nil })
	if err := s.AddExclude("*.tmp"); err != nil {
		t.Fatal(err)
	}
	s.Delay(delay.Modify, time.Now(), "a.tmp", "")
	if s.QueueLen() != 0 {
		t.Fatalf("expected excluded event to be dropped, queue has %d entries", s.QueueLen())
	}
}

func TestMoveDecomposesWithoutOnMove(t *testing.T) {
	s := newTestSync(t, func(in *inlet.Inlet) error { return nil })
	s.Delay(delay.Move, time.Now(), "a", "b")
	if s.QueueLen() != 2 {
		t.Fatalf("expected Move to decompose into Delete+Create, got %d entries", s.QueueLen())
	}
	delays := s.GetDelays(nil)
	if len(delays) != 2 {
		t.Fatalf("expected both delays runnable, got %d", len(delays))
	}
	if delays[0].Etype != delay.Delete || delays[0].Path != "a" {
		t.Fatalf("expected first delay to be Delete(a), got %v(%s)", delays[0].Etype, delays[0].Path)
	}
	if delays[1].Etype != delay.Create || delays[1].Path != "b" {
		t.Fatalf("expected second delay to be Create(b), got %v(%s)", delays[1].Etype, delays[1].Path)
	}
}

func TestInvokeActionsSpawnsAndCollectAgainRetries(t *testing.T) {
	var spawned *inlet.Inlet
	s := newTestSync(t, func(in *inlet.Inlet) error {
		spawned = in
		_, err := in.Spawn(exec.Command("true"))
		return err
	})
	s.config.Collect = func(agent Agent, exitCode int) CollectResult {
		return Again
	}

	s.Delay(delay.Modify, time.Time{}, "f", "")
	s.InvokeActions(time.Now())

	if spawned == nil {
		t.Fatal("expected action to run")
	}
	if s.RunningProcesses() != 1 {
		t.Fatalf("expected one running process, got %d", s.RunningProcesses())
	}

	var pid int
	for p := range s.processes {
		pid = p
	}
	claimed, die := s.Collect(pid, 5)
	if !claimed {
		t.Fatal("expected this sync to claim the pid")
	}
	if die {
		t.Fatal("did not expect Again to request termination")
	}
	if s.QueueLen() != 1 {
		t.Fatalf("expected the retried delay to remain queued, got %d", s.QueueLen())
	}
	if s.queue.Delays()[0].Status != delay.Wait {
		t.Fatalf("expected retried delay back to Wait, got %v", s.queue.Delays()[0].Status)
	}
	if s.RunningProcesses() != 0 {
		t.Fatal("expected process table to be cleared after collect")
	}
}

func TestInvokeActionsBatchesReadyDelays(t *testing.T) {
	var invocations int
	var lastBatchSize int
	s := newTestSync(t, func(in *inlet.Inlet) error {
		invocations++
		lastBatchSize = len(in.GetPaths(nil))
		return in.DiscardEvent()
	})
	s.config.MaxProcesses = 0

	s.Delay(delay.Modify, time.Time{}, "a", "")
	s.Delay(delay.Modify, time.Time{}, "b", "")
	s.InvokeActions(time.Now())

	if invocations != 1 {
		t.Fatalf("expected one batched invocation, got %d", invocations)
	}
	if lastBatchSize != 2 {
		t.Fatalf("expected a batch of 2 delays, got %d", lastBatchSize)
	}
	if s.QueueLen() != 0 {
		t.Fatalf("expected both delays discarded, queue has %d entries", s.QueueLen())
	}
}

func TestInitSeedsBlanketDelay(t *testing.T) {
	s := newTestSync(t, func(in *inlet.Inlet) error { return nil })
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("expected init to seed one blanket delay, got %d", s.QueueLen())
	}
	if s.queue.Delays()[0].Etype != delay.Blanket {
		t.Fatalf("expected blanket delay, got %v", s.queue.Delays()[0].Etype)
	}
}
