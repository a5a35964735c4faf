package fifo

import (
	"testing"
	"time"

	"github.com/axkibe/lsyncd-go/pkg/delay"
)

func TestCreateThenDeleteNullifies(t *testing.T) {
	var q Queue
	now := time.Now()
	q.Insert(delay.Create, now, "x", "")
	q.Insert(delay.Delete, now, "x", "")
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after create+delete, got %d entries", q.Len())
	}
}

func TestAttribThenModifyReplaces(t *testing.T) {
	var q Queue
	now := time.Now()
	q.Insert(delay.Attrib, now, "x", "")
	q.Insert(delay.Modify, now, "x", "")
	if q.Len() != 1 {
		t.Fatalf("expected exactly one delay, got %d", q.Len())
	}
	if q.Delays()[0].Etype != delay.Modify {
		t.Fatalf("expected surviving delay to be Modify, got %v", q.Delays()[0].Etype)
	}
}

func TestBurstOfModifiesAbsorbs(t *testing.T) {
	var q Queue
	now := time.Now()
	q.Insert(delay.Create, now, "f", "")
	q.Insert(delay.Modify, now, "f", "")
	q.Insert(delay.Modify, now, "f", "")
	if q.Len() != 1 {
		t.Fatalf("expected exactly one delay, got %d", q.Len())
	}
	if q.Delays()[0].Etype != delay.Create {
		t.Fatalf("expected surviving delay to remain Create, got %v", q.Delays()[0].Etype)
	}
}

func TestParentChildStacks(t *testing.T) {
	var q Queue
	now := time.Now()
	q.Insert(delay.Modify, now, "d/f", "")
	q.Insert(delay.Delete, now, "d/", "")
	if q.Len() != 2 {
		t.Fatalf("expected both delays to remain queued, got %d", q.Len())
	}
	modify := q.Delays()[0]
	del := q.Delays()[1]
	if del.Status != delay.Block {
		t.Fatalf("expected Delete(d/) to be blocked, got status %v", del.Status)
	}
	if len(modify.Blocks) != 1 || modify.Blocks[0] != del {
		t.Fatal("expected Modify(d/f) to list Delete(d/) in its blocks")
	}

	q.RemoveDelay(modify)
	if del.Status != delay.Wait {
		t.Fatalf("expected Delete(d/) to become runnable after its blocker was removed, got %v", del.Status)
	}
}

func TestBlanketBlocksSubsequentDelays(t *testing.T) {
	var q Queue
	now := time.Now()
	q.Insert(delay.Blanket, now, "", "")
	q.Insert(delay.Modify, now, "a", "")
	if q.Len() != 2 {
		t.Fatalf("expected 2 delays, got %d", q.Len())
	}
	if q.Delays()[1].Status != delay.Block {
		t.Fatal("expected delay following a Blanket to be blocked")
	}
	q.Delays()[0].Status = delay.Active
	got := q.GetDelays(nil)
	if len(got) != 0 {
		t.Fatalf("expected GetDelays to exclude everything behind an active Blanket, got %d", len(got))
	}
}

func TestGetDelaysExcludesActiveAndItsBlocked(t *testing.T) {
	var q Queue
	now := time.Now()
	q.Insert(delay.Modify, now, "d/f", "")
	q.Insert(delay.Delete, now, "d/", "")
	q.Delays()[0].Status = delay.Active

	got := q.GetDelays(nil)
	if len(got) != 0 {
		t.Fatalf("expected no runnable delays while the blocker is active, got %d", len(got))
	}
}

func TestMoveDegeneratesReplacedMoveToDelete(t *testing.T) {
	var q Queue
	now := time.Now()
	q.Insert(delay.Move, now, "a", "b")
	q.Insert(delay.Delete, now, "b", "")
	if q.Len() != 2 {
		t.Fatalf("expected the degenerated Move plus the appended Delete, got %d", q.Len())
	}
	if q.Delays()[0].Etype != delay.Delete || q.Delays()[0].Path != "a" {
		t.Fatalf("expected the Move to degenerate to Delete(a), got %v(%s)", q.Delays()[0].Etype, q.Delays()[0].Path)
	}
}
