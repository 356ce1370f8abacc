package audit

import (
	"testing"
	"time"

	"github.com/edgerun/skippy/internal/skippy/model"
)

func TestLog_RecordAndGetRecent(t *testing.T) {
	l := NewLog(10)
	pod := model.Pod{Name: "p1", Namespace: "default"}
	result := model.SchedulingResult{
		SuggestedHost: &model.Node{Name: "n1"},
		FeasibleNodes: 3,
		NeededImages:  []string{"repo/img:latest"},
	}
	l.Record(pod, result, 5*time.Millisecond)

	recent := l.GetRecent(10)
	if len(recent) != 1 {
		t.Fatalf("len(GetRecent) = %d, want 1", len(recent))
	}
	r := recent[0]
	if r.PodName != "p1" || r.PodNamespace != "default" {
		t.Errorf("pod = %s/%s, want default/p1", r.PodNamespace, r.PodName)
	}
	if r.ChosenNode != "n1" {
		t.Errorf("ChosenNode = %q, want n1", r.ChosenNode)
	}
	if r.FeasibleNodes != 3 {
		t.Errorf("FeasibleNodes = %d, want 3", r.FeasibleNodes)
	}
	if len(r.NeededImages) != 1 || r.NeededImages[0] != "repo/img:latest" {
		t.Errorf("NeededImages = %v, want [repo/img:latest]", r.NeededImages)
	}
}

func TestLog_RecordsInfeasibleResult(t *testing.T) {
	l := NewLog(10)
	pod := model.Pod{Name: "p1", Namespace: "default"}
	result := model.SchedulingResult{FeasibleNodes: 0}
	l.Record(pod, result, time.Millisecond)

	recent := l.GetRecent(1)
	if recent[0].ChosenNode != "" {
		t.Errorf("ChosenNode = %q, want empty for infeasible result", recent[0].ChosenNode)
	}
}

func TestLog_RingBufferEvictsOldest(t *testing.T) {
	l := NewLog(2)
	pod := model.Pod{Name: "p", Namespace: "default"}
	for i := 0; i < 3; i++ {
		l.Record(pod, model.SchedulingResult{SuggestedHost: &model.Node{Name: "n"}}, time.Millisecond)
	}

	all := l.GetRecent(10)
	if len(all) != 2 {
		t.Fatalf("len(GetRecent) = %d, want 2 (capacity)", len(all))
	}
}

func TestLog_GetRecent_OrderedNewestFirst(t *testing.T) {
	l := NewLog(10)
	pod := model.Pod{Name: "p", Namespace: "default"}
	l.Record(pod, model.SchedulingResult{SuggestedHost: &model.Node{Name: "first"}}, time.Millisecond)
	l.Record(pod, model.SchedulingResult{SuggestedHost: &model.Node{Name: "second"}}, time.Millisecond)

	recent := l.GetRecent(2)
	if recent[0].ChosenNode != "second" || recent[1].ChosenNode != "first" {
		t.Errorf("GetRecent order = [%s, %s], want [second, first]", recent[0].ChosenNode, recent[1].ChosenNode)
	}
}

func TestLog_Flush_NoWriterIsNoOp(t *testing.T) {
	l := NewLog(10)
	l.Flush() // must not panic with no writer configured
}
