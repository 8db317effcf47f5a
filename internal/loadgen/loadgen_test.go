package loadgen

import (
	"testing"
	"time"

	"pkt.systems/paneflow/schema"
)

func TestGenerationIsDeterministicForFixedSeed(t *testing.T) {
	scenario := SSHJitterStorm("host-a", "tab-7", 3, 8)
	a := New(scenario, 42)
	b := New(scenario, 42)
	now := time.Unix(1_700_000_000, 0)
	for tick := 0; tick < scenario.Ticks; tick++ {
		ia := a.IntentsForTick(tick, now)
		ib := b.IntentsForTick(tick, now)
		if len(ia) != len(ib) {
			t.Fatalf("tick %d: %d vs %d intents", tick, len(ia), len(ib))
		}
		for i := range ia {
			if ia[i] != ib[i] {
				t.Fatalf("tick %d intent %d: %+v vs %+v", tick, i, ia[i], ib[i])
			}
		}
	}
}

func TestSequencesAreMonotonicPerPane(t *testing.T) {
	scenario := Mixed()
	g := New(scenario, 7)
	now := time.Unix(1_700_000_000, 0)
	last := make(map[schema.PaneID]schema.IntentSeq)
	total := 0
	for tick := 0; tick < scenario.Ticks; tick++ {
		for _, intent := range g.IntentsForTick(tick, now) {
			if intent.Seq <= last[intent.PaneID] {
				t.Fatalf("pane %s seq %d not above %d", intent.PaneID, intent.Seq, last[intent.PaneID])
			}
			last[intent.PaneID] = intent.Seq
			total++
		}
	}
	if total == 0 {
		t.Fatalf("scenario emitted no intents")
	}
}

func TestNamedScenarios(t *testing.T) {
	for _, name := range ScenarioNames() {
		scenario, err := Named(name)
		if err != nil {
			t.Fatalf("Named(%s): %v", name, err)
		}
		if scenario.Name != name || len(scenario.Steps) == 0 || scenario.Ticks <= 0 {
			t.Fatalf("Named(%s) = %+v", name, scenario)
		}
	}
	if _, err := Named("bogus"); err == nil {
		t.Fatalf("unknown scenario accepted")
	}
}

func TestCostReflowerChargesByDomainKind(t *testing.T) {
	g := New(SSHJitterStorm("host-a", "tab-7", 1, 1), 1)
	rf := NewCostReflower(g)
	work := schema.ScheduledWork{PaneID: "ssh-host-a-0"}
	if res := rf.Prepare(work); !res.OK {
		t.Fatalf("prepare not ok")
	}
	if rf.WorkDone != 3 {
		t.Fatalf("remote phase cost = %d, want 3", rf.WorkDone)
	}
	rf.ApplySync("ssh-host-a-0", 80, 24)
	if rf.SyncApplies != 1 {
		t.Fatalf("sync applies = %d, want 1", rf.SyncApplies)
	}
}
