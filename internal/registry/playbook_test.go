package registry

import (
	"testing"
	"time"
)

func TestPlaybookFingerprintOrderIndependent(t *testing.T) {
	pb1 := Playbook{
		Gate: GateAll, EvaluationOrder: OrderPriority,
		Items: []Item{
			{Fingerprint: "aaa", Logic: LogicAnd},
			{Fingerprint: "bbb", Logic: LogicAnd},
		},
	}
	pb2 := Playbook{
		Gate: GateAll, EvaluationOrder: OrderPriority,
		Items: []Item{
			{Fingerprint: "bbb", Logic: LogicAnd},
			{Fingerprint: "aaa", Logic: LogicAnd},
		},
	}
	if pb1.Fingerprint() != pb2.Fingerprint() {
		t.Error("playbook fingerprint should not depend on item declaration order")
	}
}

func TestPlaybookFingerprintDiffersOnGate(t *testing.T) {
	items := []Item{{Fingerprint: "aaa", Logic: LogicAnd}}
	all := Playbook{Gate: GateAll, EvaluationOrder: OrderPriority, Items: items}
	any := Playbook{Gate: GateAny, EvaluationOrder: OrderPriority, Items: items}
	if all.Fingerprint() == any.Fingerprint() {
		t.Error("ALL and ANY gates must produce different playbook fingerprints")
	}
}

// TestPlaybookScenario3 implements spec.md's literal scenario: item A (RSI
// crosses_below 30, validity 10 bars, priority 1) goes true at bar b0; item
// B (price crosses_above EMA(50), priority 2) goes true at b0+3, while A's
// validity window still covers it. The gated boolean must be true at b0+3.
func TestPlaybookScenario3PlaybookALLWithValidity(t *testing.T) {
	pb := Playbook{
		Gate:            GateAll,
		EvaluationOrder: OrderPriority,
		Items: []Item{
			{Fingerprint: "item-a", Priority: 1, Logic: LogicAnd, Enabled: true, ValidityBars: 10},
			{Fingerprint: "item-b", Priority: 2, Logic: LogicAnd, Enabled: true},
		},
	}
	states := map[string]*ItemState{}
	base := time.Unix(0, 0).UTC()

	// bar b0: A true, B false.
	r0 := Evaluate(pb, []ItemInput{
		{Item: pb.Items[0], AtomicTrue: true},
		{Item: pb.Items[1], AtomicTrue: false},
	}, states, 0, base)
	if r0 {
		t.Fatal("expected no trigger at b0 — B has not fired yet")
	}

	// bars b0+1, b0+2: neither item atomically true; A's validity window
	// should still carry it.
	for bar := int64(1); bar <= 2; bar++ {
		r := Evaluate(pb, []ItemInput{
			{Item: pb.Items[0], AtomicTrue: false},
			{Item: pb.Items[1], AtomicTrue: false},
		}, states, bar, base.Add(time.Duration(bar)*time.Hour))
		if r {
			t.Fatalf("expected no trigger at b0+%d", bar)
		}
	}

	// bar b0+3: B goes true; A is not re-evaluated (still within its
	// 10-bar validity window) so it still counts as true.
	r3 := Evaluate(pb, []ItemInput{
		{Item: pb.Items[0], AtomicTrue: false},
		{Item: pb.Items[1], AtomicTrue: true},
	}, states, 3, base.Add(3*time.Hour))
	if !r3 {
		t.Fatal("expected the playbook to trigger at b0+3")
	}
}

func TestPlaybookValidityExpiresAfterWindow(t *testing.T) {
	pb := Playbook{
		Gate:            GateAll,
		EvaluationOrder: OrderPriority,
		Items: []Item{
			{Fingerprint: "item-a", Priority: 1, Logic: LogicAnd, Enabled: true, ValidityBars: 2},
			{Fingerprint: "item-b", Priority: 2, Logic: LogicAnd, Enabled: true},
		},
	}
	states := map[string]*ItemState{}
	base := time.Unix(0, 0).UTC()

	Evaluate(pb, []ItemInput{
		{Item: pb.Items[0], AtomicTrue: true},
		{Item: pb.Items[1], AtomicTrue: false},
	}, states, 0, base)

	// bar b0+3 is past the 2-bar validity window: A must be re-evaluated,
	// and since it's false here the gate must not trigger even though B is
	// true.
	r := Evaluate(pb, []ItemInput{
		{Item: pb.Items[0], AtomicTrue: false},
		{Item: pb.Items[1], AtomicTrue: true},
	}, states, 3, base.Add(3*time.Hour))
	if r {
		t.Fatal("expected no trigger once A's validity window has expired")
	}
}

func TestPlaybookGateAnyTriggersOnSingleItem(t *testing.T) {
	pb := Playbook{
		Gate:            GateAny,
		EvaluationOrder: OrderSequential,
		Items: []Item{
			{Fingerprint: "item-a", Logic: LogicAnd, Enabled: true},
			{Fingerprint: "item-b", Logic: LogicAnd, Enabled: true},
		},
	}
	states := map[string]*ItemState{}
	r := Evaluate(pb, []ItemInput{
		{Item: pb.Items[0], AtomicTrue: true},
		{Item: pb.Items[1], AtomicTrue: false},
	}, states, 0, time.Unix(0, 0).UTC())
	if !r {
		t.Fatal("GateAny should trigger when at least one item is true")
	}
}

func TestPlaybookDisabledItemsExcludedFromChain(t *testing.T) {
	pb := Playbook{
		Gate:            GateAll,
		EvaluationOrder: OrderSequential,
		Items: []Item{
			{Fingerprint: "item-a", Logic: LogicAnd, Enabled: false},
			{Fingerprint: "item-b", Logic: LogicAnd, Enabled: true},
		},
	}
	states := map[string]*ItemState{}
	r := Evaluate(pb, []ItemInput{
		{Item: pb.Items[0], AtomicTrue: false}, // disabled, would otherwise break AND chain
		{Item: pb.Items[1], AtomicTrue: true},
	}, states, 0, time.Unix(0, 0).UTC())
	if !r {
		t.Fatal("disabled item must not participate in the connector chain")
	}
}
