package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Gate is the playbook's top-level boolean combinator.
type Gate string

const (
	GateAll Gate = "ALL"
	GateAny Gate = "ANY"
)

// Logic is the connector binding an item to the chain of items already
// consumed.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// EvaluationOrder selects how playbook items are ordered before the
// connector chain runs.
type EvaluationOrder string

const (
	OrderPriority   EvaluationOrder = "priority"
	OrderSequential EvaluationOrder = "sequential"
)

// Item is one playbook entry: a reference to an already-registered
// condition fingerprint, plus the connector and validity-window settings
// that govern how its truth carries across bars.
type Item struct {
	Fingerprint     string
	Priority        int
	Logic           Logic
	Enabled         bool
	ValidityBars    int
	ValidityMinutes int
}

// Playbook is an ordered list of condition items plus a gate (spec.md
// §4.4). Playbook.Fingerprint is computed by Fingerprint, not stored
// inline, so mutating Items requires recomputing it.
type Playbook struct {
	Gate            Gate
	EvaluationOrder EvaluationOrder
	Items           []Item
}

// Fingerprint composes the playbook's own fingerprint from its items:
// sort child fingerprints lexicographically, concatenate with the gate, the
// evaluation order and the per-item join-logic list, then hash. The
// join-logic list keeps declaration order, so reordering items leaves the
// fingerprint unchanged only when their join logics are identical.
func (p Playbook) Fingerprint() string {
	fps := make([]string, len(p.Items))
	for i, it := range p.Items {
		fps[i] = it.Fingerprint
	}
	sort.Strings(fps)

	logics := make([]string, len(p.Items))
	for i, it := range p.Items {
		logics[i] = string(it.Logic)
	}

	buf := string(p.Gate) + "|" + string(p.EvaluationOrder) + "|"
	for _, fp := range fps {
		buf += fp + ","
	}
	buf += "|"
	for _, l := range logics {
		buf += l + ","
	}

	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:16])
}

// ItemState carries an item's validity-window bookkeeping across
// evaluation cycles: the last bar/time at which its atomic condition was
// observed true.
type ItemState struct {
	TrueAtBar  int64
	TrueAtTime time.Time
	everTrue   bool
}

// ItemInput is one item's atomic truth for the current cycle, paired with
// its config.
type ItemInput struct {
	Item       Item
	AtomicTrue bool
}

// Evaluate runs the ordering, validity-window carryover, and connector
// chain for one playbook cycle. states is keyed by item fingerprint and is
// mutated in place to record items that newly went true this cycle.
// currentBar and currentTime identify the bar being evaluated.
func Evaluate(pb Playbook, inputs []ItemInput, states map[string]*ItemState, currentBar int64, currentTime time.Time) bool {
	ordered := orderItems(pb.EvaluationOrder, inputs)

	var result *bool
	anyTrue := false

	for _, in := range ordered {
		if !in.Item.Enabled {
			continue
		}

		effective := effectiveTruth(in, states, currentBar, currentTime)
		if effective {
			anyTrue = true
		}

		if result == nil {
			v := effective
			result = &v
			continue
		}
		combined := combine(*result, in.Item.Logic, effective)
		result = &combined
	}

	chainResult := result != nil && *result

	switch pb.Gate {
	case GateAny:
		return chainResult || anyTrue
	default: // GateAll
		return chainResult
	}
}

func orderItems(order EvaluationOrder, inputs []ItemInput) []ItemInput {
	out := make([]ItemInput, len(inputs))
	copy(out, inputs)
	if order == OrderPriority {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Item.Priority < out[j].Item.Priority
		})
	}
	return out
}

func combine(acc bool, logic Logic, a bool) bool {
	if logic == LogicOr {
		return acc || a
	}
	return acc && a
}

// effectiveTruth resolves an item's truth for this cycle: if it evaluated
// atomically true, its state is refreshed and it counts as true; otherwise
// it remains true only while inside its validity window.
func effectiveTruth(in ItemInput, states map[string]*ItemState, currentBar int64, currentTime time.Time) bool {
	st, ok := states[in.Item.Fingerprint]
	if !ok {
		st = &ItemState{}
		states[in.Item.Fingerprint] = st
	}

	if in.AtomicTrue {
		st.TrueAtBar = currentBar
		st.TrueAtTime = currentTime
		st.everTrue = true
		return true
	}

	if !st.everTrue {
		return false
	}

	if in.Item.ValidityBars > 0 {
		return currentBar-st.TrueAtBar <= int64(in.Item.ValidityBars)
	}
	if in.Item.ValidityMinutes > 0 {
		return currentTime.Sub(st.TrueAtTime) <= time.Duration(in.Item.ValidityMinutes)*time.Minute
	}
	return false
}
