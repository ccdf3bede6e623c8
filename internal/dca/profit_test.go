package dca

import (
	"testing"
	"time"

	"github.com/tradeeon/condition-engine/internal/models"
)

func TestUnrealizedPnlPct(t *testing.T) {
	pos := &models.Position{AverageEntryPrice: 100}
	if got := unrealizedPnlPct(pos, 110); got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}
	if got := unrealizedPnlPct(pos, 90); got != -10 {
		t.Fatalf("expected -10, got %v", got)
	}
	if got := unrealizedPnlPct(&models.Position{}, 100); got != 0 {
		t.Fatalf("expected 0 for no entry price, got %v", got)
	}
}

func TestCheckPartialTargets(t *testing.T) {
	cfg := models.BotConfig{
		PartialTargets: []models.PartialTarget{
			{TriggerPct: 5, Quantity: 0.25},
			{TriggerPct: 10, Quantity: 0.5},
		},
	}
	pos := &models.Position{AverageEntryPrice: 100}

	idx, sizePct, ok := checkPartialTargets(cfg, pos, 106)
	if !ok || idx != 0 || sizePct != 0.25 {
		t.Fatalf("expected target 0 to fire at 0.25, got idx=%d sizePct=%v ok=%v", idx, sizePct, ok)
	}

	pos.PartialTargetsFired = []bool{true, false}
	idx, sizePct, ok = checkPartialTargets(cfg, pos, 106)
	if ok {
		t.Fatalf("expected no fire once target 0 already fired and price hasn't reached target 1, got idx=%d", idx)
	}

	idx, sizePct, ok = checkPartialTargets(cfg, pos, 111)
	if !ok || idx != 1 || sizePct != 0.5 {
		t.Fatalf("expected target 1 to fire at 0.5, got idx=%d sizePct=%v ok=%v", idx, sizePct, ok)
	}
}

func TestCheckTrailingStop(t *testing.T) {
	cfg := models.BotConfig{TrailingArmPct: 5, TrailingStopPct: 2}
	pos := &models.Position{AverageEntryPrice: 100}

	// Below arm threshold: doesn't arm, doesn't fire.
	if checkTrailingStop(cfg, pos, 102) {
		t.Fatal("should not fire before arming")
	}
	if pos.TrailingArmed {
		t.Fatal("should not arm below TrailingArmPct")
	}

	// Crosses arm threshold: arms at the current price, doesn't fire yet.
	if checkTrailingStop(cfg, pos, 106) {
		t.Fatal("should not fire on the arming tick")
	}
	if !pos.TrailingArmed || pos.TrailingPeak != 106 {
		t.Fatalf("expected armed at peak=106, got armed=%v peak=%v", pos.TrailingArmed, pos.TrailingPeak)
	}

	// Price rises further: peak tracks up, still no fire.
	if checkTrailingStop(cfg, pos, 110) {
		t.Fatal("should not fire while still rising")
	}
	if pos.TrailingPeak != 110 {
		t.Fatalf("expected peak to track to 110, got %v", pos.TrailingPeak)
	}

	// Retrace 2% off peak (110 * 0.98 = 107.8): fires.
	if !checkTrailingStop(cfg, pos, 107.5) {
		t.Fatal("expected fire on 2%% retrace from peak")
	}

	// Small dip that doesn't breach the trail: no fire.
	pos2 := &models.Position{AverageEntryPrice: 100, TrailingArmed: true, TrailingPeak: 110}
	if checkTrailingStop(cfg, pos2, 109) {
		t.Fatal("should not fire on a dip within the trail distance")
	}
}

func TestCheckTrailingStopDisabled(t *testing.T) {
	cfg := models.BotConfig{}
	pos := &models.Position{AverageEntryPrice: 100}
	if checkTrailingStop(cfg, pos, 50) {
		t.Fatal("expected no-op when TrailingStopPct is zero")
	}
}

func TestCheckTimeExit(t *testing.T) {
	cfg := models.BotConfig{TimeExitDuration: time.Hour, MinTimeExitPct: 1}
	now := time.Now()
	pos := &models.Position{AverageEntryPrice: 100, OpenedAt: now.Add(-2 * time.Hour)}

	if !checkTimeExit(cfg, pos, 102, now) {
		t.Fatal("expected fire: duration elapsed and PNL above minimum")
	}
	if checkTimeExit(cfg, pos, 100.5, now) {
		t.Fatal("expected no fire: PNL below minimum")
	}

	freshPos := &models.Position{AverageEntryPrice: 100, OpenedAt: now.Add(-10 * time.Minute)}
	if checkTimeExit(cfg, freshPos, 102, now) {
		t.Fatal("expected no fire: duration not yet elapsed")
	}
}

func TestResetPositionFlags(t *testing.T) {
	pos := &models.Position{
		TrailingArmed:       true,
		TrailingPeak:        123,
		PartialTargetsFired: []bool{true, true},
	}
	resetPositionFlags(pos)
	if pos.TrailingArmed || pos.TrailingPeak != 0 || pos.PartialTargetsFired != nil {
		t.Fatalf("expected all flags reset, got %+v", pos)
	}
}
