package recurrence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/reminders/internal/model"
	"github.com/nhle/reminders/internal/store"
)

// RecoveryReport summarizes a start-up sweep.
type RecoveryReport struct {
	// Rearmed counts rows whose timer was missing and has been armed again.
	Rearmed int
	// Completed counts FIRED rows whose successor already existed.
	Completed int
	// Rescheduled counts FIRED rows whose successor step was re-run.
	Rescheduled int
	// Terminated counts rows that can never fire again.
	Terminated int
}

// Recover repairs the timer chain after a crash or restart. Rows that were
// inserted but never armed, or whose timer is gone, are armed at their own
// date and time; a past instant fires on the next loop tick. Rows left in
// FIRED get their successor step finished.
func (e *Engine) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	pending, err := e.store.GetEvents(ctx, store.EventFilter{
		AlarmStates: []model.AlarmState{model.AlarmPendingArm, model.AlarmArmed},
	})
	if err != nil {
		return report, fmt.Errorf("loading unarmed events: %w", err)
	}
	for _, ev := range pending {
		if ev.AlarmState == model.AlarmArmed {
			armed, err := e.timers.Has(ctx, ev.TimerKey())
			if err != nil {
				return report, err
			}
			if armed {
				continue
			}
		}

		at, err := e.instant(ev.Date, ev.Time)
		if err != nil {
			e.log.Warn("event cannot be armed", zap.Int64("event_id", ev.ID), zap.Error(err))
			if err := e.transition(ctx, ev.ID, model.AlarmTerminated); err != nil {
				return report, err
			}
			report.Terminated++
			continue
		}
		if err := e.timers.Arm(ctx, ev.TimerKey(), at, ev.Firing()); err != nil {
			return report, fmt.Errorf("re-arming event %d: %w", ev.ID, err)
		}
		if err := e.transition(ctx, ev.ID, model.AlarmArmed); err != nil {
			return report, err
		}
		report.Rearmed++
	}

	fired, err := e.store.GetEvents(ctx, store.EventFilter{
		AlarmStates: []model.AlarmState{model.AlarmFired},
	})
	if err != nil {
		return report, fmt.Errorf("loading fired events: %w", err)
	}
	for _, ev := range fired {
		id := ev.ID
		successors, err := e.store.GetEvents(ctx, store.EventFilter{ParentID: &id, Limit: 1})
		if err != nil {
			return report, fmt.Errorf("loading successors of event %d: %w", id, err)
		}
		if len(successors) > 0 {
			if err := e.transition(ctx, id, model.AlarmRescheduled); err != nil {
				return report, err
			}
			report.Completed++
			continue
		}

		base, err := e.instant(ev.Date, ev.Time)
		if err != nil {
			base = e.now()
		}
		successor, err := e.reschedule(ctx, ev.Firing(), base)
		if err != nil {
			return report, err
		}
		if successor == nil {
			report.Terminated++
		} else {
			report.Rescheduled++
		}
	}

	if report != (RecoveryReport{}) {
		e.log.Info("timer chain recovered",
			zap.Int("rearmed", report.Rearmed),
			zap.Int("completed", report.Completed),
			zap.Int("rescheduled", report.Rescheduled),
			zap.Int("terminated", report.Terminated),
		)
	}
	return report, nil
}
