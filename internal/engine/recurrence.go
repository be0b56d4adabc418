package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calsync/internal/model"
	pkgLog "calsync/pkg/log"
)

// Reconciler keeps the recurrence pattern and the per-occurrence
// exceptions of a matched pair in step with right-side truth.
type Reconciler struct {
	st    Settings
	store IdentityStore
	l     pkgLog.Logger
}

func NewReconciler(st Settings, store IdentityStore, l pkgLog.Logger) *Reconciler {
	return &Reconciler{st: st, store: store, l: l}
}

// ReconcileRecurrence is the orchestrator-facing surface: transitions,
// pattern diff and exception reconciliation for one pair. Returns the
// mutation count.
func (r *Reconciler) ReconcileRecurrence(ctx context.Context, pair MatchedPair) (int, error) {
	res := &DiffResult{}
	r.ApplyTransitions(ctx, pair.Left, pair.Right, res)
	if pair.Left.IsSeriesMaster() && pair.Right.IsSeriesMaster() {
		r.ComparePattern(ctx, pair.Left, pair.Right, res)
	}
	if pair.Left.IsSeriesMaster() {
		n, err := r.ReconcileExceptions(ctx, pair)
		if err != nil {
			return res.MutationCount, err
		}
		res.MutationCount += n
	}
	return res.MutationCount, nil
}

// ApplyTransitions converts the left item between recurring and
// non-recurring per right-side truth. A right item that is itself a
// generated occurrence never turns the left item into a master.
func (r *Reconciler) ApplyTransitions(ctx context.Context, left, right *model.Event, res *DiffResult) {
	if left.IsSeriesMaster() {
		if right.Recurrence == nil || right.IsOccurrence() {
			r.l.Debugf(ctx, "recurrence: converting %s to non-recurring", left.Summary())
			left.Recurrence = nil
			left.Exceptions = nil
			res.MutationCount++
			res.RecurrenceTouched = true
		}
		return
	}
	if left.Recurrence == nil && right.Recurrence != nil && !right.IsOccurrence() {
		r.l.Debugf(ctx, "recurrence: converting %s to recurring", left.Summary())
		r.buildPattern(left, right)
		res.MutationCount++
		res.RecurrenceTouched = true
	}
}

// RebuildPattern clears and regenerates the left master's pattern from
// right-side truth. Required for timezone changes, which the pattern
// representation cannot express incrementally.
func (r *Reconciler) RebuildPattern(ctx context.Context, left, right *model.Event, res *DiffResult) {
	if right.Recurrence == nil {
		return
	}
	r.l.Debugf(ctx, "recurrence: full pattern rebuild for %s", left.Summary())
	left.Recurrence = nil
	r.buildPattern(left, right)
	res.RecurrenceTouched = true
}

// ComparePattern diffs the pattern fields of two series masters and
// applies right-side truth to the left pattern. Pattern duration is
// recomputed from the master's end minus start on every pass, because
// the pattern representation does not store it independently.
func (r *Reconciler) ComparePattern(ctx context.Context, left, right *model.Event, res *DiffResult) {
	lp, rp := left.Recurrence, right.Recurrence
	if lp == nil || rp == nil {
		return
	}

	if compareAttribute(res, "Recurrence frequency", string(rp.Frequency), string(lp.Frequency)) {
		lp.Frequency = rp.Frequency
	}
	if compareAttribute(res, "Recurrence interval", itoa(rp.Interval), itoa(lp.Interval)) {
		lp.Interval = rp.Interval
	}
	if compareAttribute(res, "Recurrence weekdays", weekdaysString(rp.ByWeekday), weekdaysString(lp.ByWeekday)) {
		lp.ByWeekday = append([]time.Weekday(nil), rp.ByWeekday...)
	}
	if compareAttribute(res, "Recurrence count", itoa(rp.Count), itoa(lp.Count)) {
		lp.Count = rp.Count
	}
	if !lp.Until.Equal(rp.Until) {
		res.logChange("Recurrence until", stampOrNone(lp.Until), stampOrNone(rp.Until))
		lp.Until = rp.Until
	}

	// Duration maintenance, not a counted mutation.
	if want := left.Start.Add(right.Duration()); !left.End.Equal(want) {
		left.End = want
	}
}

// ReconcileExceptions aligns the left master's exception set with the
// occurrences the right side marks as modified or cancelled. Exceptions
// join on the original pattern-computed start time only; the current
// start of a modified occurrence is not stable across sides.
func (r *Reconciler) ReconcileExceptions(ctx context.Context, pair MatchedPair) (int, error) {
	left, right := pair.Left, pair.Right
	if !left.IsSeriesMaster() {
		return 0, ErrNotSeriesMaster
	}
	mutations := 0

	rr, err := r.patternRule(left)
	if err != nil {
		r.l.Warnf(ctx, "recurrence: cannot evaluate pattern of %s: %v", left.Summary(), err)
		rr = nil
	}

	for i := range right.Exceptions {
		rex := &right.Exceptions[i]
		if rr != nil && !occursAt(rr, rex.OriginalStart) {
			r.l.Warnf(ctx, "recurrence: exception at %s does not lie on the pattern of %s",
				rex.OriginalStart.Format(time.RFC3339), left.Summary())
		}
		lex := left.FindException(rex.OriginalStart)
		if lex == nil {
			left.Exceptions = append(left.Exceptions, cloneException(rex))
			r.l.Debugf(ctx, "recurrence: exception created at %s", rex.OriginalStart.Format(time.RFC3339))
			mutations++
			continue
		}
		if r.reconcileException(lex, rex) {
			mutations++
		}
	}

	// Occurrences the right side reverted to the default pattern lose
	// their left exception.
	for i := len(left.Exceptions) - 1; i >= 0; i-- {
		if right.FindException(left.Exceptions[i].OriginalStart) == nil {
			r.l.Debugf(ctx, "recurrence: exception removed at %s",
				left.Exceptions[i].OriginalStart.Format(time.RFC3339))
			left.Exceptions = append(left.Exceptions[:i], left.Exceptions[i+1:]...)
			mutations++
		}
	}
	return mutations, nil
}

func (r *Reconciler) reconcileException(lex, rex *model.Exception) bool {
	changed := false
	if lex.Cancelled != rex.Cancelled {
		lex.Cancelled = rex.Cancelled
		if rex.Cancelled {
			lex.Override = nil
		}
		changed = true
	}
	if rex.Override != nil {
		if lex.Override == nil || !overrideEqual(lex.Override, rex.Override) {
			ov := *rex.Override
			lex.Override = &ov
			changed = true
		}
	} else if !rex.Cancelled && lex.Override != nil {
		lex.Override = nil
		changed = true
	}
	return changed
}

func overrideEqual(a, b *model.Event) bool {
	return a.Subject == b.Subject &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End) &&
		a.Location == b.Location
}

func cloneException(ex *model.Exception) model.Exception {
	out := model.Exception{OriginalStart: ex.OriginalStart, Cancelled: ex.Cancelled}
	if ex.Override != nil {
		ov := *ex.Override
		out.Override = &ov
	}
	return out
}

func (r *Reconciler) buildPattern(left, right *model.Event) {
	if right.Recurrence == nil {
		return
	}
	rule := *right.Recurrence
	rule.ByWeekday = append([]time.Weekday(nil), right.Recurrence.ByWeekday...)
	left.Recurrence = &rule
}

func (r *Reconciler) patternRule(master *model.Event) (*rrule.RRule, error) {
	return BuildRRule(master.Recurrence, master.Start)
}

// BuildRRule converts the provider-neutral rule into an evaluable
// recurrence rule anchored at dtstart.
func BuildRRule(rule *model.RecurrenceRule, dtstart time.Time) (*rrule.RRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("no recurrence rule")
	}
	opt := rrule.ROption{
		Interval: rule.Interval,
		Count:    rule.Count,
		Until:    rule.Until,
		Dtstart:  dtstart,
	}
	switch rule.Frequency {
	case model.FreqDaily:
		opt.Freq = rrule.DAILY
	case model.FreqWeekly:
		opt.Freq = rrule.WEEKLY
	case model.FreqMonthly:
		opt.Freq = rrule.MONTHLY
	case model.FreqYearly:
		opt.Freq = rrule.YEARLY
	default:
		return nil, fmt.Errorf("unsupported frequency %q", rule.Frequency)
	}
	for _, wd := range rule.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, rruleWeekday(wd))
	}
	return rrule.NewRRule(opt)
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

func occursAt(rr *rrule.RRule, t time.Time) bool {
	for _, occ := range rr.Between(t.Add(-time.Second), t.Add(time.Second), true) {
		if occ.Equal(t) {
			return true
		}
	}
	return false
}

func weekdaysString(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	sorted := append([]time.Weekday(nil), days...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	out := ""
	for i, d := range sorted {
		if i > 0 {
			out += ","
		}
		out += d.String()[:3]
	}
	return out
}

func stampOrNone(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.UTC().Format(time.RFC3339)
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }
