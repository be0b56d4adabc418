package provider

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"calsync/internal/model"
)

var weekdayTokens = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

var freqTokens = map[model.Frequency]string{
	model.FreqDaily:   "DAILY",
	model.FreqWeekly:  "WEEKLY",
	model.FreqMonthly: "MONTHLY",
	model.FreqYearly:  "YEARLY",
}

// EncodeRecurrence renders a pattern as an RFC 5545 RRULE value, without
// the property name prefix. Weekdays are emitted in week order so the
// output is stable for comparison.
func EncodeRecurrence(r *model.RecurrenceRule) (string, error) {
	freq, ok := freqTokens[r.Frequency]
	if !ok {
		return "", fmt.Errorf("unsupported recurrence frequency %q", r.Frequency)
	}
	parts := []string{"FREQ=" + freq}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByWeekday) > 0 {
		days := append([]time.Weekday(nil), r.ByWeekday...)
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		tokens := make([]string, 0, len(days))
		for _, d := range days {
			tokens = append(tokens, weekdayTokens[d])
		}
		parts = append(parts, "BYDAY="+strings.Join(tokens, ","))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if !r.Until.IsZero() {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ";"), nil
}

// DecodeRecurrence parses an RRULE value into the neutral pattern.
// Rule parts beyond the supported set (BYMONTHDAY, BYSETPOS, ...) are
// dropped; the differ surfaces any resulting drift as a pattern change.
func DecodeRecurrence(value string) (*model.RecurrenceRule, error) {
	value = strings.TrimPrefix(value, "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", value, err)
	}

	rule := &model.RecurrenceRule{
		Interval: opt.Interval,
		Count:    opt.Count,
		Until:    opt.Until,
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = model.FreqDaily
	case rrule.WEEKLY:
		rule.Frequency = model.FreqWeekly
	case rrule.MONTHLY:
		rule.Frequency = model.FreqMonthly
	case rrule.YEARLY:
		rule.Frequency = model.FreqYearly
	default:
		return nil, fmt.Errorf("unsupported rrule frequency in %q", value)
	}
	for _, wd := range opt.Byweekday {
		// rrule weekdays are zero-based on Monday.
		rule.ByWeekday = append(rule.ByWeekday, time.Weekday((wd.Day()+1)%7))
	}
	return rule, nil
}
