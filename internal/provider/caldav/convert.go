package caldav

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"calsync/internal/engine"
	"calsync/internal/model"
	"calsync/internal/provider"
	"calsync/pkg/tz"
)

// Non-standard parameter and property names used by this adapter.
const (
	paramTZID     = "TZID"
	paramCN       = "CN"
	paramRole     = "ROLE"
	paramPartStat = "PARTSTAT"

	roleOptional = "OPT-PARTICIPANT"
	roleRequired = "REQ-PARTICIPANT"

	statusCancelled = "CANCELLED"
	mailtoPrefix    = "mailto:"
)

// metaProps maps engine metadata keys to the X- properties they are
// stored under. One resource per series, one property per key.
var metaProps = map[string]string{
	engine.MetaRightEventID:    "X-CALSYNC-RIGHT-EVENT-ID",
	engine.MetaRightCollection: "X-CALSYNC-RIGHT-CALENDAR-ID",
	engine.MetaEngineModified:  "X-CALSYNC-ENGINE-MODIFIED",
	engine.MetaForceResync:     "X-CALSYNC-FORCE-RESYNC",
	engine.MetaLeftEventID:     "X-CALSYNC-LEFT-EVENT-ID",
}

// decodeObject converts one calendar object into a neutral event. A
// recurring series is stored as a single resource: the master VEVENT
// plus one VEVENT per modified occurrence, keyed by RECURRENCE-ID, plus
// EXDATE entries for cancelled occurrences.
func decodeObject(cal *ical.Calendar, collectionID string) (*model.Event, error) {
	var master *ical.Event
	var overrides []ical.Event
	events := cal.Events()
	for i := range events {
		if events[i].Props.Get(ical.PropRecurrenceID) != nil {
			overrides = append(overrides, events[i])
			continue
		}
		if master != nil {
			return nil, fmt.Errorf("object holds more than one master VEVENT")
		}
		master = &events[i]
	}
	if master == nil {
		return nil, fmt.Errorf("object holds no master VEVENT")
	}

	ev, err := decodeEvent(master, collectionID)
	if err != nil {
		return nil, err
	}

	for _, prop := range master.Props.Values(ical.PropExceptionDates) {
		tzid := prop.Params.Get(paramTZID)
		isDate := prop.ValueType() == ical.ValueDate
		for _, token := range strings.Split(prop.Value, ",") {
			orig, err := parseStampToken(strings.TrimSpace(token), tzid, isDate)
			if err != nil {
				return nil, fmt.Errorf("parse EXDATE %q: %w", token, err)
			}
			ev.Exceptions = append(ev.Exceptions, model.Exception{OriginalStart: orig, Cancelled: true})
		}
	}

	for i := range overrides {
		orig, err := overrides[i].Props.Get(ical.PropRecurrenceID).DateTime(time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse RECURRENCE-ID: %w", err)
		}
		if status, _ := overrides[i].Props.Text(ical.PropStatus); status == statusCancelled {
			ev.Exceptions = append(ev.Exceptions, model.Exception{OriginalStart: orig, Cancelled: true})
			continue
		}
		override, err := decodeEvent(&overrides[i], collectionID)
		if err != nil {
			return nil, fmt.Errorf("decode override at %s: %w", orig, err)
		}
		ev.Exceptions = append(ev.Exceptions, model.Exception{OriginalStart: orig, Override: override})
	}
	return ev, nil
}

func decodeEvent(e *ical.Event, collectionID string) (*model.Event, error) {
	uid, err := e.Props.Text(ical.PropUID)
	if err != nil || uid == "" {
		return nil, fmt.Errorf("VEVENT without UID")
	}

	dtstart := e.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return nil, fmt.Errorf("VEVENT %s without DTSTART", uid)
	}
	start, err := dtstart.DateTime(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse DTSTART of %s: %w", uid, err)
	}

	ev := &model.Event{
		ID:           uid,
		CollectionID: collectionID,
		Start:        start,
		AllDay:       dtstart.ValueType() == ical.ValueDate,
		Timezone:     dtstart.Params.Get(paramTZID),
	}

	if dtend := e.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		if ev.End, err = dtend.DateTime(time.UTC); err != nil {
			return nil, fmt.Errorf("parse DTEND of %s: %w", uid, err)
		}
	} else if ev.AllDay {
		ev.End = ev.Start.AddDate(0, 0, 1)
	} else {
		ev.End = ev.Start
	}

	ev.Subject, _ = e.Props.Text(ical.PropSummary)
	ev.Description, _ = e.Props.Text(ical.PropDescription)
	ev.Location, _ = e.Props.Text(ical.PropLocation)

	class, _ := e.Props.Text(ical.PropClass)
	if class == "PRIVATE" || class == "CONFIDENTIAL" {
		ev.Visibility = model.VisibilityPrivate
	} else {
		ev.Visibility = model.VisibilityPublic
	}
	if transp, _ := e.Props.Text(ical.PropTransparency); transp == "TRANSPARENT" {
		ev.Transparency = model.TransparencyFree
	} else {
		ev.Transparency = model.TransparencyBusy
	}

	for _, name := range []string{ical.PropLastModified, ical.PropDateTimeStamp} {
		if prop := e.Props.Get(name); prop != nil {
			if ev.Updated, err = prop.DateTime(time.UTC); err == nil {
				break
			}
		}
	}

	if org, _ := e.Props.Text(ical.PropOrganizer); org != "" {
		ev.Organizer = stripMailto(org)
	}
	for _, prop := range e.Props.Values(ical.PropAttendee) {
		ev.Attendees = append(ev.Attendees, model.Attendee{
			Email:          stripMailto(prop.Value),
			DisplayName:    prop.Params.Get(paramCN),
			Optional:       prop.Params.Get(paramRole) == roleOptional,
			ResponseStatus: strings.ToLower(prop.Params.Get(paramPartStat)),
		})
	}

	for _, child := range e.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		minutes, ok := parseTrigger(child.Props.Get(ical.PropTrigger))
		if !ok {
			continue
		}
		method := model.ReminderPopup
		if action, _ := child.Props.Text(ical.PropAction); action == "EMAIL" {
			method = model.ReminderEmail
		}
		ev.Reminders = append(ev.Reminders, model.Reminder{Method: method, MinutesBefore: minutes})
	}

	if prop := e.Props.Get(ical.PropRecurrenceRule); prop != nil {
		if ev.Recurrence, err = provider.DecodeRecurrence(prop.Value); err != nil {
			return nil, fmt.Errorf("decode RRULE of %s: %w", uid, err)
		}
	}

	for key, propName := range metaProps {
		if prop := e.Props.Get(propName); prop != nil && prop.Value != "" {
			if ev.Meta == nil {
				ev.Meta = make(map[string]string)
			}
			ev.Meta[key] = prop.Value
		}
	}
	return ev, nil
}

// encodeObject renders an event, its metadata, and its exceptions as a
// single VCALENDAR resource.
func encodeObject(ev *model.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calsync//calsync//EN")

	master := encodeEvent(ev)
	for _, ex := range ev.Exceptions {
		if !ex.Cancelled {
			continue
		}
		prop := ical.NewProp(ical.PropExceptionDates)
		prop.Value = ex.OriginalStart.UTC().Format("20060102T150405Z")
		master.Props.Add(prop)
	}
	cal.Children = append(cal.Children, master.Component)

	for _, ex := range ev.Exceptions {
		if ex.Override == nil {
			continue
		}
		oe := encodeEvent(ex.Override)
		// Overrides share the master's UID and carry the occurrence key.
		oe.Props.SetText(ical.PropUID, ev.ID)
		rid := ical.NewProp(ical.PropRecurrenceID)
		rid.Value = ex.OriginalStart.UTC().Format("20060102T150405Z")
		oe.Props.Set(rid)
		cal.Children = append(cal.Children, oe.Component)
	}
	return cal
}

func encodeEvent(ev *model.Event) *ical.Event {
	e := ical.NewEvent()
	e.Props.SetText(ical.PropUID, ev.ID)
	e.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	if ev.AllDay {
		setDateProp(e.Props, ical.PropDateTimeStart, ev.Start)
		setDateProp(e.Props, ical.PropDateTimeEnd, ev.End)
	} else {
		loc := tz.LoadOrUTC(ev.Timezone)
		e.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.In(loc))
		e.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.In(loc))
	}

	e.Props.SetText(ical.PropSummary, ev.Subject)
	if ev.Description != "" {
		e.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		e.Props.SetText(ical.PropLocation, ev.Location)
	}

	if ev.Visibility == model.VisibilityPrivate {
		e.Props.SetText(ical.PropClass, "PRIVATE")
	} else {
		e.Props.SetText(ical.PropClass, "PUBLIC")
	}
	if ev.Transparency == model.TransparencyFree {
		e.Props.SetText(ical.PropTransparency, "TRANSPARENT")
	} else {
		e.Props.SetText(ical.PropTransparency, "OPAQUE")
	}

	if !ev.Updated.IsZero() {
		e.Props.SetDateTime(ical.PropLastModified, ev.Updated.UTC())
	}

	if ev.Organizer != "" {
		e.Props.SetText(ical.PropOrganizer, mailtoPrefix+ev.Organizer)
	}
	for _, att := range ev.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = mailtoPrefix + att.Email
		if att.DisplayName != "" {
			prop.Params.Set(paramCN, att.DisplayName)
		}
		if att.Optional {
			prop.Params.Set(paramRole, roleOptional)
		} else {
			prop.Params.Set(paramRole, roleRequired)
		}
		e.Props.Add(prop)
	}

	for _, rem := range ev.Reminders {
		alarm := &ical.Component{Name: ical.CompAlarm, Props: make(ical.Props)}
		action := "DISPLAY"
		if rem.Method == model.ReminderEmail {
			action = "EMAIL"
		}
		alarm.Props.SetText(ical.PropAction, action)
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.Value = fmt.Sprintf("-PT%dM", rem.MinutesBefore)
		alarm.Props.Set(trigger)
		e.Children = append(e.Children, alarm)
	}

	if ev.Recurrence != nil {
		if value, err := provider.EncodeRecurrence(ev.Recurrence); err == nil {
			e.Props.SetText(ical.PropRecurrenceRule, value)
		}
	}

	for key, propName := range metaProps {
		if v := ev.Meta[key]; v != "" {
			e.Props.SetText(propName, v)
		}
	}
	return e
}

func setDateProp(props ical.Props, name string, t time.Time) {
	prop := ical.NewProp(name)
	prop.SetValueType(ical.ValueDate)
	prop.Value = t.Format("20060102")
	props.Set(prop)
}

// parseStampToken parses a single EXDATE token in any of its three
// forms: date, UTC date-time, or local date-time qualified by TZID.
func parseStampToken(token, tzid string, isDate bool) (time.Time, error) {
	switch {
	case isDate:
		return time.Parse("20060102", token)
	case strings.HasSuffix(token, "Z"):
		return time.Parse("20060102T150405Z", token)
	default:
		return time.ParseInLocation("20060102T150405", token, tz.LoadOrUTC(tzid))
	}
}

func parseTrigger(prop *ical.Prop) (int, bool) {
	if prop == nil {
		return 0, false
	}
	v := strings.TrimPrefix(strings.TrimSpace(prop.Value), "-")
	if !strings.HasPrefix(v, "PT") {
		// Absolute triggers and day-scoped durations are not mapped.
		return 0, false
	}
	v = v[len("PT"):]
	minutes := 0
	for v != "" {
		i := 0
		for i < len(v) && v[i] >= '0' && v[i] <= '9' {
			i++
		}
		if i == 0 || i == len(v) {
			return 0, false
		}
		n, err := strconv.Atoi(v[:i])
		if err != nil {
			return 0, false
		}
		switch v[i] {
		case 'H':
			minutes += n * 60
		case 'M':
			minutes += n
		case 'S':
			// Sub-minute precision is dropped.
		default:
			return 0, false
		}
		v = v[i+1:]
	}
	return minutes, true
}

func stripMailto(v string) string {
	if len(v) >= len(mailtoPrefix) && strings.EqualFold(v[:len(mailtoPrefix)], mailtoPrefix) {
		return v[len(mailtoPrefix):]
	}
	return v
}
