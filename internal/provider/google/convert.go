package google

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"calsync/internal/model"
	"calsync/internal/provider"
	"calsync/pkg/tz"
)

const dateLayout = "2006-01-02"

func fromGoogleEvent(item *calendar.Event, calendarID string) (*model.Event, error) {
	start, allDay, tzName, err := parseEventTime(item.Start)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	end, _, _, err := parseEventTime(item.End)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}

	ev := &model.Event{
		ID:           item.Id,
		CollectionID: calendarID,
		SeriesID:     item.RecurringEventId,
		Start:        start,
		End:          end,
		AllDay:       allDay,
		Timezone:     tzName,
		Subject:      item.Summary,
		Description:  item.Description,
		Location:     item.Location,
	}

	if item.Visibility == "private" || item.Visibility == "confidential" {
		ev.Visibility = model.VisibilityPrivate
	} else {
		ev.Visibility = model.VisibilityPublic
	}
	if item.Transparency == "transparent" {
		ev.Transparency = model.TransparencyFree
	} else {
		ev.Transparency = model.TransparencyBusy
	}

	if item.Updated != "" {
		if ev.Updated, err = time.Parse(time.RFC3339, item.Updated); err != nil {
			return nil, fmt.Errorf("parse updated stamp: %w", err)
		}
	}

	if item.Organizer != nil {
		ev.Organizer = item.Organizer.Email
	}
	for _, att := range item.Attendees {
		ev.Attendees = append(ev.Attendees, model.Attendee{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			Optional:       att.Optional,
			ResponseStatus: att.ResponseStatus,
		})
	}

	if item.Reminders != nil {
		for _, r := range item.Reminders.Overrides {
			method := model.ReminderMethod(r.Method)
			if method != model.ReminderPopup && method != model.ReminderEmail {
				continue
			}
			ev.Reminders = append(ev.Reminders, model.Reminder{
				Method:        method,
				MinutesBefore: int(r.Minutes),
			})
		}
	}

	for _, line := range item.Recurrence {
		if !strings.HasPrefix(line, "RRULE:") {
			// RDATE/EXDATE lines are carried by the instance list instead.
			continue
		}
		if ev.Recurrence, err = provider.DecodeRecurrence(line); err != nil {
			return nil, fmt.Errorf("decode recurrence: %w", err)
		}
	}

	if item.ExtendedProperties != nil && len(item.ExtendedProperties.Private) > 0 {
		ev.Meta = make(map[string]string, len(item.ExtendedProperties.Private))
		for k, v := range item.ExtendedProperties.Private {
			ev.Meta[k] = v
		}
	}
	return ev, nil
}

func toGoogleEvent(ev *model.Event) *calendar.Event {
	item := &calendar.Event{
		Summary:     ev.Subject,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       toEventDateTime(ev.Start, ev.AllDay, ev.Timezone),
		End:         toEventDateTime(ev.End, ev.AllDay, ev.Timezone),
	}

	if ev.Visibility == model.VisibilityPrivate {
		item.Visibility = "private"
	} else {
		item.Visibility = "public"
	}
	if ev.Transparency == model.TransparencyFree {
		item.Transparency = "transparent"
	} else {
		item.Transparency = "opaque"
	}

	for _, att := range ev.Attendees {
		item.Attendees = append(item.Attendees, &calendar.EventAttendee{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			Optional:       att.Optional,
			ResponseStatus: att.ResponseStatus,
		})
	}

	item.Reminders = &calendar.EventReminders{
		UseDefault:      false,
		ForceSendFields: []string{"UseDefault"},
	}
	for _, rem := range ev.Reminders {
		item.Reminders.Overrides = append(item.Reminders.Overrides, &calendar.EventReminder{
			Method:  string(rem.Method),
			Minutes: int64(rem.MinutesBefore),
		})
	}

	if ev.Recurrence != nil {
		if value, err := provider.EncodeRecurrence(ev.Recurrence); err == nil {
			item.Recurrence = []string{"RRULE:" + value}
		}
	}

	if len(ev.Meta) > 0 {
		private := make(map[string]string, len(ev.Meta))
		for k, v := range ev.Meta {
			private[k] = v
		}
		item.ExtendedProperties = &calendar.EventExtendedProperties{Private: private}
	}
	return item
}

// parseEventTime reads one boundary of an event. All-day boundaries
// come as bare dates; timed ones as RFC 3339 with an optional zone name.
func parseEventTime(edt *calendar.EventDateTime) (time.Time, bool, string, error) {
	if edt == nil {
		return time.Time{}, false, "", fmt.Errorf("missing event time")
	}
	if edt.Date != "" {
		t, err := time.Parse(dateLayout, edt.Date)
		return t, true, edt.TimeZone, err
	}
	t, err := time.Parse(time.RFC3339, edt.DateTime)
	return t, false, edt.TimeZone, err
}

func toEventDateTime(t time.Time, allDay bool, tzName string) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	return &calendar.EventDateTime{
		DateTime: t.In(tz.LoadOrUTC(tzName)).Format(time.RFC3339),
		TimeZone: tzName,
	}
}

func parseOriginalStart(item *calendar.Event) (time.Time, error) {
	if item.OriginalStartTime == nil {
		return time.Time{}, fmt.Errorf("occurrence without original start")
	}
	orig, _, _, err := parseEventTime(item.OriginalStartTime)
	return orig, err
}
