package application

// calendarEventsKey is the reserved shift metadata key holding CalendarLinks.
const calendarEventsKey = "calendarEvents"

// CalendarLinks are the back-references from a shift to its derived events.
type CalendarLinks struct {
	ScheduleEventID *string `json:"scheduleEventId"`
	PersonalEventID *string `json:"personalEventId"`
}

// linksFromMetadata reads the reserved sub-object. Missing or malformed
// entries read as no links.
func linksFromMetadata(metadata map[string]any) CalendarLinks {
	raw, ok := metadata[calendarEventsKey].(map[string]any)
	if !ok {
		return CalendarLinks{}
	}
	return CalendarLinks{
		ScheduleEventID: stringField(raw, "scheduleEventId"),
		PersonalEventID: stringField(raw, "personalEventId"),
	}
}

func stringField(m map[string]any, key string) *string {
	value, ok := m[key].(string)
	if !ok || value == "" {
		return nil
	}
	return &value
}
