package check

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// EventVolumeName identifies the event-volume check in configuration.
const EventVolumeName = "event-volume"

// eventVolumeWindow is how far back events are counted.
const eventVolumeWindow = 1 * time.Hour

// HourThresholds maps an hour of day (0-23) to the minimum number of
// events expected in a one-hour window starting at that hour. The
// threshold in effect is the one under the largest hour key at or before
// the current hour.
type HourThresholds map[int]int

// DayThresholds maps a day of week (0 = Sunday .. 6 = Saturday) to its
// hour table. The table in effect is the one under the largest day key
// at or before the current weekday, so a Monday entry covers the whole
// working week until a later day overrides it.
type DayThresholds map[int]HourThresholds

// EventThresholds maps an event kind to its day tables.
type EventThresholds map[string]DayThresholds

// Lookup resolves the minimum expected volume for kind at the given
// weekday and hour. ok is false when no threshold is configured for that
// slot, in which case the kind is skipped for this run.
func (t EventThresholds) Lookup(kind string, day time.Weekday, hour int) (threshold int, ok bool) {
	days := t[kind]
	if days == nil {
		return 0, false
	}

	bestDay := -1
	for d := range days {
		if d <= int(day) && d > bestDay {
			bestDay = d
		}
	}
	if bestDay < 0 {
		return 0, false
	}

	bestHour := -1
	for h := range days[bestDay] {
		if h <= hour && h > bestHour {
			bestHour = h
		}
	}
	if bestHour < 0 {
		return 0, false
	}
	return days[bestDay][bestHour], true
}

// Kinds returns the configured event kinds in a stable order.
func (t EventThresholds) Kinds() []string {
	kinds := make([]string, 0, len(t))
	for k := range t {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DefaultEventThresholds returns the platform's baseline expectations:
// every tracked event kind follows the same working-day curve, with
// weekends expecting nothing.
func DefaultEventThresholds() EventThresholds {
	workday := HourThresholds{0: 5, 7: 10, 9: 20, 18: 10, 21: 5, 23: 0}
	weekend := HourThresholds{0: 0}
	days := DayThresholds{
		0: weekend, // Sunday
		1: workday, // Monday through Friday
		6: weekend, // Saturday
	}

	kinds := []string{
		"START_VIDEO_CALL",
		"STOP_VIDEO_CALL",
		"REGISTRATION",
		"BOOKING_CANCELLED",
		"BOOKING_CREATED",
		"BOOKING_RESCHEDULED",
		"CREATE_MESSAGE",
		"ARCHIVE_SESSION",
		"ASSIGN_SESSION",
	}
	t := make(EventThresholds, len(kinds))
	for _, k := range kinds {
		t[k] = days
	}
	return t
}

// EventVolume is the payload of an EventVolumeCheck result.
type EventVolume struct {
	Kind      string
	Hours     int
	Threshold int
	Count     int
}

// EventVolumeCheck counts statistics events per kind over the last hour
// and flags kinds falling below the configured minimum. A silent event
// stream is how broken integrations have historically surfaced.
type EventVolumeCheck struct {
	deps    *Deps
	results ResultList
}

// NewEventVolume constructs the check.
func NewEventVolume(deps *Deps) *EventVolumeCheck {
	return &EventVolumeCheck{deps: deps}
}

// Name implements Check.
func (c *EventVolumeCheck) Name() string { return EventVolumeName }

// Run implements Check.
func (c *EventVolumeCheck) Run(ctx context.Context, opts Options) (bool, error) {
	deps := c.deps
	thresholds := deps.EventThresholds
	if thresholds == nil {
		thresholds = DefaultEventThresholds()
	}

	now := deps.now()
	from := now.Add(-eventVolumeWindow)

	for _, kind := range thresholds.Kinds() {
		threshold, ok := thresholds.Lookup(kind, now.Weekday(), now.Hour())
		if !ok {
			deps.Log.Debug("No threshold configured for %s at %s %02d:00, skipping", kind, now.Weekday(), now.Hour())
			continue
		}

		count, err := deps.Docs.CountEvents(ctx, kind, from, now)
		if err != nil {
			return false, err
		}
		if count >= threshold {
			continue
		}

		msg := fmt.Sprintf("Fewer than %d %s events in the last hour (found: %d)", threshold, kind, count)
		deps.Log.Debug("%s", msg)
		c.results.Append(Result{
			Kind:    KindLowEventVolume,
			Message: msg,
			Payload: EventVolume{Kind: kind, Hours: 1, Threshold: threshold, Count: count},
		})
	}

	return c.results.Len() == 0, nil
}

// Summary implements Check.
func (c *EventVolumeCheck) Summary() string {
	parts := ""
	for i, r := range c.results.Snapshot() {
		v, ok := r.Payload.(EventVolume)
		if !ok {
			continue
		}
		if i > 0 {
			parts += ", "
		}
		parts += fmt.Sprintf("%s: %d/%d", v.Kind, v.Count, v.Threshold)
	}
	return fmt.Sprintf("Event volume below expectation: %s", parts)
}

// Header implements Check.
func (c *EventVolumeCheck) Header() []string {
	return []string{"Error", "Error Type", "Event", "Hours", "Min", "Current"}
}

// Row implements Check.
func (c *EventVolumeCheck) Row(r Result) []string {
	v, ok := r.Payload.(EventVolume)
	if !ok {
		return []string{r.Message, string(r.Kind), "", "", "", ""}
	}
	return []string{
		r.Message,
		string(r.Kind),
		v.Kind,
		fmt.Sprint(v.Hours),
		fmt.Sprint(v.Threshold),
		fmt.Sprint(v.Count),
	}
}

// Results implements Check.
func (c *EventVolumeCheck) Results() []Result { return c.results.Snapshot() }
