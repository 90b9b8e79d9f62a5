package availability

import (
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

// CandidateSlot is a generated, never-persisted slot. It carries both the
// business-local start and the UTC instant so callers never re-derive one.
type CandidateSlot struct {
	LocalStart time.Time
	UTCStart   time.Time
	End        time.Time
	Available  bool
}

func (s CandidateSlot) LocalTime() string {
	return s.LocalStart.Format("15:04")
}

func (s CandidateSlot) StartRFC3339() string {
	return s.UTCStart.Format(time.RFC3339)
}

func (s CandidateSlot) EndRFC3339() string {
	return s.End.Format(time.RFC3339)
}

// Query holds everything slot generation depends on. Bookings should cover
// the whole generated range; only active bookings of StaffID are considered.
type Query struct {
	StaffID  string
	Hours    model.WorkingHours
	Service  model.Service
	Location *time.Location
	Now      time.Time
	Bookings []model.Appointment
}

// GenerateSlotsForDate steps through the working window of date in increments
// of the service duration and returns the conflict-free slots. Disabled
// weekdays and dates before today (in the business location) yield nothing,
// and on today any slot starting at or before the current wall-clock time is skipped.
func GenerateSlotsForDate(date Date, q Query) []CandidateSlot {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	if !q.Hours.Works(date.Weekday()) {
		return nil
	}
	durMin := HoursToMinutes(q.Service.Duration)
	if durMin <= 0 {
		return nil
	}

	nowLocal := q.Now.In(loc)
	today := DateOf(nowLocal)
	if date.Before(today) {
		return nil
	}
	isToday := date == today

	startMin := HoursToMinutes(q.Hours.StartHour)
	endMin := HoursToMinutes(q.Hours.EndHour)
	dur := time.Duration(durMin) * time.Minute
	prep := HoursToDuration(q.Service.Preparation)
	cleanup := HoursToDuration(q.Service.Cleanup)

	var slots []CandidateSlot
	var last time.Time
	for cur := startMin; cur+durMin <= endMin; cur += durMin {
		local := date.At(cur, loc)
		// Wall times inside a DST gap do not exist; time.Date shifts them.
		if local.Hour()*60+local.Minute() != cur || DateOf(local) != date {
			continue
		}
		if isToday && nanosOfDay(local) <= nanosOfDay(nowLocal) {
			continue
		}
		start := local.UTC()
		if !last.IsZero() && !start.After(last) {
			continue
		}
		last = start
		end := start.Add(dur)
		if HasConflict(q.StaffID, start, end, prep, cleanup, q.Bookings) {
			continue
		}
		slots = append(slots, CandidateSlot{
			LocalStart: local,
			UTCStart:   start,
			End:        end,
			Available:  true,
		})
	}
	return slots
}

// GenerateSlotsForRange runs GenerateSlotsForDate for daysAhead consecutive
// dates starting at start. Dates without slots are omitted.
func GenerateSlotsForRange(start Date, daysAhead int, q Query) map[Date][]CandidateSlot {
	out := make(map[Date][]CandidateSlot)
	for i := 0; i < daysAhead; i++ {
		d := start.AddDays(i)
		if slots := GenerateSlotsForDate(d, q); len(slots) > 0 {
			out[d] = slots
		}
	}
	return out
}

// FindSlot returns the generated slot starting exactly at start, ignoring
// conflicts, so callers can tell an off-grid start from a taken one.
func FindSlot(start time.Time, q Query) (CandidateSlot, bool) {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	free := q
	free.Bookings = nil
	for _, s := range GenerateSlotsForDate(DateOf(start.In(loc)), free) {
		if s.UTCStart.Equal(start) {
			return s, true
		}
	}
	return CandidateSlot{}, false
}
