package availability

import (
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps treats both intervals as half-open: [aStart,aStop) and [bStart,bStop)
// overlap iff aStart < bStop && bStart < aStop. Touching endpoints do not overlap.
func Overlaps(aStart, aStop, bStart, bStop time.Time) bool {
	return aStart.Before(bStop) && bStart.Before(aStop)
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

// HasConflict widens the candidate by the service buffers and reports whether
// any active booking of staffID overlaps the widened interval. Buffers of the
// existing bookings are not considered.
func HasConflict(staffID string, candidateStart, candidateStop time.Time, bufferBefore, bufferAfter time.Duration, bookings []model.Appointment) bool {
	effStart := candidateStart.Add(-bufferBefore)
	effStop := candidateStop.Add(bufferAfter)
	for _, b := range bookings {
		if b.StaffID != staffID || !b.Status.Active() {
			continue
		}
		if Overlaps(effStart, effStop, b.StartTime, b.EndTime) {
			return true
		}
	}
	return false
}
