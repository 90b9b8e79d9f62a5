package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

func at(h, m int) time.Time {
	return time.Date(2026, 1, 26, h, m, 0, 0, time.UTC)
}

func TestOverlaps_Symmetric(t *testing.T) {
	pairs := [][4]time.Time{
		{at(9, 0), at(10, 0), at(9, 30), at(10, 30)},
		{at(9, 0), at(10, 0), at(10, 0), at(11, 0)},
		{at(9, 0), at(12, 0), at(10, 0), at(11, 0)},
		{at(9, 0), at(9, 30), at(11, 0), at(12, 0)},
	}
	for _, p := range pairs {
		if Overlaps(p[0], p[1], p[2], p[3]) != Overlaps(p[2], p[3], p[0], p[1]) {
			t.Fatalf("overlap not symmetric for %v", p)
		}
	}
}

func TestOverlaps_HalfOpenBoundary(t *testing.T) {
	if Overlaps(at(9, 0), at(10, 0), at(10, 0), at(11, 0)) {
		t.Fatal("touching intervals must not overlap")
	}
	if !Overlaps(at(9, 0), at(10, 1), at(10, 0), at(11, 0)) {
		t.Fatal("expected overlap by one minute")
	}
	a := Interval{Start: at(9, 0), End: at(10, 0)}
	if !a.Overlaps(Interval{Start: at(9, 59), End: at(11, 0)}) {
		t.Fatal("expected interval method to agree with predicate")
	}
}

func TestHasConflict_BufferTouchingBoundary(t *testing.T) {
	existing := []model.Appointment{{StaffID: "s1", StartTime: at(10, 0), EndTime: at(11, 0), Status: model.StatusConfirmed}}

	if HasConflict("s1", at(9, 0), at(10, 0), 0, 0, existing) {
		t.Fatal("zero buffers: touching slot must be free")
	}
	if !HasConflict("s1", at(9, 0), at(10, 0), 0, time.Minute, existing) {
		t.Fatal("positive cleanup buffer must turn touching into conflict")
	}
	if !HasConflict("s1", at(11, 0), at(12, 0), time.Minute, 0, existing) {
		t.Fatal("positive preparation buffer must turn touching into conflict")
	}
}

func TestHasConflict_BufferMonotonic(t *testing.T) {
	existing := []model.Appointment{{StaffID: "s1", StartTime: at(12, 0), EndTime: at(13, 0), Status: model.StatusDraft}}
	conflicted := false
	for buf := time.Duration(0); buf <= 3*time.Hour; buf += 15 * time.Minute {
		got := HasConflict("s1", at(9, 0), at(10, 0), 0, buf, existing)
		if conflicted && !got {
			t.Fatalf("conflict disappeared when buffer grew to %s", buf)
		}
		conflicted = got
	}
	if !conflicted {
		t.Fatal("expected a large enough buffer to conflict")
	}
}

func TestHasConflict_IgnoresInertAndOtherStaff(t *testing.T) {
	bookings := []model.Appointment{
		{StaffID: "s1", StartTime: at(10, 0), EndTime: at(11, 0), Status: model.StatusCancelled},
		{StaffID: "s1", StartTime: at(10, 0), EndTime: at(11, 0), Status: model.StatusCompleted},
		{StaffID: "s2", StartTime: at(10, 0), EndTime: at(11, 0), Status: model.StatusConfirmed},
	}
	if HasConflict("s1", at(10, 0), at(11, 0), 0, 0, bookings) {
		t.Fatal("cancelled, completed and other-staff bookings must not conflict")
	}
	bookings = append(bookings, model.Appointment{StaffID: "s1", StartTime: at(10, 30), EndTime: at(11, 0), Status: model.StatusInProgress})
	if !HasConflict("s1", at(10, 0), at(11, 0), 0, 0, bookings) {
		t.Fatal("in-progress booking must conflict")
	}
}
