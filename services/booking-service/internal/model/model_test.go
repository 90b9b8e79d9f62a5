package model

import (
	"testing"
	"time"
)

func TestWeekdayOf(t *testing.T) {
	cases := map[time.Weekday]Weekday{
		time.Monday:   Monday,
		time.Friday:   Friday,
		time.Saturday: Saturday,
		time.Sunday:   Sunday,
	}
	for in, want := range cases {
		if got := WeekdayOf(in); got != want {
			t.Fatalf("WeekdayOf(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestStatusActive(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusConfirmed, StatusInProgress} {
		if !s.Active() {
			t.Fatalf("expected %s to be active", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled, Status("booked")} {
		if s.Active() {
			t.Fatalf("expected %s to be inert", s)
		}
	}
	if Status("booked").Valid() {
		t.Fatal("unknown status must not be valid")
	}
}

func TestServiceStaffRestriction(t *testing.T) {
	svc := Service{RequiresSpecificStaff: true, AllowedStaffIDs: []string{"a"}}
	if !svc.AllowsStaff("a") || svc.AllowsStaff("b") {
		t.Fatal("unexpected staff restriction result")
	}
	if !(Service{}).AllowsStaff("b") {
		t.Fatal("unrestricted service must allow any staff")
	}
	if (Service{}).AdvanceDays() != DefaultMaxAdvanceDays {
		t.Fatal("expected default advance window")
	}
}
