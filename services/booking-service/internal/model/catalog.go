package model

import "time"

// Weekday numbers days Monday=0 through Sunday=6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func WeekdayOf(d time.Weekday) Weekday {
	return Weekday((int(d) + 6) % 7)
}

func (d Weekday) String() string {
	return [...]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}[d%7]
}

// WorkingHours is a single daily window in staff-local decimal hours, shared
// by every enabled weekday.
type WorkingHours struct {
	Days      map[Weekday]bool
	StartHour float64
	EndHour   float64
}

// DefaultWorkingHours is Monday to Friday, 09:00 to 17:00.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		Days: map[Weekday]bool{
			Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true,
		},
		StartHour: 9,
		EndHour:   17,
	}
}

func (h WorkingHours) Works(d Weekday) bool {
	return h.Days[d]
}

func (h WorkingHours) AnyDay() bool {
	for _, on := range h.Days {
		if on {
			return true
		}
	}
	return false
}

type Staff struct {
	ID         string
	Name       string
	Email      string
	Phone      string
	BranchID   string
	BranchName string
	Bookable   bool
	Hours      WorkingHours
}

const DefaultMaxAdvanceDays = 30

// Service durations and buffers are decimal hours.
type Service struct {
	ID                    string
	Name                  string
	Duration              float64
	Preparation           float64
	Cleanup               float64
	Price                 float64
	Bookable              bool
	RequiresApproval      bool
	MaxAdvanceDays        int
	RequiresSpecificStaff bool
	AllowedStaffIDs       []string
}

// AllowsStaff applies the specific-staff restriction.
func (s Service) AllowsStaff(staffID string) bool {
	if !s.RequiresSpecificStaff {
		return true
	}
	for _, id := range s.AllowedStaffIDs {
		if id == staffID {
			return true
		}
	}
	return false
}

func (s Service) AdvanceDays() int {
	if s.MaxAdvanceDays <= 0 {
		return DefaultMaxAdvanceDays
	}
	return s.MaxAdvanceDays
}
