package availability

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

const DefaultTimezone = "Africa/Nairobi"

// LoadLocation resolves name as an IANA zone. An empty or unknown name
// resolves to fallback instead, and usedFallback is set so the caller can log it.
func LoadLocation(name, fallback string) (loc *time.Location, usedFallback bool, err error) {
	name = strings.TrimSpace(name)
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, false, nil
		}
	}
	if fallback == "" {
		fallback = DefaultTimezone
	}
	loc, err = time.LoadLocation(fallback)
	if err != nil {
		return nil, true, fmt.Errorf("load fallback timezone %q: %w", fallback, err)
	}
	return loc, true, nil
}

// Date is a civil calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the unset date.
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Before(o Date) bool {
	return d.midnightUTC().Before(o.midnightUTC())
}

func (d Date) After(o Date) bool {
	return o.Before(d)
}

func (d Date) Weekday() model.Weekday {
	return model.WeekdayOf(d.midnightUTC().Weekday())
}

// At returns the instant of the given wall-clock minute of the day in loc.
// Nonexistent wall times (DST gaps) are shifted by time.Date; callers that
// need the exact wall clock compare Hour/Minute of the result.
func (d Date) At(minuteOfDay int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, minuteOfDay, 0, 0, loc)
}

// DaysBetween is the number of calendar days from d to o.
func (d Date) DaysBetween(o Date) int {
	return int(o.midnightUTC().Sub(d.midnightUTC()).Hours() / 24)
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// HoursToMinutes converts decimal hours (1.5 = 90 minutes) to whole minutes.
func HoursToMinutes(h float64) int {
	return int(math.Round(h * 60))
}

func HoursToDuration(h float64) time.Duration {
	return time.Duration(HoursToMinutes(h)) * time.Minute
}

func nanosOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
