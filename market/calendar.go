// Package market provides the NSE trading calendar: holidays, session
// hours, and the entry cutoff the risk engine enforces.
package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// IST is the Indian Standard Time location every session-hour comparison
// in this package is normalized to.
var IST *time.Location

func init() {
	var err error
	IST, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(fmt.Sprintf("market: failed to load IST timezone: %v", err))
	}
}

// SessionHours configures the NSE session open/close and the entry cutoff
// (the last time of day new entries are admitted; existing positions are
// still managed after cutoff).
type SessionHours struct {
	OpenHour        int
	OpenMinute      int
	CloseHour       int
	CloseMinute     int
	EntryCutoffHour int
	EntryCutoffMin  int
}

// DefaultSessionHours matches the NSE cash/F&O session: 09:15-15:30, with
// entries cut off at 15:00 to leave room for exits before close.
func DefaultSessionHours() SessionHours {
	return SessionHours{
		OpenHour: 9, OpenMinute: 15,
		CloseHour: 15, CloseMinute: 30,
		EntryCutoffHour: 15, EntryCutoffMin: 0,
	}
}

// HolidayEntry is one exchange holiday read from the holiday calendar file.
type HolidayEntry struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// Calendar answers trading-day and market-hours questions against a
// holiday set and configured session hours.
type Calendar struct {
	holidays map[string]string
	hours    SessionHours
}

// NewCalendar creates a Calendar from a JSON holiday file.
func NewCalendar(holidayFilePath string, hours SessionHours) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("market calendar: read holidays file: %w", err)
	}
	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("market calendar: parse holidays: %w", err)
	}
	holidays := make(map[string]string, len(entries))
	for _, e := range entries {
		holidays[e.Date] = e.Reason
	}
	return &Calendar{holidays: holidays, hours: hours}, nil
}

// NewCalendarFromHolidays builds a Calendar directly from a holiday map,
// used by tests and by the backtest harness.
func NewCalendarFromHolidays(holidays map[string]string, hours SessionHours) *Calendar {
	if holidays == nil {
		holidays = make(map[string]string)
	}
	return &Calendar{holidays: holidays, hours: hours}
}

// IsTradingDay reports whether date is a weekday and not an exchange
// holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(IST)
	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}
	_, isHoliday := c.holidays[d.Format("2006-01-02")]
	return !isHoliday
}

// HolidayReason returns the reason text for a holiday, or "" if not one.
func (c *Calendar) HolidayReason(date time.Time) string {
	return c.holidays[date.In(IST).Format("2006-01-02")]
}

// IsMarketOpen reports whether now falls inside the configured session on
// a trading day.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	t := now.In(IST)
	if !c.IsTradingDay(t) {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	open := c.hours.OpenHour*60 + c.hours.OpenMinute
	close := c.hours.CloseHour*60 + c.hours.CloseMinute
	return cur >= open && cur < close
}

// AllowsEntry reports whether new entries are admitted at now: a trading
// day, inside the session, and before the entry cutoff.
func (c *Calendar) AllowsEntry(now time.Time) bool {
	if !c.IsMarketOpen(now) {
		return false
	}
	t := now.In(IST)
	cur := t.Hour()*60 + t.Minute()
	cutoff := c.hours.EntryCutoffHour*60 + c.hours.EntryCutoffMin
	return cur < cutoff
}

// TimeUntilNextSession returns the duration until the next market open, or
// 0 if the market is currently open.
func (c *Calendar) TimeUntilNextSession(now time.Time) time.Duration {
	t := now.In(IST)
	if c.IsMarketOpen(t) {
		return 0
	}
	candidate := t
	for i := 0; i < 10; i++ {
		if i == 0 && c.IsTradingDay(candidate) {
			todayOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				c.hours.OpenHour, c.hours.OpenMinute, 0, 0, IST)
			if t.Before(todayOpen) {
				return todayOpen.Sub(t)
			}
		}
		candidate = candidate.AddDate(0, 0, 1)
		if c.IsTradingDay(candidate) {
			nextOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				c.hours.OpenHour, c.hours.OpenMinute, 0, 0, IST)
			return nextOpen.Sub(t)
		}
	}
	return 24 * time.Hour
}

// DayKey returns the session-timezone calendar-day key ("2006-01-02") used
// to partition GovernorState and telemetry rows.
func DayKey(t time.Time) string {
	return t.In(IST).Format("2006-01-02")
}

// Bucket derives the coarse session phase (OPEN/MID/CLOSE) from local time
// and the configured OPEN/CLOSE boundaries in minutes-after-midnight.
func Bucket(now time.Time, openEndMin, closeStartMin int) string {
	t := now.In(IST)
	cur := t.Hour()*60 + t.Minute()
	switch {
	case cur < openEndMin:
		return "OPEN"
	case cur >= closeStartMin:
		return "CLOSE"
	default:
		return "MID"
	}
}
