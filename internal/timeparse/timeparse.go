// Package timeparse resolves natural-language time expressions ("tomorrow
// at 3pm", "next friday", "in 2 hours") against a caller-supplied reference
// time, so relative dates are reproducible and testable.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	tomorrowRe   = regexp.MustCompile(`^tomorrow(?:\s+at\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?))?$`)
	todayRe      = regexp.MustCompile(`^today(?:\s+at\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?))?$`)
	nextWeekday  = regexp.MustCompile(`^next\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)
	thisWeekday  = regexp.MustCompile(`^(?:this\s+|by\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)
	relativeRe   = regexp.MustCompile(`^in\s+(\d+)\s+(minutes?|hours?|days?|weeks?)$`)
	clockRe      = regexp.MustCompile(`^(?:at\s+)?(\d{1,2}):(\d{2})\s*(am|pm)?$`)
	hourRe       = regexp.MustCompile(`^(?:at\s+)?(\d{1,2})\s*(am|pm)$`)
	timeOfDayRe  = regexp.MustCompile(`^(morning|afternoon|evening|night)$`)
	endPeriodRe  = regexp.MustCompile(`^(?:by\s+)?end of (?:the\s+)?(week|month|year)$`)
	nextPeriodRe = regexp.MustCompile(`^next\s+(week|month|year)$`)
)

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
}

var timeOfDayHours = map[string]int{
	"morning": 9, "afternoon": 14, "evening": 18, "night": 20,
}

// Resolve parses expr relative to ref. The second return value is false
// when the expression is not recognized; callers treat that as "no due
// date", never as an error.
func Resolve(expr string, ref time.Time) (time.Time, bool) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" || expr == "no specific time" {
		return time.Time{}, false
	}

	if m := tomorrowRe.FindStringSubmatch(expr); m != nil {
		day := ref.AddDate(0, 0, 1)
		if m[1] != "" {
			h, min := clockParts(m[1])
			return at(day, h, min), true
		}
		return at(day, 9, 0), true
	}
	if m := todayRe.FindStringSubmatch(expr); m != nil {
		if m[1] != "" {
			h, min := clockParts(m[1])
			result := at(ref, h, min)
			if !result.After(ref) {
				result = result.AddDate(0, 0, 1)
			}
			return result, true
		}
		return at(ref, ref.Hour()+1, 0), true
	}
	if m := nextWeekday.FindStringSubmatch(expr); m != nil {
		target := weekdays[m[1]]
		days := int(target - ref.Weekday())
		if days <= 0 {
			days += 7
		}
		return at(ref.AddDate(0, 0, days), 9, 0), true
	}
	if m := thisWeekday.FindStringSubmatch(expr); m != nil {
		target := weekdays[m[1]]
		days := int(target - ref.Weekday())
		if days < 0 {
			days += 7
		}
		return at(ref.AddDate(0, 0, days), 9, 0), true
	}
	if m := relativeRe.FindStringSubmatch(expr); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch {
		case strings.HasPrefix(m[2], "minute"):
			return ref.Add(time.Duration(n) * time.Minute), true
		case strings.HasPrefix(m[2], "hour"):
			return ref.Add(time.Duration(n) * time.Hour), true
		case strings.HasPrefix(m[2], "day"):
			return ref.AddDate(0, 0, n), true
		default:
			return ref.AddDate(0, 0, 7*n), true
		}
	}
	if m := clockRe.FindStringSubmatch(expr); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		h = to24h(h, m[3])
		result := at(ref, h, min)
		if !result.After(ref) {
			result = result.AddDate(0, 0, 1)
		}
		return result, true
	}
	if m := hourRe.FindStringSubmatch(expr); m != nil {
		h, _ := strconv.Atoi(m[1])
		h = to24h(h, m[2])
		result := at(ref, h, 0)
		if !result.After(ref) {
			result = result.AddDate(0, 0, 1)
		}
		return result, true
	}
	if m := timeOfDayRe.FindStringSubmatch(expr); m != nil {
		result := at(ref, timeOfDayHours[m[1]], 0)
		if !result.After(ref) {
			result = result.AddDate(0, 0, 1)
		}
		return result, true
	}
	if m := endPeriodRe.FindStringSubmatch(expr); m != nil {
		switch m[1] {
		case "week":
			days := int(time.Sunday - ref.Weekday())
			if days < 0 {
				days += 7
			}
			return at(ref.AddDate(0, 0, days), 23, 59), true
		case "month":
			firstOfNext := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location()).AddDate(0, 1, 0)
			return at(firstOfNext.AddDate(0, 0, -1), 23, 59), true
		default:
			return time.Date(ref.Year(), 12, 31, 23, 59, 0, 0, ref.Location()), true
		}
	}
	if m := nextPeriodRe.FindStringSubmatch(expr); m != nil {
		switch m[1] {
		case "week":
			return at(ref.AddDate(0, 0, 7), 9, 0), true
		case "month":
			return at(ref.AddDate(0, 1, 0), 9, 0), true
		default:
			return at(ref.AddDate(1, 0, 0), 9, 0), true
		}
	}
	return time.Time{}, false
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func clockParts(s string) (hour, minute int) {
	s = strings.TrimSpace(s)
	ampm := ""
	if strings.HasSuffix(s, "am") || strings.HasSuffix(s, "pm") {
		ampm = s[len(s)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}
	if h, m, ok := strings.Cut(s, ":"); ok {
		hour, _ = strconv.Atoi(h)
		minute, _ = strconv.Atoi(m)
	} else {
		hour, _ = strconv.Atoi(s)
	}
	return to24h(hour, ampm), minute
}

func to24h(hour int, ampm string) int {
	switch ampm {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}
