package heuristic

import (
	"strings"
	"time"
)

type deadlinePhrase struct {
	text    string
	resolve func(time.Time) time.Time
}

// Phrase list order is fixed: the first hit wins, so identical content
// always resolves to the same deadline.
var deadlinePhrases = []deadlinePhrase{
	{"by end of day", endOfDay},
	{"eod", endOfDay},
	{"today", endOfDay},
	{"asap", plusDays(1)},
	{"tomorrow", plusDays(1)},
	{"end of week", byWeekday(time.Friday)},
	{"next week", plusDays(7)},
	{"by monday", byWeekday(time.Monday)},
	{"by tuesday", byWeekday(time.Tuesday)},
	{"by wednesday", byWeekday(time.Wednesday)},
	{"by thursday", byWeekday(time.Thursday)},
	{"by friday", byWeekday(time.Friday)},
	{"by saturday", byWeekday(time.Saturday)},
	{"by sunday", byWeekday(time.Sunday)},
	{"on monday", byWeekday(time.Monday)},
	{"on friday", byWeekday(time.Friday)},
}

// DetectDeadline scans lowercased content for relative date phrases and
// resolves the first hit to an absolute due date anchored on receivedAt.
func DetectDeadline(content string, receivedAt time.Time) (time.Time, string, bool) {
	anchor := receivedAt.UTC()
	for _, p := range deadlinePhrases {
		if strings.Contains(content, p.text) {
			return p.resolve(anchor), p.text, true
		}
	}
	return time.Time{}, "", false
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, time.UTC)
}

func plusDays(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time {
		return endOfDay(t.AddDate(0, 0, n))
	}
}

// byWeekday resolves to the next occurrence strictly after the anchor day.
func byWeekday(wd time.Weekday) func(time.Time) time.Time {
	return func(t time.Time) time.Time {
		days := int(wd-t.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		return endOfDay(t.AddDate(0, 0, days))
	}
}
