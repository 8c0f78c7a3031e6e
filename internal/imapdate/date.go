// Package imapdate implements RFC 5322 date parsing (a fast strict
// parser plus a lax regexp fallback), an extended zone-abbreviation
// table, and IMAP's INTERNALDATE formatting.
//
// net/mail.ParseDate exists but implements neither the lax fallback
// nor the extended zone-name table this package needs (it recognizes
// only a handful of military/US zones), so this is a ground-up
// reimplementation rather than a stdlib wrapper.
package imapdate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Zone is a parsed time zone: the offset's magnitude in whole hours
// and minutes, and whether it lies west of UTC (so "00:00 west" and
// "00:00 east" can both be represented distinctly, matching the
// source's {hours, minutes, west-of-UTC} record).
type Zone struct {
	Hours   int
	Minutes int
	West    bool
}

// OffsetSeconds returns the zone's offset from UTC in seconds, signed
// such that local = UTC + offset.
func (z Zone) OffsetSeconds() int {
	secs := z.Hours*3600 + z.Minutes*60
	if z.West {
		return -secs
	}
	return secs
}

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// zoneTable is the built-in table of abbreviated zone names. Values
// are {hours, minutes, west} as offsets from UTC; a name not present
// here defaults to +0000 when parsing.
var zoneTable = map[string]Zone{
	"UT": {0, 0, false}, "GMT": {0, 0, false}, "UTC": {0, 0, false},
	"EST": {5, 0, true}, "EDT": {4, 0, true},
	"CST": {6, 0, true}, "CDT": {5, 0, true},
	"MST": {7, 0, true}, "MDT": {6, 0, true},
	"PST": {8, 0, true}, "PDT": {7, 0, true},
	"CET": {1, 0, false}, "CEST": {2, 0, false},
	"EET": {2, 0, false}, "EEST": {3, 0, false},
	"WET": {0, 0, false}, "WEST": {1, 0, false},
	"BST": {1, 0, false},
	"JST": {9, 0, false},
	"KST": {9, 0, false},
	"IST": {2, 0, false}, // Israel Standard Time
	"MSK": {3, 0, false}, "MSD": {4, 0, false},
	"NZST": {12, 0, false}, "NZDT": {13, 0, false},
	"SST": {11, 0, true}, // Samoa Standard Time
	"AST": {4, 0, true}, "ADT": {3, 0, true},
	"HST": {10, 0, true}, "AKST": {9, 0, true}, "AKDT": {8, 0, true},
	"AEST": {10, 0, false}, "AEDT": {11, 0, false},
	"ACST": {9, 30, false}, "ACDT": {10, 30, false},
	"AWST": {8, 0, false},
}

// Time is a broken-down RFC 5322 date-time, normalized to whole
// fields (no carrying beyond what NormalizeTime performs).
type Time struct {
	Year           int
	Month          int // 1-12
	Day            int // 1-31
	Hour, Min, Sec int
	Zone           Zone
}

// ParseError reports that s could not be parsed as an RFC 5322 date.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("imapdate: cannot parse date %q", e.Input)
}

// Parse parses an RFC 5322 date-time, trying the fast strict parser
// first and falling back to a lenient regexp-based parser. It returns
// seconds since the Unix epoch and the parsed Zone.
func Parse(s string) (epoch int64, zone Zone, err error) {
	s = strings.TrimSpace(s)
	if t, zone, ok := parseStrict(s); ok {
		return toEpoch(t), zone, nil
	}
	if t, zone, ok := parseLax(s); ok {
		return toEpoch(t), zone, nil
	}
	return 0, Zone{}, &ParseError{Input: s}
}

// parseStrict accepts exactly:
//
//	[Wxx, ]dd Mon yyyy HH:MM[:SS] [±zzzz|ZONE] [(ZoneName)]
func parseStrict(s string) (Time, Zone, bool) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		// Optional leading "Wxx, " weekday; just discard it, since the
		// weekday doesn't feed the epoch computation.
		s = strings.TrimSpace(s[i+1:])
	}
	// Drop a trailing parenthesised zone name comment.
	if i := strings.IndexByte(s, '('); i >= 0 {
		if j := strings.LastIndexByte(s, ')'); j > i {
			s = strings.TrimSpace(s[:i])
		}
	}

	fields := strings.Fields(s)
	if len(fields) < 4 {
		return Time{}, Zone{}, false
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return Time{}, Zone{}, false
	}
	month, ok := months[strings.ToLower(fields[1])]
	if !ok {
		return Time{}, Zone{}, false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return Time{}, Zone{}, false
	}
	if year < 100 {
		if year < 70 {
			year += 2000
		} else {
			year += 1900
		}
	}
	hour, min, sec, ok := parseClock(fields[3])
	if !ok {
		return Time{}, Zone{}, false
	}
	zone := Zone{}
	if len(fields) >= 5 {
		if z, ok := parseZone(fields[4]); ok {
			zone = z
		} else {
			return Time{}, Zone{}, false
		}
	}
	t := Time{Year: year, Month: month, Day: day, Hour: hour, Min: min, Sec: sec, Zone: zone}
	return NormalizeTime(t), zone, true
}

func parseClock(s string) (hour, min, sec int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, false
	}
	var err error
	if hour, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false
	}
	if min, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, false
	}
	if len(parts) == 3 {
		if sec, err = strconv.Atoi(parts[2]); err != nil {
			return 0, 0, 0, false
		}
	}
	return hour, min, sec, true
}

func parseZone(s string) (Zone, bool) {
	if len(s) == 5 && (s[0] == '+' || s[0] == '-') {
		hh, err1 := strconv.Atoi(s[1:3])
		mm, err2 := strconv.Atoi(s[3:5])
		if err1 != nil || err2 != nil {
			return Zone{}, false
		}
		return Zone{Hours: hh, Minutes: mm, West: s[0] == '-'}, true
	}
	if z, ok := zoneTable[strings.ToUpper(s)]; ok {
		return z, true
	}
	return Zone{}, false
}

// laxDateRE is deliberately permissive: optional weekday, 2-4 digit
// year, seconds optional, zone optional.
var laxDateRE = regexp.MustCompile(
	`(?i)(?:\w{3,9},?\s+)?(\d{1,2})\s+(\w{3,9})\D*?(\d{2,4})\D+(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(\S*)`,
)

func parseLax(s string) (Time, Zone, bool) {
	m := laxDateRE.FindStringSubmatch(s)
	if m == nil {
		return Time{}, Zone{}, false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return Time{}, Zone{}, false
	}
	monthName := strings.ToLower(m[2])
	if len(monthName) > 3 {
		monthName = monthName[:3]
	}
	month, ok := months[monthName]
	if !ok {
		return Time{}, Zone{}, false
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return Time{}, Zone{}, false
	}
	if year < 100 {
		if year < 70 {
			year += 2000
		} else {
			year += 1900
		}
	}
	hour, _ := strconv.Atoi(m[4])
	min, _ := strconv.Atoi(m[5])
	sec := 0
	if m[6] != "" {
		sec, _ = strconv.Atoi(m[6])
	}
	zone := Zone{}
	if m[7] != "" {
		if z, ok := parseZone(m[7]); ok {
			zone = z
		}
	}
	t := Time{Year: year, Month: month, Day: day, Hour: hour, Min: min, Sec: sec, Zone: zone}
	return NormalizeTime(t), zone, true
}

var daysInMonth = [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysIn(year, month int) int {
	if month == 2 && isLeap(year) {
		return 29
	}
	return daysInMonth[month-1]
}

// NormalizeTime canonicalises a broken-down time, carrying overflow
// across seconds, minutes, hours, days, months and years, in that
// order.
func NormalizeTime(t Time) Time {
	carry := t.Sec / 60
	t.Sec %= 60
	if t.Sec < 0 {
		t.Sec += 60
		carry--
	}
	t.Min += carry

	carry = t.Min / 60
	t.Min %= 60
	if t.Min < 0 {
		t.Min += 60
		carry--
	}
	t.Hour += carry

	carry = t.Hour / 24
	t.Hour %= 24
	if t.Hour < 0 {
		t.Hour += 24
		carry--
	}
	t.Day += carry

	for t.Month < 1 {
		t.Month += 12
		t.Year--
	}
	for t.Month > 12 {
		t.Month -= 12
		t.Year++
	}
	for t.Day < 1 {
		t.Month--
		if t.Month < 1 {
			t.Month = 12
			t.Year--
		}
		t.Day += daysIn(t.Year, t.Month)
	}
	for t.Day > daysIn(t.Year, t.Month) {
		t.Day -= daysIn(t.Year, t.Month)
		t.Month++
		if t.Month > 12 {
			t.Month = 1
			t.Year++
		}
	}
	return t
}

// MakeTime is the inverse of Parse for a normalized broken-down time:
// it returns seconds since the Unix epoch, ignoring DST (the zone's
// fixed offset is applied directly). A hand-rolled Julian-style day
// accumulator, accurate for years 1970..2099.
func MakeTime(t Time) int64 {
	days := int64(0)
	if t.Year >= 1970 {
		for y := 1970; y < t.Year; y++ {
			days += 365
			if isLeap(y) {
				days++
			}
		}
	} else {
		for y := t.Year; y < 1970; y++ {
			days -= 365
			if isLeap(y) {
				days--
			}
		}
	}
	for m := 1; m < t.Month; m++ {
		days += int64(daysIn(t.Year, m))
	}
	days += int64(t.Day - 1)

	secs := days*86400 + int64(t.Hour)*3600 + int64(t.Min)*60 + int64(t.Sec)
	secs -= int64(t.Zone.OffsetSeconds())
	return secs
}

func toEpoch(t Time) int64 { return MakeTime(t) }

// FormatIMAP formats t (UTC seconds since epoch) and zone as IMAP's
// INTERNALDATE: "dd-Mon-yyyy HH:MM:SS ±zzzz".
func FormatIMAP(epoch int64, zone Zone) string {
	t := fromEpoch(epoch, zone)
	return fmt.Sprintf("%02d-%s-%04d %02d:%02d:%02d %s",
		t.Day, monthName(t.Month), t.Year, t.Hour, t.Min, t.Sec, formatZone(zone))
}

// ParseIMAPInternalDate parses IMAP's INTERNALDATE format, e.g.
// "15-Jan-2024 09:07:42 +0000".
func ParseIMAPInternalDate(s string) (epoch int64, zone Zone, err error) {
	s = strings.Trim(s, `"`)
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return 0, Zone{}, &ParseError{Input: s}
	}
	dmy := strings.Split(fields[0], "-")
	if len(dmy) != 3 {
		return 0, Zone{}, &ParseError{Input: s}
	}
	day, err1 := strconv.Atoi(dmy[0])
	month, ok := months[strings.ToLower(dmy[1])]
	year, err2 := strconv.Atoi(dmy[2])
	if err1 != nil || err2 != nil || !ok {
		return 0, Zone{}, &ParseError{Input: s}
	}
	hour, min, sec, ok := parseClock(fields[1])
	if !ok {
		return 0, Zone{}, &ParseError{Input: s}
	}
	z, ok := parseZone(fields[2])
	if !ok {
		return 0, Zone{}, &ParseError{Input: s}
	}
	t := NormalizeTime(Time{Year: year, Month: month, Day: day, Hour: hour, Min: min, Sec: sec, Zone: z})
	return MakeTime(t), z, nil
}

func fromEpoch(epoch int64, zone Zone) Time {
	local := epoch + int64(zone.OffsetSeconds())
	days := local / 86400
	rem := local % 86400
	if rem < 0 {
		rem += 86400
		days--
	}
	hour := int(rem / 3600)
	min := int((rem % 3600) / 60)
	sec := int(rem % 60)

	year := 1970
	for {
		yd := int64(365)
		if isLeap(year) {
			yd = 366
		}
		if days >= yd {
			days -= yd
			year++
		} else if days < 0 {
			year--
			yd = 365
			if isLeap(year) {
				yd = 366
			}
			days += yd
		} else {
			break
		}
	}
	month := 1
	for {
		md := int64(daysIn(year, month))
		if days >= md {
			days -= md
			month++
		} else {
			break
		}
	}
	return Time{Year: year, Month: month, Day: int(days) + 1, Hour: hour, Min: min, Sec: sec, Zone: zone}
}

var monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func monthName(m int) string { return monthNames[m-1] }

func formatZone(z Zone) string {
	sign := "+"
	if z.West {
		sign = "-"
	}
	return fmt.Sprintf("%s%02d%02d", sign, z.Hours, z.Minutes)
}
