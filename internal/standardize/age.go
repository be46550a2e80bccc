package standardize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rescueradar/rescueradar/internal/types"
)

var (
	yearsRe     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:years?|yrs?|y\.?o\.?|jahre?)`)
	monthsRe    = regexp.MustCompile(`(\d+)\s*(?:months?|mos?|monate?)`)
	weeksRe     = regexp.MustCompile(`(\d+)\s*(?:weeks?|wks?|wochen)`)
	rangeRe     = regexp.MustCompile(`(\d+)\s*[-–]\s*(\d+)\s*(years?|months?)`)
	birthDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	bareNumRe   = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)\s*$`)
)

// Age category breakpoints, in months.
const (
	puppyMaxMonths = 11
	youngMaxMonths = 35
	adultMaxMonths = 95
)

// maxAgeMonths caps parsed ages at a plausible canine lifetime.
const maxAgeMonths = 300

// parseAge derives an age range in months from free text. A dd/mm/yyyy birth
// date in the text wins over phrases; life-stage words are the fallback.
// Returns min, max, category, and whether anything matched.
func parseAge(ageText string, now time.Time) (int, int, string, bool) {
	text := strings.ToLower(strings.TrimSpace(ageText))
	if text == "" {
		return 0, 0, types.AgeUnknown, false
	}

	// Birth date: compute months from now.
	if m := birthDateRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			birth := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			months := monthsBetween(birth, now)
			if months >= 0 && months <= maxAgeMonths {
				return months, months, categoryFor(months), true
			}
		}
	}

	// Explicit ranges: "2-4 years", "6-9 months".
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if strings.HasPrefix(m[3], "year") {
			lo, hi = lo*12, hi*12
		}
		if lo <= hi && hi <= maxAgeMonths {
			return lo, hi, categoryFor((lo + hi) / 2), true
		}
	}

	// Combined or single phrases: "2 years", "1 year 3 months", "8 weeks".
	months := 0
	matchedPhrase := false
	if m := yearsRe.FindStringSubmatch(text); m != nil {
		years, _ := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		months += int(years * 12)
		matchedPhrase = true
	}
	if m := monthsRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		months += n
		matchedPhrase = true
	}
	if !matchedPhrase {
		if m := weeksRe.FindStringSubmatch(text); m != nil {
			n, _ := strconv.Atoi(m[1])
			months = n / 4
			matchedPhrase = true
		}
	}
	if matchedPhrase && months <= maxAgeMonths {
		return months, months, categoryFor(months), true
	}

	// Life-stage words map to representative ranges.
	switch {
	case containsAny(text, "puppy", "welpe", "pup "):
		return 2, puppyMaxMonths, types.AgePuppy, true
	case containsAny(text, "young", "juvenile", "adolescent", "junghund"):
		return 12, youngMaxMonths, types.AgeYoung, true
	case containsAny(text, "senior", "old", "elderly"):
		return adultMaxMonths + 1, 240, types.AgeSenior, true
	case containsAny(text, "adult", "grown"):
		return 36, adultMaxMonths, types.AgeAdult, true
	}

	// A bare number reads as years.
	if m := bareNumRe.FindStringSubmatch(text); m != nil {
		years, _ := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		months := int(years * 12)
		if months <= maxAgeMonths {
			return months, months, categoryFor(months), true
		}
	}

	return 0, 0, types.AgeUnknown, false
}

// categoryFor maps a month count to its age bucket.
func categoryFor(months int) string {
	switch {
	case months <= puppyMaxMonths:
		return types.AgePuppy
	case months <= youngMaxMonths:
		return types.AgeYoung
	case months <= adultMaxMonths:
		return types.AgeAdult
	default:
		return types.AgeSenior
	}
}

// monthsBetween counts whole months from birth to now.
func monthsBetween(birth, now time.Time) int {
	months := (now.Year()-birth.Year())*12 + int(now.Month()) - int(birth.Month())
	if now.Day() < birth.Day() {
		months--
	}
	return months
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
