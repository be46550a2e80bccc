// Package standardize maps raw scraped fields onto canonical breed, size,
// age, and sex values with a confidence score. The mapping is deterministic
// and idempotent; unknown inputs resolve to documented defaults, never to
// empty values, because the store forbids nulls in these columns.
package standardize

import (
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rescueradar/rescueradar/internal/types"
)

// Weight-to-size breakpoints in kilograms, used only when the source states
// a weight but no size.
const (
	weightTinyMax   = 5.0
	weightSmallMax  = 12.0
	weightMediumMax = 25.0
	weightLargeMax  = 40.0
)

// Confidence weights per resolved field.
const (
	confBreed = 0.4
	confAge   = 0.25
	confSex   = 0.2
	confSize  = 0.15
)

// Standardizer memoizes canonicalization over the raw field tuple. Breed and
// age strings repeat heavily within one source, so the cache pays for itself
// on the first scrape.
type Standardizer struct {
	cache *lru.Cache[string, types.Standardization]
	now   func() time.Time
}

// Option configures a Standardizer.
type Option func(*Standardizer)

// WithClock overrides the time source. Test hook for birth-date parsing.
func WithClock(now func() time.Time) Option {
	return func(s *Standardizer) { s.now = now }
}

// New creates a Standardizer with a memo cache of the given size.
func New(cacheSize int, opts ...Option) *Standardizer {
	if cacheSize < 1 {
		cacheSize = 1024
	}
	cache, _ := lru.New[string, types.Standardization](cacheSize)
	s := &Standardizer{cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Standardize canonicalizes one raw animal's fields.
func (s *Standardizer) Standardize(raw *types.RawAnimal) types.Standardization {
	key := strings.Join([]string{raw.Breed, raw.AgeText, raw.BirthDate, raw.Sex, raw.Size, weightKey(raw.WeightKG)}, "\x1f")
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	var std types.Standardization
	confidence := 0.0

	breed, group, primary, matched := lookupBreed(raw.Breed)
	std.Breed = breed
	std.BreedGroup = group
	std.PrimaryBreed = primary
	if matched {
		confidence += confBreed
	}

	ageText := raw.AgeText
	if raw.BirthDate != "" {
		ageText = raw.BirthDate
	}
	minMonths, maxMonths, category, ageMatched := parseAge(ageText, s.now())
	std.AgeMinMonths = minMonths
	std.AgeMaxMonths = maxMonths
	std.AgeCategory = category
	if ageMatched {
		confidence += confAge
	}

	sex := canonicalSex(raw.Sex)
	std.Sex = sex
	if sex != types.SexUnknown {
		confidence += confSex
	}

	size, sizeMatched := canonicalSize(raw.Size, raw.WeightKG)
	std.Size = size
	if sizeMatched {
		confidence += confSize
	}

	std.Confidence = confidence
	s.cache.Add(key, std)
	return std
}

// Apply writes a standardization into an animal row.
func Apply(a *types.Animal, std types.Standardization) {
	a.StandardizedBreed = std.Breed
	a.BreedGroup = std.BreedGroup
	a.PrimaryBreed = std.PrimaryBreed
	a.StandardizedSize = std.Size
	a.AgeMinMonths = std.AgeMinMonths
	a.AgeMaxMonths = std.AgeMaxMonths
	a.AgeCategory = std.AgeCategory
	a.Sex = std.Sex
	a.StandardizationConfidence = std.Confidence
}

// canonicalSex maps source sex strings (including German and Turkish site
// spellings) onto male/female/unknown.
func canonicalSex(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m", "boy", "männlich", "ruede", "rüde", "erkek":
		return types.SexMale
	case "female", "f", "girl", "weiblich", "huendin", "hündin", "dişi", "disi":
		return types.SexFemale
	default:
		return types.SexUnknown
	}
}

// canonicalSize resolves a size bucket, falling back to weight breakpoints
// when the source states a weight but no size. Default is Medium.
func canonicalSize(raw string, weightKG float64) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tiny", "xs", "very small":
		return types.SizeTiny, true
	case "small", "s", "klein", "küçük":
		return types.SizeSmall, true
	case "medium", "m", "mittel", "orta":
		return types.SizeMedium, true
	case "large", "l", "big", "gross", "groß", "büyük":
		return types.SizeLarge, true
	case "xlarge", "xl", "extra large", "giant", "xxl":
		return types.SizeXLarge, true
	}

	if weightKG > 0 {
		switch {
		case weightKG < weightTinyMax:
			return types.SizeTiny, true
		case weightKG < weightSmallMax:
			return types.SizeSmall, true
		case weightKG < weightMediumMax:
			return types.SizeMedium, true
		case weightKG < weightLargeMax:
			return types.SizeLarge, true
		default:
			return types.SizeXLarge, true
		}
	}

	return types.SizeMedium, false
}

func weightKey(kg float64) string {
	if kg <= 0 {
		return ""
	}
	return strconv.FormatFloat(kg, 'f', -1, 64)
}
