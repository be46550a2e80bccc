package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Status is the adoption status of a stored animal.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusAdopted   Status = "adopted"
	StatusUnknown   Status = "unknown"
)

// Confidence is the heuristic belief that a stored animal is still adoptable.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Canonical size buckets. Weight fallback breakpoints live in the
// standardizer.
const (
	SizeTiny   = "Tiny"
	SizeSmall  = "Small"
	SizeMedium = "Medium"
	SizeLarge  = "Large"
	SizeXLarge = "XLarge"
)

// Canonical age categories.
const (
	AgePuppy   = "Puppy"
	AgeYoung   = "Young"
	AgeAdult   = "Adult"
	AgeSenior  = "Senior"
	AgeUnknown = "Unknown"
)

// Canonical sexes.
const (
	SexMale    = "male"
	SexFemale  = "female"
	SexUnknown = "unknown"
)

// RawAnimal is a single listing as an adapter discovered it, before
// standardization. Required: ExternalID, Name, AdoptionURL, PrimaryImageURL.
// Everything else is best-effort source data.
type RawAnimal struct {
	ExternalID      string
	Name            string
	AdoptionURL     string
	PrimaryImageURL string

	// ImageURLs are additional gallery images, primary excluded.
	ImageURLs []string

	Breed       string
	AgeText     string
	BirthDate   string // dd/mm/yyyy when the source lists one
	Sex         string
	Size        string
	WeightKG    float64 // 0 = not stated
	Description string

	// Properties is the bag of source-specific extras that survive into the
	// stored row as JSON.
	Properties map[string]any
}

// Validate reports the first missing required field.
func (r *RawAnimal) Validate() error {
	switch {
	case strings.TrimSpace(r.ExternalID) == "":
		return &ValidationError{ExternalID: r.ExternalID, Field: "external_id"}
	case strings.TrimSpace(r.Name) == "":
		return &ValidationError{ExternalID: r.ExternalID, Field: "name"}
	case strings.TrimSpace(r.AdoptionURL) == "":
		return &ValidationError{ExternalID: r.ExternalID, Field: "adoption_url"}
	case strings.TrimSpace(r.PrimaryImageURL) == "":
		return &ValidationError{ExternalID: r.ExternalID, Field: "primary_image_url"}
	}
	return nil
}

// SetProperty stores a source-specific extra field.
func (r *RawAnimal) SetProperty(key string, value any) {
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	r.Properties[key] = value
}

// Standardization is the canonical form derived from a RawAnimal. Fields are
// never empty: unknown inputs map to documented defaults.
type Standardization struct {
	Breed        string
	BreedGroup   string
	PrimaryBreed string
	Size         string
	AgeMinMonths int
	AgeMaxMonths int
	AgeCategory  string
	Sex          string
	Confidence   float64
}

// Animal is a stored listing row.
type Animal struct {
	ID             int64
	OrganizationID int64
	ExternalID     string
	AdoptionURL    string
	Name           string

	// Raw source fields.
	Breed   string
	AgeText string
	Sex     string
	Gender  string
	Size    string

	// Standardized counterparts.
	StandardizedBreed         string
	BreedGroup                string
	PrimaryBreed              string
	StandardizedSize          string
	AgeMinMonths              int
	AgeMaxMonths              int
	AgeCategory               string
	StandardizationConfidence float64

	PrimaryImageURL string
	Properties      map[string]any

	Status                    Status
	AvailabilityConfidence    Confidence
	ConsecutiveScrapesMissing int
	LastSeenAt                time.Time
	AdoptionCheckedAt         *time.Time
	AdoptionCheckData         []byte // JSON blob, size-capped at write time
	ContentHash               string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fingerprint hashes the comparable content of an animal. Two scrapes of an
// unchanged listing produce the same fingerprint, which is what classifies
// an upsert as updated vs unchanged.
func (a *Animal) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%d|%d|%s|%s|%s",
		a.Name,
		a.StandardizedBreed,
		a.BreedGroup,
		a.PrimaryBreed,
		a.StandardizedSize,
		a.AgeCategory,
		a.Sex,
		a.AgeMinMonths,
		a.AgeMaxMonths,
		a.PrimaryImageURL,
		a.AdoptionURL,
		a.AgeText,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Organization is one configured source.
type Organization struct {
	ID         int64
	ConfigID   string
	Name       string
	WebsiteURL string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AnimalImage is one verified (or attempted) gallery image for an animal,
// keyed by the same (organization, external id) pair as the animal row.
type AnimalImage struct {
	ID             int64
	OrganizationID int64
	ExternalID     string
	ImageURL       string
	Position       int
	ContentType    string
	Bytes          int64
	Verified       bool
	CheckedAt      *time.Time
	CreatedAt      time.Time
}
