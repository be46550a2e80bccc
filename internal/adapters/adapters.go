// Package adapters holds the concrete CollectData implementations, one per
// rescue organization, plus their registrations. Each adapter owns only its
// site's discovery and field extraction; pacing, retries, validation, and
// persistence belong to the framework.
//
// Importing this package (blank-import from the CLI) populates the registry.
package adapters

import (
	"strings"

	"github.com/rescueradar/rescueradar/internal/extract"
	"github.com/rescueradar/rescueradar/internal/types"
)

// baseURL normalizes the configured website URL for joining.
func baseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// galleryURLs resolves and dedupes gallery image hrefs against base,
// excluding the primary.
func galleryURLs(base, primary string, hrefs []string) []string {
	seen := map[string]struct{}{primary: {}}
	var out []string
	for _, href := range hrefs {
		u := extract.AbsoluteURL(base, href)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// keepRaw drops raw items without an external id or URL before they ever
// reach the framework; adapters use it to filter navigation noise.
func keepRaw(items []*types.RawAnimal) []*types.RawAnimal {
	out := items[:0:0]
	for _, item := range items {
		if item == nil || (item.ExternalID == "" && item.AdoptionURL == "") {
			continue
		}
		out = append(out, item)
	}
	return out
}
