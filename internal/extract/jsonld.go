package extract

import (
	"encoding/json"

	"github.com/PuerkitoBio/goquery"
)

// JSONLDObjects returns every JSON-LD object in the document whose @type
// matches wantType (all objects when wantType is ""). Arrays, @graph
// containers, and malformed blocks are handled; a bad block is skipped, not
// fatal, because listing pages routinely ship broken analytics JSON-LD next
// to the data that matters.
func JSONLDObjects(doc *goquery.Document, wantType string) []map[string]any {
	var out []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := s.Text()
		if raw == "" {
			return
		}
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return
		}
		collectJSONLD(payload, wantType, &out)
	})
	return out
}

func collectJSONLD(payload any, wantType string, out *[]map[string]any) {
	switch v := payload.(type) {
	case []any:
		for _, item := range v {
			collectJSONLD(item, wantType, out)
		}
	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			collectJSONLD(graph, wantType, out)
		}
		if wantType == "" || jsonLDTypeMatches(v["@type"], wantType) {
			*out = append(*out, v)
		}
	}
}

func jsonLDTypeMatches(typeField any, want string) bool {
	switch t := typeField.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// JSONLDString reads a string field from a JSON-LD object, tolerating the
// single-element-array form some generators emit.
func JSONLDString(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return CleanText(v)
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return CleanText(s)
			}
		}
	}
	return ""
}
