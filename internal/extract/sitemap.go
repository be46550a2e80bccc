package extract

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// SitemapEntry is one <url> element from a sitemap.
type SitemapEntry struct {
	Loc     string
	LastMod time.Time
}

type sitemapXML struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

type sitemapIndexXML struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// ParseSitemap decodes a sitemap urlset. Entries without a <loc> are dropped;
// unparseable lastmod values leave a zero time rather than failing the
// sitemap.
func ParseSitemap(body []byte) ([]SitemapEntry, error) {
	var sm sitemapXML
	if err := xml.Unmarshal(body, &sm); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	entries := make([]SitemapEntry, 0, len(sm.URLs))
	for _, u := range sm.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		entry := SitemapEntry{Loc: loc}
		if u.LastMod != "" {
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if t, err := time.Parse(layout, strings.TrimSpace(u.LastMod)); err == nil {
					entry.LastMod = t
					break
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseSitemapIndex decodes a sitemap index into its child sitemap URLs.
func ParseSitemapIndex(body []byte) ([]string, error) {
	var idx sitemapIndexXML
	if err := xml.Unmarshal(body, &idx); err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}
	var locs []string
	for _, s := range idx.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}
