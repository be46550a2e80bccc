package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rescueradar/rescueradar/internal/extract"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

func init() {
	scraper.Register(scraper.Descriptor{Key: "petsinturkey", Name: "Pets in Turkey"},
		func(env scraper.Env) scraper.Adapter {
			return &petsInTurkey{env: env, base: baseURL(env.Config.Metadata.WebsiteURL)}
		})
}

// petsInTurkey needs a real browser: the Wix listing builds its DOM from
// scripts, so a plain GET returns an empty shell. Rendering happens in the
// shared headless browser; parsing is a pure function over the final HTML.
type petsInTurkey struct {
	env  scraper.Env
	base string
}

func (s *petsInTurkey) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	if s.env.Browser == nil {
		return nil, &types.ScrapeError{
			Kind:     types.KindFatalSetup,
			ConfigID: s.env.Config.ConfigID,
			Err:      fmt.Errorf("adapter requires a browser"),
		}
	}

	listURL := s.base + "/dogs"
	resp, err := s.env.Browser.FetchRendered(ctx, listURL, `[data-hook="dog-item"], .dog-listing`)
	if err != nil {
		return nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: listURL, Err: err}
	}

	items := parsePetsInTurkey(doc, s.base)
	s.env.Logger.Info("rendered listing parsed", "items", len(items))
	return keepRaw(items), nil
}

// parsePetsInTurkey extracts dog entries from the rendered listing. Split out
// so it can run against captured HTML without a browser.
func parsePetsInTurkey(doc *goquery.Document, base string) []*types.RawAnimal {
	var items []*types.RawAnimal
	doc.Find(`[data-hook="dog-item"], .dog-listing .dog`).Each(func(i int, card *goquery.Selection) {
		name := extract.Text(card, `[data-hook="dog-name"], h3`)
		if name == "" {
			return
		}
		adoptionURL := extract.AbsoluteURL(base, extract.Attr(card, "a", "href"))
		externalID := extract.SlugFromURL(adoptionURL)
		if externalID == "" {
			// The listing has no per-dog pages; the name anchors identity.
			externalID = strings.ToLower(strings.ReplaceAll(name, " ", "-"))
			adoptionURL = base + "/dogs#" + externalID
		}

		item := &types.RawAnimal{
			ExternalID:      externalID,
			Name:            name,
			AdoptionURL:     adoptionURL,
			PrimaryImageURL: firstNonEmpty(
				extract.AbsoluteURL(base, extract.Attr(card, "img", "src")),
				extract.AbsoluteURL(base, extract.Attr(card, "img", "data-src")),
			),
			Breed:       extract.Text(card, `[data-hook="dog-breed"], .breed`),
			AgeText:     extract.Text(card, `[data-hook="dog-age"], .age`),
			Sex:         extract.Text(card, `[data-hook="dog-sex"], .sex`),
			Size:        extract.Text(card, `[data-hook="dog-size"], .size`),
			Description: extract.Text(card, `[data-hook="dog-description"], .description`),
		}
		if weight := extract.Text(card, `[data-hook="dog-weight"], .weight`); weight != "" {
			item.SetProperty("weight_text", weight)
		}
		items = append(items, item)
	})
	return items
}
