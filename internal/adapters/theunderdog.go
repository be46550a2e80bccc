package adapters

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/rescueradar/rescueradar/internal/extract"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

func init() {
	scraper.Register(scraper.Descriptor{Key: "theunderdog", Name: "The Underdog"},
		func(env scraper.Env) scraper.Adapter {
			return &theUnderdog{env: env, base: baseURL(env.Config.Metadata.WebsiteURL)}
		})
}

// theUnderdog scrapes a single listing page of dog cards. Each card carries
// everything we need; there is no detail fetch.
type theUnderdog struct {
	env  scraper.Env
	base string
}

func (s *theUnderdog) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	listURL := s.base + "/adopt"
	resp, err := s.env.Client.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: listURL, Err: err}
	}

	var items []*types.RawAnimal
	doc.Find("div.dog-card, article.dog").Each(func(i int, card *goquery.Selection) {
		item, err := s.parseCard(card)
		if err != nil {
			s.env.Logger.Warn("card skipped", "position", i, "error", err)
			return
		}
		items = append(items, item)
	})
	return keepRaw(items), nil
}

func (s *theUnderdog) parseCard(card *goquery.Selection) (*types.RawAnimal, error) {
	href := extract.Attr(card, "a", "href")
	adoptionURL := extract.AbsoluteURL(s.base, href)
	if adoptionURL == "" {
		return nil, &types.ParseError{Selector: "a[href]", Err: fmt.Errorf("no adoption link")}
	}

	item := &types.RawAnimal{
		ExternalID:      extract.SlugFromURL(adoptionURL),
		Name:            extract.Text(card, "h3, .dog-name"),
		AdoptionURL:     adoptionURL,
		PrimaryImageURL: extract.AbsoluteURL(s.base, extract.Attr(card, "img", "src")),
		Breed:           extract.Text(card, ".breed"),
		AgeText:         extract.Text(card, ".age"),
		Sex:             extract.Text(card, ".sex, .gender"),
		Size:            extract.Text(card, ".size"),
		Description:     extract.Text(card, ".description, .summary"),
	}
	if location := extract.Text(card, ".location"); location != "" {
		item.SetProperty("location", location)
	}
	return item, nil
}
