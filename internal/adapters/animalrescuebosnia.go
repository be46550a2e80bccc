package adapters

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rescueradar/rescueradar/internal/extract"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

// arbMaxPages caps pagination so a broken next-link can never loop forever.
const arbMaxPages = 20

func init() {
	scraper.Register(scraper.Descriptor{Key: "animalrescuebosnia", Name: "Animal Rescue Bosnia"},
		func(env scraper.Env) scraper.Adapter {
			return &animalRescueBosnia{env: env, base: baseURL(env.Config.Metadata.WebsiteURL)}
		})
}

// animalRescueBosnia walks a paginated listing. Pages link forward with a
// rel=next anchor; the walk stops at the first page without one.
type animalRescueBosnia struct {
	env  scraper.Env
	base string
}

func (s *animalRescueBosnia) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	var items []*types.RawAnimal
	pageURL := s.base + "/our-dogs/"

	for page := 1; page <= arbMaxPages && pageURL != ""; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := s.env.Client.Get(ctx, pageURL)
		if err != nil {
			// Later pages failing should not void the dogs already found.
			if page > 1 {
				s.env.Logger.Warn("pagination stopped early", "page", page, "error", err)
				break
			}
			return nil, err
		}
		doc, err := resp.Document()
		if err != nil {
			return nil, &types.ParseError{URL: pageURL, Err: err}
		}

		doc.Find("div.dog-listing article, .dogs-grid .dog").Each(func(i int, card *goquery.Selection) {
			if item := s.parseCard(card); item != nil {
				items = append(items, item)
			}
		})

		next := extract.Attr(doc.Selection, `a[rel="next"], .pagination .next a`, "href")
		pageURL = extract.AbsoluteURL(s.base, next)
	}
	return keepRaw(items), nil
}

func (s *animalRescueBosnia) parseCard(card *goquery.Selection) *types.RawAnimal {
	adoptionURL := extract.AbsoluteURL(s.base, extract.Attr(card, "a", "href"))
	name := extract.Text(card, "h2, h3")
	if adoptionURL == "" || name == "" {
		return nil
	}

	item := &types.RawAnimal{
		ExternalID:      extract.SlugFromURL(adoptionURL),
		Name:            name,
		AdoptionURL:     adoptionURL,
		PrimaryImageURL: firstNonEmpty(
			extract.AbsoluteURL(s.base, extract.Attr(card, "img", "data-src")),
			extract.AbsoluteURL(s.base, extract.Attr(card, "img", "src")),
		),
	}

	// Cards list facts as "Label: value" rows.
	for _, row := range extract.Texts(card, ".dog-facts li, .details li") {
		label, value, ok := splitFact(row)
		if !ok {
			continue
		}
		switch label {
		case "breed":
			item.Breed = value
		case "age":
			item.AgeText = value
		case "sex", "gender":
			item.Sex = value
		case "size":
			item.Size = value
		case "weight":
			item.SetProperty("weight_text", value)
		default:
			item.SetProperty(label, value)
		}
	}
	return item
}

// splitFact splits a "Label: value" row into a snake_case label and a value.
func splitFact(row string) (label, value string, ok bool) {
	before, after, found := strings.Cut(row, ":")
	if !found {
		return "", "", false
	}
	label = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(before)), " ", "_")
	value = strings.TrimSpace(after)
	return label, value, label != "" && value != ""
}
