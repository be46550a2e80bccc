package adapters

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rescueradar/rescueradar/internal/extract"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

func init() {
	scraper.Register(scraper.Descriptor{Key: "rean", Name: "REAN"},
		func(env scraper.Env) scraper.Adapter {
			return &rean{env: env, base: baseURL(env.Config.Metadata.WebsiteURL)}
		})
}

// rean scrapes a single German-language listing page. Field labels are
// translated at extraction time so everything downstream sees English keys.
type rean struct {
	env  scraper.Env
	base string
}

// reanLabels maps the site's German fact labels onto our field names.
var reanLabels = map[string]string{
	"rasse":      "breed",
	"alter":      "age",
	"geschlecht": "sex",
	"größe":      "size",
	"grösse":     "size",
	"gewicht":    "weight",
}

func (s *rean) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	listURL := s.base + "/hunde/"
	resp, err := s.env.Client.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: listURL, Err: err}
	}

	var items []*types.RawAnimal
	doc.Find("div.hund, article.dog-entry").Each(func(i int, card *goquery.Selection) {
		if item := s.parseCard(card); item != nil {
			items = append(items, item)
		}
	})
	return keepRaw(items), nil
}

func (s *rean) parseCard(card *goquery.Selection) *types.RawAnimal {
	adoptionURL := extract.AbsoluteURL(s.base, extract.Attr(card, "a", "href"))
	name := extract.Text(card, "h2, h3, .hund-name")
	if adoptionURL == "" || name == "" {
		return nil
	}

	item := &types.RawAnimal{
		ExternalID:      extract.SlugFromURL(adoptionURL),
		Name:            name,
		AdoptionURL:     adoptionURL,
		PrimaryImageURL: extract.AbsoluteURL(s.base, extract.Attr(card, "img", "src")),
		Description:     extract.Text(card, ".beschreibung, .description"),
	}

	for _, row := range extract.Texts(card, ".steckbrief li, table.steckbrief td") {
		label, value, ok := splitFact(row)
		if !ok {
			continue
		}
		switch reanLabels[label] {
		case "breed":
			item.Breed = value
		case "age":
			item.AgeText = value
		case "sex":
			item.Sex = translateSex(value)
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

func translateSex(v string) string {
	switch strings.ToLower(v) {
	case "rüde", "ruede", "männlich", "maennlich":
		return "Male"
	case "hündin", "huendin", "weiblich":
		return "Female"
	}
	return v
}
