package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/rescueradar/rescueradar/internal/extract"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

func init() {
	scraper.Register(scraper.Descriptor{Key: "misisrescue", Name: "Misis Rescue"},
		func(env scraper.Env) scraper.Adapter {
			return &misisRescue{env: env, base: baseURL(env.Config.Metadata.WebsiteURL)}
		})
}

// misisRescue reads the site's JSON listing endpoint. The endpoint pages with
// an offset cursor and signals the end with an empty page.
type misisRescue struct {
	env  scraper.Env
	base string
}

const misisPageSize = 50

type misisDog struct {
	ID          int      `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Breed       string   `json:"breed"`
	Age         string   `json:"age"`
	Sex         string   `json:"sex"`
	Size        string   `json:"size"`
	WeightKG    float64  `json:"weight_kg"`
	Description string   `json:"description"`
	Photo       string   `json:"photo"`
	Photos      []string `json:"photos"`
	URL         string   `json:"url"`
	Status      string   `json:"status"`
	Location    string   `json:"location"`
}

type misisListing struct {
	Dogs  []misisDog `json:"dogs"`
	Total int        `json:"total"`
}

func (s *misisRescue) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	var items []*types.RawAnimal
	for offset := 0; ; offset += misisPageSize {
		var page misisListing
		endpoint := fmt.Sprintf("%s/api/dogs?limit=%d&offset=%d", s.base, misisPageSize, offset)
		if err := s.env.Client.GetJSON(ctx, endpoint, &page); err != nil {
			if offset > 0 {
				s.env.Logger.Warn("listing page failed, keeping earlier pages", "offset", offset, "error", err)
				break
			}
			return nil, err
		}
		if len(page.Dogs) == 0 {
			break
		}
		for i := range page.Dogs {
			if item := s.convert(&page.Dogs[i]); item != nil {
				items = append(items, item)
			}
		}
		if page.Total > 0 && offset+misisPageSize >= page.Total {
			break
		}
	}
	return keepRaw(items), nil
}

func (s *misisRescue) convert(dog *misisDog) *types.RawAnimal {
	// Adopted dogs stay in the feed for a while; only list the available ones.
	if status := strings.ToLower(dog.Status); status != "" && status != "available" {
		return nil
	}

	externalID := dog.Slug
	if externalID == "" && dog.ID > 0 {
		externalID = fmt.Sprintf("%d", dog.ID)
	}
	adoptionURL := extract.AbsoluteURL(s.base, dog.URL)
	if adoptionURL == "" {
		adoptionURL = s.base + "/dogs/" + externalID
	}

	item := &types.RawAnimal{
		ExternalID:      externalID,
		Name:            extract.CleanText(dog.Name),
		AdoptionURL:     adoptionURL,
		PrimaryImageURL: extract.AbsoluteURL(s.base, dog.Photo),
		Breed:           extract.CleanText(dog.Breed),
		AgeText:         extract.CleanText(dog.Age),
		Sex:             extract.CleanText(dog.Sex),
		Size:            extract.CleanText(dog.Size),
		WeightKG:        dog.WeightKG,
		Description:     extract.CleanText(dog.Description),
	}
	item.ImageURLs = galleryURLs(s.base, item.PrimaryImageURL, dog.Photos)
	if dog.Location != "" {
		item.SetProperty("location", extract.CleanText(dog.Location))
	}
	return item
}
