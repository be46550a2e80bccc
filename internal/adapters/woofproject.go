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
	scraper.Register(scraper.Descriptor{Key: "woofproject", Name: "Woof Project"},
		func(env scraper.Env) scraper.Adapter {
			return &woofProject{env: env, base: baseURL(env.Config.Metadata.WebsiteURL)}
		})
}

// woofProject discovers dogs through the site's sitemap instead of a listing
// page, then reads each detail page's JSON-LD block with a CSS fallback for
// fields the block leaves out.
type woofProject struct {
	env  scraper.Env
	base string
}

func (s *woofProject) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	urls, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}
	s.env.Logger.Info("sitemap discovery complete", "dog_pages", len(urls))

	var items []*types.RawAnimal
	for _, pageURL := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := s.fetchDetail(ctx, pageURL)
		if err != nil {
			s.env.Logger.Warn("detail page skipped", "url", pageURL, "error", err)
			continue
		}
		items = append(items, item)
	}
	return keepRaw(items), nil
}

// discover walks the sitemap (following one level of sitemap index) and keeps
// the dog detail pages.
func (s *woofProject) discover(ctx context.Context) ([]string, error) {
	body, err := s.fetchBody(ctx, s.base+"/sitemap.xml")
	if err != nil {
		return nil, err
	}

	sitemaps := [][]byte{body}
	if children, err := extract.ParseSitemapIndex(body); err == nil && len(children) > 0 {
		sitemaps = sitemaps[:0]
		for _, loc := range children {
			child, err := s.fetchBody(ctx, loc)
			if err != nil {
				s.env.Logger.Warn("child sitemap skipped", "url", loc, "error", err)
				continue
			}
			sitemaps = append(sitemaps, child)
		}
	}

	seen := map[string]struct{}{}
	var urls []string
	for _, sm := range sitemaps {
		entries, err := extract.ParseSitemap(sm)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !strings.Contains(e.Loc, "/dog/") && !strings.Contains(e.Loc, "/dogs/") {
				continue
			}
			if _, dup := seen[e.Loc]; dup {
				continue
			}
			seen[e.Loc] = struct{}{}
			urls = append(urls, e.Loc)
		}
	}
	return urls, nil
}

func (s *woofProject) fetchBody(ctx context.Context, url string) ([]byte, error) {
	resp, err := s.env.Client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *woofProject) fetchDetail(ctx context.Context, pageURL string) (*types.RawAnimal, error) {
	resp, err := s.env.Client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: pageURL, Err: err}
	}
	return s.parseDetail(doc, pageURL), nil
}

// parseDetail builds the item from the page's JSON-LD Product block when
// present, then fills the gaps from the markup.
func (s *woofProject) parseDetail(doc *goquery.Document, pageURL string) *types.RawAnimal {
	item := &types.RawAnimal{
		ExternalID:  extract.SlugFromURL(pageURL),
		AdoptionURL: pageURL,
	}

	if objs := extract.JSONLDObjects(doc, "Product"); len(objs) > 0 {
		obj := objs[0]
		item.Name = extract.JSONLDString(obj, "name")
		item.Description = extract.JSONLDString(obj, "description")
		item.PrimaryImageURL = extract.JSONLDString(obj, "image")
	}

	if item.Name == "" {
		item.Name = extract.Text(doc.Selection, "h1.dog-name, h1")
	}
	if item.PrimaryImageURL == "" {
		item.PrimaryImageURL = extract.AbsoluteURL(s.base, extract.Attr(doc.Selection, ".dog-photo img, .gallery img", "src"))
	}
	if item.Description == "" {
		item.Description = extract.Text(doc.Selection, ".dog-description, .entry-content p")
	}
	item.Breed = extract.Text(doc.Selection, ".dog-breed, .breed")
	item.AgeText = extract.Text(doc.Selection, ".dog-age, .age")
	item.Sex = extract.Text(doc.Selection, ".dog-sex, .sex")
	item.Size = extract.Text(doc.Selection, ".dog-size, .size")

	var gallery []string
	doc.Find(".gallery img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			gallery = append(gallery, src)
		}
	})
	item.ImageURLs = galleryURLs(s.base, item.PrimaryImageURL, gallery)
	return item
}
