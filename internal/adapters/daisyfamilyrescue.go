package adapters

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/rescueradar/rescueradar/internal/extract"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

// daisyDetailWorkers bounds the concurrent detail-page fetches. The shared
// client still paces requests per the org's rate-limit delay.
const daisyDetailWorkers = 5

func init() {
	scraper.Register(scraper.Descriptor{Key: "daisyfamilyrescue", Name: "Daisy Family Rescue"},
		func(env scraper.Env) scraper.Adapter {
			return &daisyFamilyRescue{env: env, base: baseURL(env.Config.Metadata.WebsiteURL)}
		})
}

// daisyFamilyRescue walks an XPath-unfriendly Elementor listing with
// htmlquery, then fans detail fetches out over a small worker pool.
type daisyFamilyRescue struct {
	env  scraper.Env
	base string
}

func (s *daisyFamilyRescue) CollectData(ctx context.Context) ([]*types.RawAnimal, error) {
	urls, err := s.listDetailURLs(ctx)
	if err != nil {
		return nil, err
	}
	s.env.Logger.Info("listing walked", "detail_pages", len(urls))

	jobs := make(chan string)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		items []*types.RawAnimal
	)
	for w := 0; w < daisyDetailWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageURL := range jobs {
				item, err := s.fetchDetail(ctx, pageURL)
				if err != nil {
					s.env.Logger.Warn("detail page skipped", "url", pageURL, "error", err)
					continue
				}
				mu.Lock()
				items = append(items, item)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, u := range urls {
		select {
		case jobs <- u:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return keepRaw(items), nil
}

// listDetailURLs extracts the deduped dog detail links from the listing page.
func (s *daisyFamilyRescue) listDetailURLs(ctx context.Context) ([]string, error) {
	listURL := s.base + "/hunde-in-der-vermittlung/"
	resp, err := s.env.Client.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}
	root, err := resp.HTMLNode()
	if err != nil {
		return nil, &types.ParseError{URL: listURL, Err: err}
	}

	seen := map[string]struct{}{}
	var urls []string
	for _, a := range extract.XPathNodes(root, `//article//a[@href] | //div[contains(@class,"elementor-post")]//a[@href]`) {
		href := extract.AbsoluteURL(s.base, nodeAttr(a, "href"))
		if href == "" || !strings.Contains(href, "/hund") {
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}
		urls = append(urls, href)
	}
	return urls, nil
}

func (s *daisyFamilyRescue) fetchDetail(ctx context.Context, pageURL string) (*types.RawAnimal, error) {
	resp, err := s.env.Client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	root, err := resp.HTMLNode()
	if err != nil {
		return nil, &types.ParseError{URL: pageURL, Err: err}
	}
	return s.parseDetail(root, pageURL), nil
}

// parseDetail reads the Steckbrief table plus the free-text sections.
func (s *daisyFamilyRescue) parseDetail(root *html.Node, pageURL string) *types.RawAnimal {
	item := &types.RawAnimal{
		ExternalID:  extract.SlugFromURL(pageURL),
		Name:        extract.XPathText(root, `//h1`),
		AdoptionURL: pageURL,
		PrimaryImageURL: firstNonEmpty(
			extract.XPathAttr(root, `//div[contains(@class,"elementor-widget-image")]//img`, "src"),
			extract.XPathAttr(root, `//article//img`, "src"),
		),
		Description: extract.XPathText(root, `//div[contains(@class,"beschreibung")] | //section[contains(@class,"dog-story")]`),
	}
	item.PrimaryImageURL = extract.AbsoluteURL(s.base, item.PrimaryImageURL)

	for _, row := range extract.XPathNodes(root, `//table[contains(@class,"steckbrief")]//tr | //ul[contains(@class,"steckbrief")]/li`) {
		label, value, ok := splitFact(extract.CleanText(nodeText(row)))
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
			if strings.HasPrefix(label, "geboren") {
				item.BirthDate = value
			} else {
				item.SetProperty(label, value)
			}
		}
	}

	var gallery []string
	for _, img := range extract.XPathNodes(root, `//div[contains(@class,"gallery")]//img[@src]`) {
		gallery = append(gallery, nodeAttr(img, "src"))
	}
	item.ImageURLs = galleryURLs(s.base, item.PrimaryImageURL, gallery)
	return item
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
