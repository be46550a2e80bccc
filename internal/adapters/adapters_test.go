package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/fetch"
	"github.com/rescueradar/rescueradar/internal/logging"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/scraper"
	"github.com/rescueradar/rescueradar/internal/types"
)

func newAdapterEnv(t *testing.T, configID, websiteURL string) scraper.Env {
	t.Helper()
	doc := fmt.Sprintf("config_id: %s\nname: %s\nactive: true\nmetadata:\n  website_url: %s\n",
		configID, configID, websiteURL)
	cfg, err := orgconfig.Parse([]byte(doc), configID)
	require.NoError(t, err)

	fetchCfg := config.DefaultConfig().Fetch
	fetchCfg.MaxRetries = 1
	fetchCfg.RetryDelay = time.Millisecond
	fetchCfg.Jitter = 0

	return scraper.Env{
		Client: fetch.New(fetchCfg, logging.Discard()),
		Config: cfg,
		Logger: logging.Discard(),
	}
}

func buildAdapter(t *testing.T, key string, env scraper.Env) scraper.Adapter {
	t.Helper()
	_, factory, err := scraper.Lookup(key)
	require.NoError(t, err)
	return factory(env)
}

func TestTheUnderdogCollect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/adopt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<div class="dog-card">
				<a href="/adopt/buddy"><h3>Buddy</h3></a>
				<img src="/img/buddy.jpg">
				<span class="breed">Labrador</span>
				<span class="age">2 years</span>
				<span class="sex">Male</span>
				<span class="size">Large</span>
				<p class="description">Friendly lab looking for a home.</p>
				<span class="location">Valletta</span>
			</div>
			<div class="dog-card">
				<h3>No Link</h3>
			</div>
			<div class="dog-card">
				<a href="/adopt/luna"><h3>Luna</h3></a>
			</div>
		</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newAdapterEnv(t, "theunderdog", srv.URL)
	items, err := buildAdapter(t, "theunderdog", env).CollectData(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	buddy := items[0]
	assert.Equal(t, "buddy", buddy.ExternalID)
	assert.Equal(t, "Buddy", buddy.Name)
	assert.Equal(t, srv.URL+"/adopt/buddy", buddy.AdoptionURL)
	assert.Equal(t, srv.URL+"/img/buddy.jpg", buddy.PrimaryImageURL)
	assert.Equal(t, "Labrador", buddy.Breed)
	assert.Equal(t, "2 years", buddy.AgeText)
	assert.Equal(t, "Male", buddy.Sex)
	assert.Equal(t, "Large", buddy.Size)
	assert.Equal(t, "Valletta", buddy.Properties["location"])
	assert.Equal(t, "luna", items[1].ExternalID)
}

func TestAnimalRescueBosniaPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/our-dogs/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="dog-listing">
			<article>
				<a href="/dogs/rex/"><h2>Rex</h2></a>
				<img src="/img/rex.jpg">
				<ul class="dog-facts">
					<li>Breed: Mixed breed</li>
					<li>Age: 3 years</li>
					<li>Sex: Male</li>
					<li>Weight: 20 kg</li>
					<li>just a note without label</li>
				</ul>
			</article>
		</div>
		<div class="pagination"><span class="next"><a href="/our-dogs/page/2/">Next</a></span></div>
		</body></html>`)
	})
	mux.HandleFunc("/our-dogs/page/2/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="dog-listing">
			<article>
				<a href="/dogs/mila/"><h2>Mila</h2></a>
				<ul class="dog-facts"><li>Gender: Female</li></ul>
			</article>
		</div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newAdapterEnv(t, "animalrescuebosnia", srv.URL)
	items, err := buildAdapter(t, "animalrescuebosnia", env).CollectData(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "rex", items[0].ExternalID)
	assert.Equal(t, "Mixed breed", items[0].Breed)
	assert.Equal(t, "3 years", items[0].AgeText)
	assert.Equal(t, "20 kg", items[0].Properties["weight_text"])
	assert.Equal(t, "mila", items[1].ExternalID)
	assert.Equal(t, "Female", items[1].Sex)
}

func TestReanTranslatesGermanFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hunde/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="hund">
				<a href="/hunde/bella/"><h2>Bella</h2></a>
				<img src="/bilder/bella.jpg">
				<ul class="steckbrief">
					<li>Rasse: Mischling</li>
					<li>Alter: 4 Jahre</li>
					<li>Geschlecht: Hündin</li>
					<li>Gewicht: 18 kg</li>
				</ul>
				<p class="beschreibung">Eine liebe Hündin.</p>
			</div>
		</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newAdapterEnv(t, "rean", srv.URL)
	items, err := buildAdapter(t, "rean", env).CollectData(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	bella := items[0]
	assert.Equal(t, "bella", bella.ExternalID)
	assert.Equal(t, "Mischling", bella.Breed)
	assert.Equal(t, "4 Jahre", bella.AgeText)
	assert.Equal(t, "Female", bella.Sex)
	assert.Equal(t, "18 kg", bella.Properties["weight_text"])
	assert.Equal(t, "Eine liebe Hündin.", bella.Description)
}

func TestWoofProjectSitemapDiscovery(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
			<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
				<sitemap><loc>%s/sitemap-dogs.xml</loc></sitemap>
			</sitemapindex>`, srvURL)
	})
	mux.HandleFunc("/sitemap-dogs.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
			<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
				<url><loc>%s/dogs/charlie/</loc><lastmod>2026-08-01</lastmod></url>
				<url><loc>%s/dogs/charlie/</loc></url>
				<url><loc>%s/about/</loc></url>
			</urlset>`, srvURL, srvURL, srvURL)
	})
	mux.HandleFunc("/dogs/charlie/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<script type="application/ld+json">
				{"@type":"Product","name":"Charlie","description":"Gentle senior boy.","image":"https://cdn.example.org/charlie.jpg"}
			</script>
		</head><body>
			<span class="dog-breed">Pointer</span>
			<span class="dog-age">8 years</span>
			<span class="dog-sex">Male</span>
			<div class="gallery">
				<img src="https://cdn.example.org/charlie.jpg">
				<img src="https://cdn.example.org/charlie-2.jpg">
			</div>
		</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	env := newAdapterEnv(t, "woofproject", srv.URL)
	items, err := buildAdapter(t, "woofproject", env).CollectData(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	charlie := items[0]
	assert.Equal(t, "charlie", charlie.ExternalID)
	assert.Equal(t, "Charlie", charlie.Name)
	assert.Equal(t, "Gentle senior boy.", charlie.Description)
	assert.Equal(t, "https://cdn.example.org/charlie.jpg", charlie.PrimaryImageURL)
	assert.Equal(t, "Pointer", charlie.Breed)
	assert.Equal(t, []string{"https://cdn.example.org/charlie-2.jpg"}, charlie.ImageURLs)
}

func TestMisisRescuePagedAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dogs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		offset := r.URL.Query().Get("offset")
		if offset != "0" {
			json.NewEncoder(w).Encode(misisListing{})
			return
		}
		json.NewEncoder(w).Encode(misisListing{
			Total: 3,
			Dogs: []misisDog{
				{ID: 1, Slug: "nora", Name: "Nora", Breed: "Terrier", Age: "2 years",
					Sex: "Female", WeightKG: 9.5, Photo: "/photos/nora.jpg",
					Photos: []string{"/photos/nora.jpg", "/photos/nora-b.jpg"},
					URL:    "/dogs/nora", Status: "available", Location: "Skopje"},
				{ID: 2, Slug: "max", Name: "Max", Status: "adopted"},
				{ID: 3, Name: "Pip", Status: "available"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newAdapterEnv(t, "misisrescue", srv.URL)
	items, err := buildAdapter(t, "misisrescue", env).CollectData(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	nora := items[0]
	assert.Equal(t, "nora", nora.ExternalID)
	assert.Equal(t, srv.URL+"/dogs/nora", nora.AdoptionURL)
	assert.Equal(t, srv.URL+"/photos/nora.jpg", nora.PrimaryImageURL)
	assert.Equal(t, []string{srv.URL + "/photos/nora-b.jpg"}, nora.ImageURLs)
	assert.InDelta(t, 9.5, nora.WeightKG, 0.001)
	assert.Equal(t, "Skopje", nora.Properties["location"])

	pip := items[1]
	assert.Equal(t, "3", pip.ExternalID)
	assert.Equal(t, srv.URL+"/dogs/3", pip.AdoptionURL)
}

func TestDaisyFamilyRescueDetailPool(t *testing.T) {
	detail := func(name, breed string) string {
		return fmt.Sprintf(`<html><body><article>
			<h1>%s</h1>
			<img src="/bilder/%s.jpg">
			<ul class="steckbrief">
				<li>Rasse: %s</li>
				<li>Geschlecht: Rüde</li>
				<li>Geboren: 01/05/2022</li>
			</ul>
		</article></body></html>`, name, strings.ToLower(name), breed)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/hunde-in-der-vermittlung/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<article><a href="/hund-aron/">Aron</a></article>
			<article><a href="/hund-aron/">Aron again</a></article>
			<article><a href="/hund-bruno/">Bruno</a></article>
			<article><a href="/impressum/">Impressum</a></article>
		</body></html>`)
	})
	mux.HandleFunc("/hund-aron/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detail("Aron", "Schäferhund Mix"))
	})
	mux.HandleFunc("/hund-bruno/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detail("Bruno", "Mischling"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := newAdapterEnv(t, "daisyfamilyrescue", srv.URL)
	items, err := buildAdapter(t, "daisyfamilyrescue", env).CollectData(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[string]*types.RawAnimal{}
	for _, item := range items {
		byID[item.ExternalID] = item
	}
	aron := byID["hund-aron"]
	require.NotNil(t, aron)
	assert.Equal(t, "Aron", aron.Name)
	assert.Equal(t, "Schäferhund Mix", aron.Breed)
	assert.Equal(t, "Male", aron.Sex)
	assert.Equal(t, "01/05/2022", aron.BirthDate)
	require.NotNil(t, byID["hund-bruno"])
}

func TestPetsInTurkeyParseRendered(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
		<div class="dog-listing">
			<div class="dog">
				<h3>Zeytin</h3>
				<span class="breed">Golden Retriever</span>
				<span class="age">3 years</span>
				<span class="sex">Female</span>
				<span class="weight">25 kg</span>
				<img src="https://static.example.org/zeytin.jpg">
			</div>
			<div class="dog"><span class="breed">no name, dropped</span></div>
		</div>
	</body></html>`))
	require.NoError(t, err)

	items := parsePetsInTurkey(doc, "https://www.petsinturkey.org")
	require.Len(t, items, 1)

	zeytin := items[0]
	assert.Equal(t, "zeytin", zeytin.ExternalID)
	assert.Equal(t, "https://www.petsinturkey.org/dogs#zeytin", zeytin.AdoptionURL)
	assert.Equal(t, "Golden Retriever", zeytin.Breed)
	assert.Equal(t, "25 kg", zeytin.Properties["weight_text"])
}

func TestPetsInTurkeyRequiresBrowser(t *testing.T) {
	env := newAdapterEnv(t, "petsinturkey", "https://www.petsinturkey.org")
	_, err := buildAdapter(t, "petsinturkey", env).CollectData(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.KindFatalSetup, types.KindOf(err))
}

func TestSplitFact(t *testing.T) {
	cases := []struct {
		in          string
		label, want string
		ok          bool
	}{
		{"Breed: Mixed breed", "breed", "Mixed breed", true},
		{"Good with cats: yes", "good_with_cats", "yes", true},
		{"no separator here", "", "", false},
		{": dangling", "", "", false},
	}
	for _, tc := range cases {
		label, value, ok := splitFact(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.label, label, tc.in)
			assert.Equal(t, tc.want, value, tc.in)
		}
	}
}

func TestRegisteredAdapterKeys(t *testing.T) {
	keys := scraper.Keys()
	for _, want := range []string{
		"animalrescuebosnia", "daisyfamilyrescue", "misisrescue",
		"petsinturkey", "rean", "theunderdog", "woofproject",
	} {
		assert.Contains(t, keys, want)
	}
}
