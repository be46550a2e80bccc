package orgconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/types"
)

const validYAML = `
config_id: pets-in-turkey
name: Pets in Turkey
active: true
metadata:
  website_url: https://petsinturkey.org
  country: TR
scraper:
  adapter: pets-in-turkey
  rate_limit_delay: 2.5
  batch_size: 25
  skip_existing_animals: true
  check_adoption_status: true
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "pets-in-turkey", cfg.ConfigID)
	assert.True(t, cfg.Active)
	assert.Equal(t, "pets-in-turkey", cfg.AdapterKey())
	assert.Equal(t, 2500*time.Millisecond, cfg.Delay())
	assert.Equal(t, 25, cfg.Scraper.BatchSize)
	assert.True(t, cfg.Scraper.SkipExistingAnimals)

	// Unset fields pick up the documented defaults.
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 3, cfg.Scraper.AdoptionCheckThreshold)
	assert.Equal(t, 50, cfg.Scraper.AdoptionCheckConfig.MaxChecksPerRun)
	assert.Equal(t, 24, cfg.Scraper.AdoptionCheckConfig.CheckIntervalHours)
}

func TestAdapterKeyDefaultsToConfigID(t *testing.T) {
	cfg, err := Parse([]byte(`
config_id: tierheim-berlin
name: Tierheim Berlin
active: true
metadata:
  website_url: https://tierschutz-berlin.de
`), "test.yaml")
	require.NoError(t, err)
	assert.Equal(t, "tierheim-berlin", cfg.AdapterKey())
}

func TestParseRejectsMissingRequired(t *testing.T) {
	cases := map[string]string{
		"missing config_id": `
name: X
metadata:
  website_url: https://x.org
`,
		"missing name": `
config_id: x
metadata:
  website_url: https://x.org
`,
		"missing website_url": `
config_id: x
name: X
metadata:
  country: DE
`,
		"bad website_url": `
config_id: x
name: X
metadata:
  website_url: not-a-url
`,
		"bad slug": `
config_id: Pets_In_Turkey
name: X
metadata:
  website_url: https://x.org
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), "test.yaml")
			require.Error(t, err)
			var se *types.SetupError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
config_id: x
name: X
metadata:
  website_url: https://x.org
scrapper:
  batch_size: 10
`), "test.yaml")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, configID string, active bool) {
		doc := "config_id: " + configID + "\nname: " + configID + "\nactive: " +
			map[bool]string{true: "true", false: "false"}[active] +
			"\nmetadata:\n  website_url: https://" + configID + ".org\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	write("b.yaml", "bravo", true)
	write("a.yml", "alpha", false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	configs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "alpha", configs[0].ConfigID)
	assert.Equal(t, "bravo", configs[1].ConfigID)

	enabled := Enabled(configs)
	require.Len(t, enabled, 1)
	assert.Equal(t, "bravo", enabled[0].ConfigID)
}

func TestLoadDirRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	doc := []byte("config_id: dup\nname: Dup\nmetadata:\n  website_url: https://dup.org\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.yaml"), doc, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.yaml"), doc, 0o644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate config_id")
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
