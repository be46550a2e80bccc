package standardize

import "strings"

// breedEntry maps a canonical breed to its group.
type breedEntry struct {
	Canonical string
	Group     string
}

// breedAliases maps lowercase source spellings to canonical entries. The
// table covers the breeds the partner sites actually list; anything else
// falls through to title-cased passthrough in the Unknown group.
var breedAliases = map[string]breedEntry{
	"labrador":             {"Labrador Retriever", "Sporting"},
	"labrador retriever":   {"Labrador Retriever", "Sporting"},
	"lab":                  {"Labrador Retriever", "Sporting"},
	"golden retriever":     {"Golden Retriever", "Sporting"},
	"golden":               {"Golden Retriever", "Sporting"},
	"cocker spaniel":       {"Cocker Spaniel", "Sporting"},
	"english setter":       {"English Setter", "Sporting"},
	"pointer":              {"Pointer", "Sporting"},
	"german shepherd":      {"German Shepherd", "Herding"},
	"german shepherd dog":  {"German Shepherd", "Herding"},
	"gsd":                  {"German Shepherd", "Herding"},
	"border collie":        {"Border Collie", "Herding"},
	"collie":               {"Collie", "Herding"},
	"belgian malinois":     {"Belgian Malinois", "Herding"},
	"malinois":             {"Belgian Malinois", "Herding"},
	"australian shepherd":  {"Australian Shepherd", "Herding"},
	"corgi":                {"Pembroke Welsh Corgi", "Herding"},
	"jack russell":         {"Jack Russell Terrier", "Terrier"},
	"jack russell terrier": {"Jack Russell Terrier", "Terrier"},
	"terrier":              {"Terrier", "Terrier"},
	"fox terrier":          {"Fox Terrier", "Terrier"},
	"bull terrier":         {"Bull Terrier", "Terrier"},
	"staffordshire bull terrier": {"Staffordshire Bull Terrier", "Terrier"},
	"staffie":                    {"Staffordshire Bull Terrier", "Terrier"},
	"pit bull":                   {"American Pit Bull Terrier", "Terrier"},
	"pitbull":                    {"American Pit Bull Terrier", "Terrier"},
	"yorkshire terrier":          {"Yorkshire Terrier", "Toy"},
	"yorkie":                     {"Yorkshire Terrier", "Toy"},
	"chihuahua":                  {"Chihuahua", "Toy"},
	"pomeranian":                 {"Pomeranian", "Toy"},
	"maltese":                    {"Maltese", "Toy"},
	"shih tzu":                   {"Shih Tzu", "Toy"},
	"pug":                        {"Pug", "Toy"},
	"poodle":                     {"Poodle", "Non-Sporting"},
	"bichon frise":               {"Bichon Frise", "Non-Sporting"},
	"bichon":                     {"Bichon Frise", "Non-Sporting"},
	"french bulldog":             {"French Bulldog", "Non-Sporting"},
	"bulldog":                    {"Bulldog", "Non-Sporting"},
	"dalmatian":                  {"Dalmatian", "Non-Sporting"},
	"husky":                      {"Siberian Husky", "Working"},
	"siberian husky":             {"Siberian Husky", "Working"},
	"rottweiler":                 {"Rottweiler", "Working"},
	"doberman":                   {"Doberman Pinscher", "Working"},
	"boxer":                      {"Boxer", "Working"},
	"great dane":                 {"Great Dane", "Working"},
	"saint bernard":              {"Saint Bernard", "Working"},
	"st bernard":                 {"Saint Bernard", "Working"},
	"newfoundland":               {"Newfoundland", "Working"},
	"cane corso":                 {"Cane Corso", "Guardian"},
	"kangal":                     {"Kangal", "Guardian"},
	"anatolian shepherd":         {"Anatolian Shepherd", "Guardian"},
	"great pyrenees":             {"Great Pyrenees", "Guardian"},
	"pyrenean mountain dog":      {"Great Pyrenees", "Guardian"},
	"maremma":                    {"Maremma Sheepdog", "Guardian"},
	"sarplaninac":                {"Sarplaninac", "Guardian"},
	"tornjak":                    {"Tornjak", "Guardian"},
	"beagle":                     {"Beagle", "Hound"},
	"dachshund":                  {"Dachshund", "Hound"},
	"greyhound":                  {"Greyhound", "Hound"},
	"galgo":                      {"Galgo Espanol", "Hound"},
	"podenco":                    {"Podenco", "Hound"},
	"basset hound":               {"Basset Hound", "Hound"},
	"segugio":                    {"Segugio Italiano", "Hound"},
	"mixed":                      {"Mixed Breed", "Mixed"},
	"mixed breed":                {"Mixed Breed", "Mixed"},
	"mix":                        {"Mixed Breed", "Mixed"},
	"mischling":                  {"Mixed Breed", "Mixed"},
	"crossbreed":                 {"Mixed Breed", "Mixed"},
	"cross":                      {"Mixed Breed", "Mixed"},
	"unknown":                    {"Unknown", "Unknown"},
	"":                           {"Unknown", "Unknown"},
}

// mixMarkers flag a breed string as a mix of a primary breed and something
// else, e.g. "labrador mix" or "collie cross".
var mixMarkers = []string{" mix", " cross", "-mix", " mixed", "mischling"}

// lookupBreed resolves a raw breed string. Returns the canonical breed, its
// group, the primary breed when the input names a mix, and whether the table
// matched (exact alias hit).
func lookupBreed(raw string) (canonical, group, primary string, matched bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.Join(strings.Fields(key), " ")

	if e, ok := breedAliases[key]; ok {
		return e.Canonical, e.Group, "", true
	}

	// "X mix" forms: standardize the primary breed, group as Mixed.
	for _, marker := range mixMarkers {
		if idx := strings.Index(key, marker); idx > 0 {
			base := strings.TrimSpace(key[:idx])
			if e, ok := breedAliases[base]; ok {
				return e.Canonical + " Mix", "Mixed", e.Canonical, true
			}
			if base != "" {
				return titleCase(base) + " Mix", "Mixed", titleCase(base), false
			}
		}
	}

	// Unmatched non-empty breed: keep it, title-cased, in the Unknown group.
	return titleCase(key), "Unknown", "", false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
