package extractor

import (
	"regexp"
	"strings"

	"github.com/road-engineering/dem-elevation/internal/index"
)

// Campaign grouping keys mined from object paths. AU keys combine the
// UTM zone directory with a campaign name segment; NZ keys combine the
// survey segment with the product segment.

// GroupKey routes a tile to its Collection -> Campaign bucket.
type GroupKey struct {
	Country    string
	CampaignID string
	Name       string
	DataType   index.DataType
	UTMZone    int
	SurveyName string
	Year       int
}

var (
	zoneDirPattern = regexp.MustCompile(`(?:^|/)z(\d{2})(?:/|$)`)
	yearPattern    = regexp.MustCompile(`(19|20)\d{2}`)
)

// Structural path segments that can never be campaign names.
var structuralSegments = map[string]bool{
	"":          true,
	"elevation": true, "1m-dem": true, "2m-dem": true,
	"dem": true, "dsm": true, "au": true, "nz": true,
	"act-elvis": true, "qld-elvis": true, "nsw-elvis": true,
	"vic-elvis": true, "wa-elvis": true, "sa-elvis": true,
	"tas-elvis": true, "nt-elvis": true,
}

// GroupTile derives the grouping key for an object key. NZ keys are
// recognized by their dem_1m/dsm_1m product segment; everything else is
// treated as the AU corpus.
func GroupTile(key string) GroupKey {
	parts := strings.Split(strings.Trim(key, "/"), "/")

	if gk, ok := groupNZ(parts); ok {
		return gk
	}
	return groupAU(key, parts)
}

// groupNZ handles <region>/<survey>/<dem_1m|dsm_1m>/<epsg>/<file> keys.
func groupNZ(parts []string) (GroupKey, bool) {
	if len(parts) < 4 {
		return GroupKey{}, false
	}
	product := parts[2]
	if product != "dem_1m" && product != "dsm_1m" {
		return GroupKey{}, false
	}
	survey := parts[1]
	dt := index.DataTypeDEM
	if product == "dsm_1m" {
		dt = index.DataTypeDSM
	}
	return GroupKey{
		Country:    "NZ",
		CampaignID: survey + "_" + strings.TrimSuffix(product, "_1m"),
		Name:       survey,
		DataType:   dt,
		SurveyName: survey,
		Year:       yearFrom(survey),
	}, true
}

// groupAU mines the UTM zone directory and a year-bearing campaign
// segment from the path.
func groupAU(key string, parts []string) GroupKey {
	zone := 0
	if m := zoneDirPattern.FindStringSubmatch(key); m != nil {
		zone = atoi(m[1])
	}

	name := ""
	for _, part := range parts[:len(parts)-1] {
		lower := strings.ToLower(part)
		if structuralSegments[lower] {
			continue
		}
		if zoneDirPattern.MatchString("/" + lower + "/") {
			continue
		}
		if len(part) > 3 && yearPattern.MatchString(part) {
			name = part
			break
		}
	}
	if name == "" {
		// Last resort: lead token of the filename.
		filename := parts[len(parts)-1]
		if i := strings.IndexByte(filename, '_'); i > 3 {
			name = filename[:i]
		} else {
			name = "unknown"
		}
	}

	id := name
	if zone != 0 {
		id = name + "_z" + itoa(zone)
	}
	return GroupKey{
		Country:    "AU",
		CampaignID: id,
		Name:       name,
		DataType:   index.DataTypeDEM,
		UTMZone:    zone,
		Year:       yearFrom(name),
	}
}

func yearFrom(s string) int {
	if m := yearPattern.FindString(s); m != "" {
		return atoi(m)
	}
	return 0
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
