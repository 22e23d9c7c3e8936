package serpapi

import "strings"

// knownZIPs maps common US ZIP codes to the city-level names the search
// endpoint accepts
var knownZIPs = map[string]string{
	"85001": "Phoenix, Arizona, United States",
	"10001": "New York, New York, United States",
	"90210": "Beverly Hills, California, United States",
	"60601": "Chicago, Illinois, United States",
	"75201": "Dallas, Texas, United States",
	"33101": "Miami, Florida, United States",
}

// NormalizeLocation returns a location string the search endpoint accepts.
// Bare ZIP codes are rejected upstream, so known ones become their city and
// unknown ones fall back to the whole country.
func NormalizeLocation(location, country string) string {
	loc := strings.TrimSpace(location)
	if loc == "" {
		if country == "" || strings.EqualFold(country, "us") {
			return "United States"
		}
		return loc
	}

	if isDigits(loc) && (len(loc) == 5 || len(loc) == 9) {
		if place, ok := knownZIPs[loc]; ok {
			return place
		}
		return "United States"
	}
	return loc
}

// RegionCode converts a region to the numeric code the transparency center
// expects. US and empty map to 2840; numeric codes pass through.
func RegionCode(region string) string {
	r := strings.ToUpper(strings.TrimSpace(region))
	if r == "" || r == "US" {
		return "2840"
	}
	return r
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
