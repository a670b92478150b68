package chathub

import (
	"fmt"
	"slices"
	"strings"

	"github.com/armon/go-radix"
)

// Style selects the conversation tone and its option set.
type Style string

const (
	StyleCreative Style = "creative"
	StyleBalanced Style = "balanced"
	StylePrecise  Style = "precise"
)

// ParseStyle accepts a style name in any case.
func ParseStyle(s string) (Style, error) {
	switch st := Style(strings.ToLower(strings.TrimSpace(s))); st {
	case StyleCreative, StyleBalanced, StylePrecise:
		return st, nil
	default:
		return "", fmt.Errorf("unknown conversation style %q", s)
	}
}

// Tone is the capitalized form the service expects.
func (s Style) Tone() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

var baseOptionSets = []string{
	"nlu_direct_response_filter",
	"deepleo",
	"disable_emoji_spoken_text",
	"responsible_ai_policy_235",
	"enablemm",
	"iycapbing",
	"iyxapbing",
	"dv3sugg",
	"iyoloxap",
	"iyoloneutral",
	"gencontentv3",
	"nojbfedge",
}

var styleFlags = map[Style]string{
	StyleCreative: "h3imaginative",
	StyleBalanced: "galileo",
	StylePrecise:  "h3precise",
}

// OptionSets returns a fresh copy of the option-set list for the style.
// Unknown styles fall back to creative.
func (s Style) OptionSets() []string {
	flag, ok := styleFlags[s]
	if !ok {
		flag = styleFlags[StyleCreative]
	}
	return append(slices.Clone(baseOptionSets), flag)
}

var sliceIDs = []string{
	"winmuid1tf",
	"newmma-prod",
	"imgchatgptv2",
	"tts2",
	"voicelang2",
	"anssupfotest",
	"emptyoson",
	"tempcacheread",
	"temptacache",
	"ctrlworkpay",
	"winlongmsg2tf",
	"628fabocs0",
	"531rai268s0",
	"602refusal",
	"621alllocs0",
	"621docxfmtho",
	"621preclsvn",
	"330uaug",
	"529rweas0",
	"0626snptrcs0",
	"619dagslnv1nr",
}

// SliceIDs returns a copy of the experiment slice list sent with each request.
func SliceIDs() []string { return slices.Clone(sliceIDs) }

var allowedMessageTypes = []string{
	"ActionRequest",
	"Chat",
	"Context",
	"InternalSearchQuery",
	"InternalSearchResult",
	"Disengaged",
	"InternalLoaderMessage",
	"Progress",
	"RenderCardRequest",
	"AdsQuery",
	"SemanticSerp",
	"GenerateContentQuery",
	"SearchQuery",
}

// AllowedMessageTypes returns a copy of the message types the client accepts.
func AllowedMessageTypes() []string { return slices.Clone(allowedMessageTypes) }

// LocationHint is a fixed geo profile biasing response language and region.
type LocationHint struct {
	Country           string      `json:"country"`
	State             string      `json:"state"`
	City              string      `json:"city"`
	TimezoneOffset    int         `json:"timezoneoffset"`
	CountryConfidence int         `json:"countryConfidence"`
	Center            Coordinates `json:"Center"`
	RegionType        int         `json:"RegionType"`
	SourceType        int         `json:"SourceType"`
}

type Coordinates struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

func geoProfile(country, state, city string, tz int, lat, lng float64) LocationHint {
	return LocationHint{
		Country:           country,
		State:             state,
		City:              city,
		TimezoneOffset:    tz,
		CountryConfidence: 8,
		Center:            Coordinates{Latitude: lat, Longitude: lng},
		RegionType:        2,
		SourceType:        1,
	}
}

var (
	usaProfile   = geoProfile("United States", "California", "Los Angeles", 8, 34.0536909, -118.242766)
	chinaProfile = geoProfile("China", "", "Beijing", 8, 39.9042, 116.4074)
	euProfile    = geoProfile("Norway", "", "Oslo", 1, 59.9139, 10.7522)
	ukProfile    = geoProfile("United Kingdom", "", "London", 0, 51.5074, -0.1278)
)

// locationProfiles is keyed by lower-cased locale prefix.
var locationProfiles = func() *radix.Tree {
	t := radix.New()
	t.Insert("en-us", usaProfile)
	t.Insert("zh-cn", chinaProfile)
	t.Insert("en-ie", euProfile)
	t.Insert("en-gb", ukProfile)
	return t
}()

// LocationHints picks the geo profile for a locale, defaulting to the US one.
func LocationHints(locale string) []LocationHint {
	if _, v, ok := locationProfiles.LongestPrefix(strings.ToLower(locale)); ok {
		return []LocationHint{v.(LocationHint)}
	}
	return []LocationHint{usaProfile}
}

// Region derives the two-letter region from a locale such as "en-US".
func Region(locale string) string {
	if len(locale) < 2 {
		return strings.ToUpper(locale)
	}
	return strings.ToUpper(locale[len(locale)-2:])
}
