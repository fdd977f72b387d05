package scrape

import (
	"net/url"
	"strconv"

	"marketradar/models"
)

// conditionStatusIDs maps profile condition names to the marketplace's
// numeric status ids.
var conditionStatusIDs = map[string]string{
	"new_with_tags":    "6",
	"new_without_tags": "1",
	"very_good":        "2",
	"good":             "3",
	"satisfactory":     "4",
}

// BuildSearchURL renders the catalog search URL for a profile and page.
// Parameter order follows url.Values encoding, which is stable, so the same
// profile and page always produce the same URL.
func BuildSearchURL(baseURL string, profile *models.SearchProfile, page int) string {
	params := url.Values{}

	if profile.Keywords != "" {
		params.Set("search_text", profile.Keywords)
	}
	if statusID, ok := conditionStatusIDs[profile.Condition]; ok {
		params.Set("status_ids[]", statusID)
	}
	if profile.Order != "" {
		params.Set("order", profile.Order)
	} else {
		params.Set("order", "newest_first")
	}
	if profile.MinPrice != nil {
		params.Set("price_from", strconv.FormatFloat(*profile.MinPrice, 'f', -1, 64))
	}
	if profile.MaxPrice != nil {
		params.Set("price_to", strconv.FormatFloat(*profile.MaxPrice, 'f', -1, 64))
	}
	if profile.BrandID != nil {
		params.Set("brand_ids[]", strconv.FormatInt(*profile.BrandID, 10))
	}
	params.Set("page", strconv.Itoa(page))

	return baseURL + "?" + params.Encode()
}
