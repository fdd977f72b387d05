package parser

import (
	"fmt"
	"strconv"
	"strings"

	"marketradar/models"
)

// ValidateItem ensures the extractor captured every required field. Items
// failing validation are dropped by the caller, never surfaced as errors.
func ValidateItem(item *models.ScrapedItem) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if strings.TrimSpace(item.ListingID) == "" {
		return fmt.Errorf("item missing listing id")
	}
	if strings.TrimSpace(item.ProductURL) == "" {
		return fmt.Errorf("item missing product url for %s", item.ListingID)
	}
	if len(item.ImageURLs) == 0 || strings.TrimSpace(item.ImageURLs[0]) == "" {
		return fmt.Errorf("item missing image url for %s", item.ListingID)
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("item missing title for %s", item.ListingID)
	}
	if item.Price <= 0 {
		return fmt.Errorf("item missing price for %s", item.ListingID)
	}
	return nil
}

// ParsePrice converts a display price like "12,50 €" or "€ 1.234,99" to a
// float. Returns 0 when no numeric content is present.
func ParsePrice(text string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, text)
	if cleaned == "" {
		return 0
	}

	// European display prices use ',' as the decimal separator and '.' for
	// thousands. Drop the thousands marks, then normalize the comma.
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}

// ParseLikes converts a favourite counter label to an int, tolerating empty
// and non-numeric captions.
func ParseLikes(text string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0
	}
	value, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return value
}

// ListingIDFromTestID strips the marketplace wrapper from a product test id,
// e.g. "product-item-id-123456--overlay-link" -> "123456".
func ListingIDFromTestID(testID string) string {
	id := strings.TrimPrefix(testID, "product-item-id-")
	id = strings.TrimSuffix(id, "--overlay-link")
	return strings.TrimSpace(id)
}
