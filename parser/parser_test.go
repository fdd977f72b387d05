package parser

import (
	"testing"

	"marketradar/models"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{name: "simple euro", text: "12,50 €", want: 12.50},
		{name: "symbol first", text: "€ 8,00", want: 8},
		{name: "thousands separator", text: "€ 1.234,99", want: 1234.99},
		{name: "integer", text: "45 €", want: 45},
		{name: "dot decimal", text: "19.99", want: 19.99},
		{name: "with label", text: "Proteção do Comprador incluída 13,20 €", want: 13.20},
		{name: "empty", text: "", want: 0},
		{name: "no digits", text: "grátis", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePrice(tt.text); got != tt.want {
				t.Fatalf("ParsePrice(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseLikes(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{text: "12", want: 12},
		{text: "", want: 0},
		{text: "1 favorito", want: 1},
		{text: "no likes", want: 0},
	}

	for _, tt := range tests {
		if got := ParseLikes(tt.text); got != tt.want {
			t.Errorf("ParseLikes(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestListingIDFromTestID(t *testing.T) {
	tests := []struct {
		testID string
		want   string
	}{
		{testID: "product-item-id-123456--overlay-link", want: "123456"},
		{testID: "product-item-id-987", want: "987"},
		{testID: "123456", want: "123456"},
	}

	for _, tt := range tests {
		if got := ListingIDFromTestID(tt.testID); got != tt.want {
			t.Errorf("ListingIDFromTestID(%q) = %q, want %q", tt.testID, got, tt.want)
		}
	}
}

func TestValidateItem(t *testing.T) {
	valid := func() *models.ScrapedItem {
		return &models.ScrapedItem{
			ListingID:  "123",
			Title:      "Leather jacket",
			Price:      25.50,
			ImageURLs:  []string{"https://img.example/1.jpg"},
			ProductURL: "https://market.example/items/123",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*models.ScrapedItem)
		wantErr bool
	}{
		{name: "valid item", mutate: func(*models.ScrapedItem) {}, wantErr: false},
		{name: "missing listing id", mutate: func(i *models.ScrapedItem) { i.ListingID = " " }, wantErr: true},
		{name: "missing product url", mutate: func(i *models.ScrapedItem) { i.ProductURL = "" }, wantErr: true},
		{name: "no images", mutate: func(i *models.ScrapedItem) { i.ImageURLs = nil }, wantErr: true},
		{name: "blank image", mutate: func(i *models.ScrapedItem) { i.ImageURLs = []string{" "} }, wantErr: true},
		{name: "missing title", mutate: func(i *models.ScrapedItem) { i.Title = "" }, wantErr: true},
		{name: "zero price", mutate: func(i *models.ScrapedItem) { i.Price = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid()
			tt.mutate(item)
			err := ValidateItem(item)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	if err := ValidateItem(nil); err == nil {
		t.Fatalf("nil item should not validate")
	}
}
