package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Scraper defines the interface for fetching rendered pages.
type Scraper interface {
	// FetchHTML loads url in a browser and returns the rendered document.
	FetchHTML(ctx context.Context, url string) (string, error)
}

// EntryURL is the permalink of a single entry on the forum at base.
func EntryURL(base, entryID string) string {
	return strings.TrimSuffix(base, "/") + "/entry/" + url.PathEscape(entryID)
}

// FavoritesURL is one page of a user's favorites listing.
func FavoritesURL(base, nick string, page int) string {
	q := url.Values{}
	q.Set("nick", nick)
	q.Set("p", fmt.Sprint(page))
	return strings.TrimSuffix(base, "/") + "/favori-entryleri?" + q.Encode()
}
