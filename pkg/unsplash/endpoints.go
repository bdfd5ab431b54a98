package unsplash

import (
	"fmt"
	"net/url"
)

const (
	// DefaultBaseURL is the production Unsplash API endpoint
	DefaultBaseURL = "https://api.unsplash.com"

	// APIVersion is sent in the Accept-Version header
	APIVersion = "v1"

	// MaxPerPage is the largest page size the API accepts
	MaxPerPage = 30
)

// listPhotosURL builds the URL for the editorial photo feed
func listPhotosURL(baseURL string, page, perPage int) string {
	v := url.Values{}
	v.Set("page", fmt.Sprintf("%d", page))
	v.Set("per_page", fmt.Sprintf("%d", perPage))
	return fmt.Sprintf("%s/photos?%s", baseURL, v.Encode())
}
