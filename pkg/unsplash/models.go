package unsplash

// Photo represents a photo returned by the Unsplash API
type Photo struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"created_at"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Color          string `json:"color"`
	Likes          int    `json:"likes"`
	Description    string `json:"description"`
	AltDescription string `json:"alt_description"`
	Urls           Urls   `json:"urls"`
	Links          Links  `json:"links"`
	User           User   `json:"user"`
	Tags           []Tag  `json:"tags"`
}

// Urls holds the size variants of a photo
type Urls struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

// Links holds photo-related links
type Links struct {
	Self             string `json:"self"`
	HTML             string `json:"html"`
	Download         string `json:"download"`
	DownloadLocation string `json:"download_location"`
}

// User represents the photographer
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Tag is a label attached to a photo
type Tag struct {
	Title string `json:"title"`
}

// TagTitles returns the titles of the photo's tags
func (p *Photo) TagTitles() []string {
	titles := make([]string, 0, len(p.Tags))
	for _, tag := range p.Tags {
		if tag.Title != "" {
			titles = append(titles, tag.Title)
		}
	}
	return titles
}

// DownloadURL returns the URL used to fetch the photo binary. Regular is
// preferred for predictable sizes, falling back to full then raw.
func (p *Photo) DownloadURL() string {
	switch {
	case p.Urls.Regular != "":
		return p.Urls.Regular
	case p.Urls.Full != "":
		return p.Urls.Full
	default:
		return p.Urls.Raw
	}
}
