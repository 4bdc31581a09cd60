package models

type Gif struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Cost  float64 `json:"cost"`
}

var gifCatalog = []Gif{
	{ID: "1", Title: "Happy Dance", URL: "https://media.giphy.com/media/3oriO0OEd9QIDdllqo/giphy.gif", Cost: 0.001},
	{ID: "2", Title: "Thumbs Up", URL: "https://media.giphy.com/media/l4FGuhL4U2WyjdkaY/giphy.gif", Cost: 0.001},
	{ID: "3", Title: "High Five", URL: "https://media.giphy.com/media/26BRrSvJUa0crqw4E/giphy.gif", Cost: 0.001},
	{ID: "4", Title: "Clap", URL: "https://media.giphy.com/media/l0MYryZTmQgvHI5TG/giphy.gif", Cost: 0.001},
	{ID: "5", Title: "Love", URL: "https://media.giphy.com/media/3o7abKhOpu0NwenH3O/giphy.gif", Cost: 0.002},
	{ID: "6", Title: "Surprise", URL: "https://media.giphy.com/media/l0MYGb8173drMQx5S/giphy.gif", Cost: 0.002},
	{ID: "7", Title: "Celebration", URL: "https://media.giphy.com/media/3orieUe6ejxSFxYCXe/giphy.gif", Cost: 0.003},
	{ID: "8", Title: "Gold Star", URL: "https://media.giphy.com/media/l0MYP6WAFfaR7Q1jO/giphy.gif", Cost: 0.005},
}

// GifCatalog returns a copy of the purchasable GIFs.
func GifCatalog() []Gif {
	out := make([]Gif, len(gifCatalog))
	copy(out, gifCatalog)
	return out
}

func FindGif(id string) (Gif, bool) {
	for _, g := range gifCatalog {
		if g.ID == id {
			return g, true
		}
	}
	return Gif{}, false
}
