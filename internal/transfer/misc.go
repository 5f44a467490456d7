package transfer

type GoogleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type MastodonAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

type MastodonMediaResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type MastodonStatusResponse struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

type DevtoUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type DevtoArticleRequest struct {
	Article DevtoArticle `json:"article"`
}

type DevtoArticle struct {
	Title        string   `json:"title"`
	BodyMarkdown string   `json:"body_markdown"`
	Published    bool     `json:"published"`
	MainImage    string   `json:"main_image,omitempty"`
	Series       string   `json:"series,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

type DevtoArticleResponse struct {
	ID    int64  `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

type DiscordWebhookInfo struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Name  string `json:"name"`
}

type DiscordMessage struct {
	Content  string         `json:"content"`
	Username string         `json:"username,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

type DiscordEmbed struct {
	Image *DiscordEmbedImage `json:"image,omitempty"`
	Video *DiscordEmbedImage `json:"video,omitempty"`
}

type DiscordEmbedImage struct {
	URL string `json:"url"`
}
