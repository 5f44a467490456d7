package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	devtoAPIURL = "https://dev.to/api"

	devtoTitleMax = 128
)

// DevtoHandler publishes articles with a static API key. The post text is
// the article body; title, tags and series ride in on PostData.
type DevtoHandler struct {
	store  store.Store
	apiURL string
}

func NewDevtoHandler(s store.Store) *DevtoHandler {
	return &DevtoHandler{store: s, apiURL: devtoAPIURL}
}

func (h *DevtoHandler) Platform() string { return models.PlatformDevto }

func (h *DevtoHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, ok := conn.Credentials.(*models.APIKeyCredentials)
	if !ok {
		return nil, errors.New("devto connection does not carry api key credentials")
	}
	if creds.APIKey == "" {
		return nil, errors.New("devto connection is missing an api key")
	}

	article := transfer.DevtoArticle{
		Title:        h.articleTitle(opts),
		BodyMarkdown: opts.Text,
		Published:    true,
		MainImage:    opts.MediaURL,
	}
	if series, ok := opts.PostData["series"].(string); ok {
		article.Series = series
	}
	switch tags := opts.PostData["tags"].(type) {
	case []string:
		article.Tags = tags
	case []any: // JSON-decoded bodies arrive as []any
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				article.Tags = append(article.Tags, s)
			}
		}
	}

	body, err := json.Marshal(transfer.DevtoArticleRequest{Article: article})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+"/articles", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return failure(models.PlatformDevto, err.Error()), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(models.PlatformDevto, err.Error()), nil
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		if isAuthError(models.PlatformDevto, resp.StatusCode, string(respBody)) {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformDevto)
		}
		return failure(models.PlatformDevto, fmt.Sprintf("devto article create returned status %d: %s", resp.StatusCode, respBody)), nil
	}

	var created transfer.DevtoArticleResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return failure(models.PlatformDevto, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformDevto)
	return success(models.PlatformDevto, map[string]string{
		"id":  strconv.FormatInt(created.ID, 10),
		"url": created.URL,
	}), nil
}

func (h *DevtoHandler) articleTitle(opts *models.PostOptions) string {
	if title, ok := opts.PostData["title"].(string); ok && title != "" {
		return truncate(title, devtoTitleMax)
	}
	// Fall back to the first line of the body.
	if line, _, _ := strings.Cut(opts.Text, "\n"); line != "" {
		return truncate(line, devtoTitleMax)
	}
	return "Untitled"
}
