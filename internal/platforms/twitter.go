package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	twitterAPIURL    = "https://api.twitter.com/2"
	twitterUploadURL = "https://upload.twitter.com/1.1"

	tweetMaxLength = 280
)

// TwitterHandler posts tweets via the v2 API with v1.1 multipart media
// upload. Media failures are non-fatal: the tweet goes out text-only with a
// logged warning.
type TwitterHandler struct {
	store     store.Store
	refresher TokenRefresher
	apiURL    string
	uploadURL string
}

func NewTwitterHandler(s store.Store, refresher TokenRefresher) *TwitterHandler {
	return &TwitterHandler{
		store:     s,
		refresher: refresher,
		apiURL:    twitterAPIURL,
		uploadURL: twitterUploadURL,
	}
}

func (h *TwitterHandler) Platform() string { return models.PlatformTwitter }

func (h *TwitterHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, errors.New("twitter connection is missing an access token")
	}

	if needsProactiveRefresh(creds) {
		refreshed, err := h.refresher.RefreshToken(ctx, conn)
		if err != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformTwitter)
			return failure(models.PlatformTwitter, fmt.Sprintf("token refresh failed: %v", err)), nil
		}
		conn = refreshed
		creds, _ = conn.OAuth()
	}

	var mediaIDs []string
	if opts.MediaURL != "" {
		mediaID, err := h.uploadMedia(ctx, creds.AccessToken, opts.MediaURL)
		if err != nil {
			slog.Warn("twitter media upload failed, posting text only", "error", err.Error())
		} else {
			mediaIDs = append(mediaIDs, mediaID)
		}
	}

	result, retry, err := h.postTweet(ctx, creds.AccessToken, opts.Text, mediaIDs)
	if retry {
		// one reactive refresh-and-retry on a classified auth error
		refreshed, refreshErr := h.refresher.RefreshToken(ctx, conn)
		if refreshErr != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformTwitter)
			return failure(models.PlatformTwitter, fmt.Sprintf("authentication failed and refresh did not recover: %v", refreshErr)), nil
		}
		refreshedCreds, _ := refreshed.OAuth()
		result, retry, err = h.postTweet(ctx, refreshedCreds.AccessToken, opts.Text, mediaIDs)
		if retry {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformTwitter)
		}
	}
	if err != nil {
		return failure(models.PlatformTwitter, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformTwitter)
	return success(models.PlatformTwitter, map[string]string{"id": result.Data.ID}), nil
}

// postTweet returns retry=true when the failure is a classified auth error
// that a refresh might recover.
func (h *TwitterHandler) postTweet(ctx context.Context, accessToken, text string, mediaIDs []string) (*transfer.TwitterTweetResponse, bool, error) {
	payload := transfer.TwitterTweetRequest{Text: truncate(text, tweetMaxLength)}
	if len(mediaIDs) > 0 {
		payload.Media = &transfer.TwitterTweetMedia{MediaIDs: mediaIDs}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		authFailed := isAuthError(models.PlatformTwitter, resp.StatusCode, string(respBody))
		return nil, authFailed, fmt.Errorf("twitter returned status %d: %s", resp.StatusCode, respBody)
	}

	var result transfer.TwitterTweetResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, false, err
	}
	if result.Data.ID == "" {
		return nil, false, errors.New("twitter response carried no tweet id")
	}
	return &result, false, nil
}

func (h *TwitterHandler) uploadMedia(ctx context.Context, accessToken, mediaURL string) (string, error) {
	data, _, err := media.Fetch(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	if _, err := media.Validate(models.PlatformTwitter, data); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.uploadURL+"/media/upload.json", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("twitter media upload returned status %d: %s", resp.StatusCode, respBody)
	}

	var upload transfer.TwitterMediaUpload
	if err := json.Unmarshal(respBody, &upload); err != nil {
		return "", err
	}
	if upload.MediaIDString == "" {
		return "", errors.New("twitter media upload returned no media id")
	}
	return upload.MediaIDString, nil
}
