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
	"net/url"
	"strings"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	mastodonDefaultBaseURL = "https://mastodon.social"

	mastodonStatusMax = 500
)

// MastodonHandler posts statuses with a personal access token. There is no
// refresh flow; an auth failure marks the connection for reconnection
// immediately.
type MastodonHandler struct {
	store   store.Store
	baseURL string
}

func NewMastodonHandler(s store.Store, baseURL string) *MastodonHandler {
	if baseURL == "" {
		baseURL = mastodonDefaultBaseURL
	}
	return &MastodonHandler{store: s, baseURL: baseURL}
}

func (h *MastodonHandler) Platform() string { return models.PlatformMastodon }

func (h *MastodonHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, ok := conn.Credentials.(*models.TokenCredentials)
	if !ok {
		return nil, errors.New("mastodon connection does not carry token credentials")
	}
	if creds.Token == "" {
		return nil, errors.New("mastodon connection is missing an access token")
	}

	var mediaID string
	if opts.MediaURL != "" {
		id, err := h.uploadMedia(ctx, creds.Token, opts)
		if err != nil {
			// A broken attachment should not block the status itself.
			slog.Warn("mastodon media upload failed, posting text only", slog.String("error", err.Error()))
		} else {
			mediaID = id
		}
	}

	form := url.Values{}
	form.Set("status", truncate(opts.Text, mastodonStatusMax))
	if mediaID != "" {
		form.Add("media_ids[]", mediaID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/v1/statuses", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return failure(models.PlatformMastodon, err.Error()), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(models.PlatformMastodon, err.Error()), nil
	}
	if resp.StatusCode != http.StatusOK {
		if isAuthError(models.PlatformMastodon, resp.StatusCode, string(respBody)) {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformMastodon)
		}
		return failure(models.PlatformMastodon, fmt.Sprintf("mastodon status returned status %d: %s", resp.StatusCode, respBody)), nil
	}

	var status transfer.MastodonStatusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return failure(models.PlatformMastodon, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformMastodon)
	return success(models.PlatformMastodon, map[string]string{"id": status.ID, "url": status.URL}), nil
}

func (h *MastodonHandler) uploadMedia(ctx context.Context, accessToken string, opts *models.PostOptions) (string, error) {
	data, _, err := media.Fetch(ctx, opts.MediaURL)
	if err != nil {
		return "", err
	}
	if _, err := media.Validate(models.PlatformMastodon, data); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "media")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if opts.MediaAltText != "" {
		if err := writer.WriteField("description", opts.MediaAltText); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/v2/media", &buf)
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
	// 202 means the attachment is still processing but usable in a status.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("mastodon media upload returned status %d: %s", resp.StatusCode, respBody)
	}

	var uploaded transfer.MastodonMediaResponse
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return "", err
	}
	if uploaded.ID == "" {
		return "", errors.New("mastodon media upload returned no id")
	}
	return uploaded.ID, nil
}
