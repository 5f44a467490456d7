package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	instagramGraphURL = "https://graph.instagram.com/v21.0"

	instagramCaptionMax = 2200

	// Graph API processes media containers asynchronously. Publishing too
	// early returns a "media not ready" error, so we wait before publish.
	instagramContainerWait = 30 * time.Second
)

// InstagramHandler publishes through the container protocol: create a media
// container from a public URL, wait for processing, then publish the
// container id.
type InstagramHandler struct {
	store     store.Store
	refresher TokenRefresher
	graphURL  string
	wait      time.Duration
}

func NewInstagramHandler(s store.Store, refresher TokenRefresher) *InstagramHandler {
	return &InstagramHandler{store: s, refresher: refresher, graphURL: instagramGraphURL, wait: instagramContainerWait}
}

func (h *InstagramHandler) Platform() string { return models.PlatformInstagram }

func (h *InstagramHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, errors.New("instagram connection is missing an access token")
	}
	if creds.AccountID == "" {
		return nil, errors.New("instagram connection is missing an account id")
	}
	if opts.MediaURL == "" {
		return failure(models.PlatformInstagram, "instagram posts require a media url"), nil
	}

	if needsProactiveRefresh(creds) {
		refreshed, err := h.refresher.RefreshToken(ctx, conn)
		if err != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformInstagram)
			return failure(models.PlatformInstagram, fmt.Sprintf("token refresh failed: %v", err)), nil
		}
		conn = refreshed
		creds, _ = conn.OAuth()
	}

	mediaID, retry, err := h.publishContainer(ctx, creds, opts)
	if retry {
		refreshed, refreshErr := h.refresher.RefreshToken(ctx, conn)
		if refreshErr != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformInstagram)
			return failure(models.PlatformInstagram, fmt.Sprintf("authentication failed and refresh did not recover: %v", refreshErr)), nil
		}
		refreshedCreds, _ := refreshed.OAuth()
		mediaID, retry, err = h.publishContainer(ctx, refreshedCreds, opts)
		if retry {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformInstagram)
		}
	}
	if err != nil {
		return failure(models.PlatformInstagram, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformInstagram)
	return success(models.PlatformInstagram, map[string]string{"id": mediaID}), nil
}

func (h *InstagramHandler) publishContainer(ctx context.Context, creds *models.OAuthCredentials, opts *models.PostOptions) (string, bool, error) {
	containerID, retry, err := h.createContainer(ctx, creds, opts)
	if err != nil {
		return "", retry, err
	}

	select {
	case <-time.After(h.wait):
	case <-ctx.Done():
		return "", false, ctx.Err()
	}

	return h.publish(ctx, creds, containerID)
}

func (h *InstagramHandler) createContainer(ctx context.Context, creds *models.OAuthCredentials, opts *models.PostOptions) (string, bool, error) {
	form := url.Values{}
	form.Set("access_token", creds.AccessToken)
	form.Set("caption", truncate(opts.Text, instagramCaptionMax))
	if media.IsVideoURL(opts.MediaURL) {
		form.Set("media_type", "REELS")
		form.Set("video_url", opts.MediaURL)
	} else {
		form.Set("image_url", opts.MediaURL)
	}

	endpoint := fmt.Sprintf("%s/%s/media", h.graphURL, creds.AccountID)
	return h.postForm(ctx, endpoint, form)
}

func (h *InstagramHandler) publish(ctx context.Context, creds *models.OAuthCredentials, containerID string) (string, bool, error) {
	form := url.Values{}
	form.Set("access_token", creds.AccessToken)
	form.Set("creation_id", containerID)

	endpoint := fmt.Sprintf("%s/%s/media_publish", h.graphURL, creds.AccountID)
	return h.postForm(ctx, endpoint, form)
}

func (h *InstagramHandler) postForm(ctx context.Context, endpoint string, form url.Values) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}
	if resp.StatusCode != http.StatusOK {
		authFailed := isAuthError(models.PlatformInstagram, resp.StatusCode, string(body))
		var errResp transfer.InstagramErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return "", authFailed, fmt.Errorf("instagram request failed: %s", errResp.Error.Message)
		}
		return "", authFailed, fmt.Errorf("instagram request returned status %d: %s", resp.StatusCode, body)
	}

	var container transfer.InstagramContainerResponse
	if err := json.Unmarshal(body, &container); err != nil {
		return "", false, err
	}
	if container.ID == "" {
		return "", false, errors.New("instagram response is missing a container id")
	}
	return container.ID, false, nil
}
