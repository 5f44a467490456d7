package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	linkedinAPIURL = "https://api.linkedin.com/v2"

	linkedinCommentaryMax = 3000
)

// LinkedInHandler publishes UGC posts. Media goes through the two-step
// registerUpload → PUT flow; a media failure aborts the whole attempt.
type LinkedInHandler struct {
	store     store.Store
	refresher TokenRefresher
	apiURL    string
}

func NewLinkedInHandler(s store.Store, refresher TokenRefresher) *LinkedInHandler {
	return &LinkedInHandler{store: s, refresher: refresher, apiURL: linkedinAPIURL}
}

func (h *LinkedInHandler) Platform() string { return models.PlatformLinkedIn }

func (h *LinkedInHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" || creds.AccountID == "" {
		return nil, errors.New("linkedin connection is missing access token or member id")
	}

	if needsProactiveRefresh(creds) {
		refreshed, err := h.refresher.RefreshToken(ctx, conn)
		if err != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformLinkedIn)
			return failure(models.PlatformLinkedIn, fmt.Sprintf("token refresh failed: %v", err)), nil
		}
		conn = refreshed
		creds, _ = conn.OAuth()
	}

	author := "urn:li:person:" + creds.AccountID

	var shareMedia []transfer.LinkedInShareMedia
	mediaCategory := "NONE"
	if opts.MediaURL != "" {
		asset, category, err := h.uploadMedia(ctx, creds.AccessToken, author, opts)
		if err != nil {
			// media is integral to the share; abort rather than degrade
			return failure(models.PlatformLinkedIn, fmt.Sprintf("media upload failed: %v", err)), nil
		}
		mediaCategory = category
		entry := transfer.LinkedInShareMedia{Status: "READY", Media: asset}
		if opts.MediaAltText != "" {
			entry.Description = &transfer.LinkedInText{Text: opts.MediaAltText}
		}
		shareMedia = append(shareMedia, entry)
	}

	postID, retry, err := h.createShare(ctx, creds.AccessToken, author, opts.Text, mediaCategory, shareMedia)
	if retry {
		refreshed, refreshErr := h.refresher.RefreshToken(ctx, conn)
		if refreshErr != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformLinkedIn)
			return failure(models.PlatformLinkedIn, fmt.Sprintf("authentication failed and refresh did not recover: %v", refreshErr)), nil
		}
		refreshedCreds, _ := refreshed.OAuth()
		postID, retry, err = h.createShare(ctx, refreshedCreds.AccessToken, author, opts.Text, mediaCategory, shareMedia)
		if retry {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformLinkedIn)
		}
	}
	if err != nil {
		return failure(models.PlatformLinkedIn, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformLinkedIn)
	return success(models.PlatformLinkedIn, map[string]string{"id": postID}), nil
}

// uploadMedia registers the upload intent, fetches the source bytes and PUTs
// them to the one-time upload URL. Returns the asset URN and share category.
func (h *LinkedInHandler) uploadMedia(ctx context.Context, accessToken, owner string, opts *models.PostOptions) (string, string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	category := "IMAGE"
	if media.IsVideoURL(opts.MediaURL) {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
		category = "VIDEO"
	}

	register := transfer.LinkedInRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedInRegisterUpload{
			Recipes: []string{recipe},
			Owner:   owner,
			ServiceRelationships: []transfer.LinkedInServiceRelationship{{
				RelationshipType: "OWNER",
				Identifier:       "urn:li:userGeneratedContent",
			}},
		},
	}
	body, err := json.Marshal(register)
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+"/assets?action=registerUpload", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("register upload returned status %d: %s", resp.StatusCode, respBody)
	}

	var registered transfer.LinkedInRegisterUploadResponse
	if err := json.Unmarshal(respBody, &registered); err != nil {
		return "", "", err
	}
	uploadURL := registered.Value.UploadMechanism.MediaUploadHTTPRequest.UploadURL
	asset := registered.Value.Asset
	if uploadURL == "" || asset == "" {
		return "", "", errors.New("register upload response missing asset or upload url")
	}

	data, contentType, err := media.Fetch(ctx, opts.MediaURL)
	if err != nil {
		return "", "", err
	}
	sniffed, err := media.Validate(models.PlatformLinkedIn, data)
	if err != nil {
		return "", "", err
	}
	if sniffed != "" {
		contentType = sniffed
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	putReq.Header.Set("Authorization", "Bearer "+accessToken)
	putReq.Header.Set("Content-Type", contentType)

	putResp, err := http.DefaultClient.Do(putReq)
	if err != nil {
		return "", "", err
	}
	defer putResp.Body.Close()

	if putResp.StatusCode >= 300 {
		putBody, _ := io.ReadAll(putResp.Body)
		return "", "", fmt.Errorf("media upload returned status %d: %s", putResp.StatusCode, putBody)
	}

	return asset, category, nil
}

func (h *LinkedInHandler) createShare(ctx context.Context, accessToken, author, text, mediaCategory string, shareMedia []transfer.LinkedInShareMedia) (string, bool, error) {
	share := transfer.LinkedInShareRequest{
		Author:         author,
		LifecycleState: "PUBLISHED",
		SpecificContent: transfer.LinkedInSpecificContent{
			ShareContent: transfer.LinkedInShareContent{
				ShareCommentary:    transfer.LinkedInText{Text: truncate(text, linkedinCommentaryMax)},
				ShareMediaCategory: mediaCategory,
				Media:              shareMedia,
			},
		},
		Visibility: map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	body, err := json.Marshal(share)
	if err != nil {
		return "", false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		authFailed := isAuthError(models.PlatformLinkedIn, resp.StatusCode, string(respBody))
		return "", authFailed, fmt.Errorf("linkedin returned status %d: %s", resp.StatusCode, respBody)
	}

	var created transfer.LinkedInShareResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", false, err
	}
	postID := created.ID
	if postID == "" {
		postID = resp.Header.Get("X-RestLi-Id")
	}
	if postID == "" {
		return "", false, errors.New("linkedin response carried no post id")
	}
	return postID, false, nil
}
