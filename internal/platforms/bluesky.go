package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
	"github.com/maheshrc27/postbridge/pkg/utils"
)

const (
	blueskyDefaultService = "https://bsky.social"
	blueskyVideoService   = "https://video.bsky.app"

	blueskyTextMax = 300

	// Video processing jobs usually finish within a minute. The poll is
	// bounded so a stuck job cannot hold a worker forever.
	blueskyJobPollInterval = 3 * time.Second
	blueskyJobPollTimeout  = 5 * time.Minute
)

// BlueskyHandler posts to the AT Protocol. Images attach as uploaded blobs;
// videos go through the separate video service with a scoped service-auth
// token and an async processing job.
type BlueskyHandler struct {
	store        store.Store
	refresher    TokenRefresher
	service      string
	videoService string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewBlueskyHandler(s store.Store, refresher TokenRefresher, service string) *BlueskyHandler {
	if service == "" {
		service = blueskyDefaultService
	}
	return &BlueskyHandler{
		store:        s,
		refresher:    refresher,
		service:      service,
		videoService: blueskyVideoService,
		pollInterval: blueskyJobPollInterval,
		pollTimeout:  blueskyJobPollTimeout,
	}
}

func (h *BlueskyHandler) Platform() string { return models.PlatformBluesky }

func (h *BlueskyHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, err := conn.Session()
	if err != nil {
		return nil, err
	}
	if creds.AccessJwt == "" || creds.DID == "" {
		return nil, errors.New("bluesky connection is missing session credentials")
	}

	if h.sessionNeedsRefresh(creds.AccessJwt) {
		refreshed, err := h.refresher.RefreshToken(ctx, conn)
		if err != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformBluesky)
			return failure(models.PlatformBluesky, fmt.Sprintf("session refresh failed: %v", err)), nil
		}
		conn = refreshed
		creds, _ = conn.Session()
	}

	result, retry, err := h.createPost(ctx, creds, opts)
	if retry {
		refreshed, refreshErr := h.refresher.RefreshToken(ctx, conn)
		if refreshErr != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformBluesky)
			return failure(models.PlatformBluesky, fmt.Sprintf("authentication failed and refresh did not recover: %v", refreshErr)), nil
		}
		refreshedCreds, _ := refreshed.Session()
		result, retry, err = h.createPost(ctx, refreshedCreds, opts)
		if retry {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformBluesky)
		}
	}
	if err != nil {
		return failure(models.PlatformBluesky, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformBluesky)
	return success(models.PlatformBluesky, result), nil
}

// sessionNeedsRefresh inspects the access JWT's own expiry claim. An
// unparseable token is treated as expired.
func (h *BlueskyHandler) sessionNeedsRefresh(accessJwt string) bool {
	expiry, err := utils.JWTExpiry(accessJwt)
	if err != nil {
		return true
	}
	return time.Until(expiry) < refreshBuffer
}

func (h *BlueskyHandler) createPost(ctx context.Context, creds *models.SessionCredentials, opts *models.PostOptions) (map[string]string, bool, error) {
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      truncate(opts.Text, blueskyTextMax),
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}

	if opts.MediaURL != "" {
		embed, err := h.buildEmbed(ctx, creds, opts)
		if err != nil {
			return nil, false, fmt.Errorf("media upload failed: %w", err)
		}
		record["embed"] = embed
	}

	payload := transfer.BlueskyCreateRecordRequest{
		Repo:       creds.DID,
		Collection: "app.bsky.feed.post",
		Record:     record,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.service+"/xrpc/com.atproto.repo.createRecord", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessJwt)
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
	if resp.StatusCode != http.StatusOK {
		authFailed := isAuthError(models.PlatformBluesky, resp.StatusCode, string(respBody))
		return nil, authFailed, fmt.Errorf("bluesky createRecord returned status %d: %s", resp.StatusCode, respBody)
	}

	var created transfer.BlueskyCreateRecordResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, false, err
	}
	return map[string]string{"uri": created.URI, "cid": created.CID}, false, nil
}

func (h *BlueskyHandler) buildEmbed(ctx context.Context, creds *models.SessionCredentials, opts *models.PostOptions) (map[string]any, error) {
	data, contentType, err := media.Fetch(ctx, opts.MediaURL)
	if err != nil {
		return nil, err
	}
	mime, err := media.Validate(models.PlatformBluesky, data)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = mime
	}

	if media.IsVideoURL(opts.MediaURL) {
		blob, err := h.uploadVideo(ctx, creds, data)
		if err != nil {
			return nil, err
		}
		embed := map[string]any{
			"$type": "app.bsky.embed.video",
			"video": blob,
		}
		if w, ht, err := media.ProbeVideoSize(data); err == nil {
			embed["aspectRatio"] = transfer.BlueskyAspectRatio{Width: w, Height: ht}
		}
		return embed, nil
	}

	blob, err := h.uploadBlob(ctx, creds.AccessJwt, data, contentType)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"$type": "app.bsky.embed.images",
		"images": []transfer.BlueskyImageEmbed{
			{Alt: opts.MediaAltText, Image: *blob},
		},
	}, nil
}

func (h *BlueskyHandler) uploadBlob(ctx context.Context, accessJwt string, data []byte, contentType string) (*transfer.BlueskyBlob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.service+"/xrpc/com.atproto.repo.uploadBlob", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessJwt)
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bluesky uploadBlob returned status %d: %s", resp.StatusCode, respBody)
	}

	var uploaded transfer.BlueskyUploadBlobResponse
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return nil, err
	}
	return &uploaded.Blob, nil
}

// uploadVideo runs the three-step video flow: mint a service-auth token
// scoped to the video service, upload the bytes, then poll the processing
// job until the blob is ready.
func (h *BlueskyHandler) uploadVideo(ctx context.Context, creds *models.SessionCredentials, data []byte) (*transfer.BlueskyBlob, error) {
	serviceToken, err := h.serviceAuth(ctx, creds.AccessJwt)
	if err != nil {
		return nil, err
	}

	uploadURL := fmt.Sprintf("%s/xrpc/app.bsky.video.uploadVideo?did=%s&name=%s",
		h.videoService, url.QueryEscape(creds.DID), url.QueryEscape("video.mp4"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+serviceToken)
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	// 409 means the same bytes were already uploaded; the job status body is
	// still returned and can be polled like a fresh upload.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return nil, fmt.Errorf("bluesky video upload returned status %d: %s", resp.StatusCode, respBody)
	}

	var jobResp transfer.BlueskyJobStatusResponse
	if err := json.Unmarshal(respBody, &jobResp); err != nil {
		return nil, err
	}
	if jobResp.JobStatus.Blob != nil {
		return jobResp.JobStatus.Blob, nil
	}
	if jobResp.JobStatus.JobID == "" {
		return nil, errors.New("bluesky video upload returned no job id")
	}
	return h.pollJob(ctx, serviceToken, jobResp.JobStatus.JobID)
}

func (h *BlueskyHandler) serviceAuth(ctx context.Context, accessJwt string) (string, error) {
	authURL := fmt.Sprintf("%s/xrpc/com.atproto.server.getServiceAuth?aud=%s&lxm=app.bsky.video.uploadVideo&exp=%d",
		h.service, url.QueryEscape("did:web:video.bsky.app"), time.Now().Add(30*time.Minute).Unix())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessJwt)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bluesky getServiceAuth returned status %d: %s", resp.StatusCode, respBody)
	}

	var auth transfer.BlueskyServiceAuthResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return "", err
	}
	if auth.Token == "" {
		return "", errors.New("bluesky getServiceAuth returned an empty token")
	}
	return auth.Token, nil
}

func (h *BlueskyHandler) pollJob(ctx context.Context, serviceToken, jobID string) (*transfer.BlueskyBlob, error) {
	deadline := time.Now().Add(h.pollTimeout)
	for {
		status, err := h.jobStatus(ctx, serviceToken, jobID)
		if err != nil {
			return nil, err
		}
		switch status.State {
		case "JOB_STATE_COMPLETED":
			if status.Blob == nil {
				return nil, errors.New("bluesky video job completed without a blob")
			}
			return status.Blob, nil
		case "JOB_STATE_FAILED":
			if status.Message != "" {
				return nil, fmt.Errorf("bluesky video job failed: %s", status.Message)
			}
			return nil, fmt.Errorf("bluesky video job failed: %s", status.Error)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("bluesky video job %s did not finish within %s", jobID, h.pollTimeout)
		}
		select {
		case <-time.After(h.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (h *BlueskyHandler) jobStatus(ctx context.Context, serviceToken, jobID string) (*transfer.BlueskyJobStatus, error) {
	statusURL := fmt.Sprintf("%s/xrpc/app.bsky.video.getJobStatus?jobId=%s", h.videoService, url.QueryEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+serviceToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bluesky getJobStatus returned status %d: %s", resp.StatusCode, respBody)
	}

	var jobResp transfer.BlueskyJobStatusResponse
	if err := json.Unmarshal(respBody, &jobResp); err != nil {
		return nil, err
	}
	return &jobResp.JobStatus, nil
}
