package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
	"github.com/maheshrc27/postbridge/internal/transfer"
)

const (
	tiktokAPIURL = "https://open.tiktokapis.com/v2"

	tiktokTitleMax = 2200
)

// TiktokHandler publishes videos through the chunked byte-range upload
// protocol: init an upload session, PUT each chunk with an explicit
// Content-Range, then publish with the session id. The downloaded temp file
// is removed on every exit path.
type TiktokHandler struct {
	store     store.Store
	refresher TokenRefresher
	apiURL    string
}

func NewTiktokHandler(s store.Store, refresher TokenRefresher) *TiktokHandler {
	return &TiktokHandler{store: s, refresher: refresher, apiURL: tiktokAPIURL}
}

func (h *TiktokHandler) Platform() string { return models.PlatformTiktok }

func (h *TiktokHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, errors.New("tiktok connection is missing an access token")
	}
	if opts.MediaURL == "" || !media.IsVideoURL(opts.MediaURL) {
		return failure(models.PlatformTiktok, "tiktok posts require a video media url"), nil
	}

	if needsProactiveRefresh(creds) {
		refreshed, err := h.refresher.RefreshToken(ctx, conn)
		if err != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformTiktok)
			return failure(models.PlatformTiktok, fmt.Sprintf("token refresh failed: %v", err)), nil
		}
		conn = refreshed
		creds, _ = conn.OAuth()
	}

	publishID, retry, err := h.uploadAndPublish(ctx, creds.AccessToken, opts)
	if retry {
		refreshed, refreshErr := h.refresher.RefreshToken(ctx, conn)
		if refreshErr != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformTiktok)
			return failure(models.PlatformTiktok, fmt.Sprintf("authentication failed and refresh did not recover: %v", refreshErr)), nil
		}
		refreshedCreds, _ := refreshed.OAuth()
		publishID, retry, err = h.uploadAndPublish(ctx, refreshedCreds.AccessToken, opts)
		if retry {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformTiktok)
		}
	}
	if err != nil {
		return failure(models.PlatformTiktok, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformTiktok)
	return success(models.PlatformTiktok, map[string]string{"publish_id": publishID}), nil
}

func (h *TiktokHandler) uploadAndPublish(ctx context.Context, accessToken string, opts *models.PostOptions) (string, bool, error) {
	tempPath, size, err := media.DownloadToTemp(ctx, opts.MediaURL, "tiktok-*.mp4")
	if err != nil {
		return "", false, fmt.Errorf("video download failed: %w", err)
	}
	defer os.Remove(tempPath)

	plan := media.PlanChunks(size)

	initResp, retry, err := h.initUpload(ctx, accessToken, opts.Text, size, plan)
	if err != nil {
		return "", retry, err
	}

	if err := h.uploadChunks(ctx, initResp.Data.UploadURL, tempPath, size, plan); err != nil {
		return "", false, err
	}

	return h.publish(ctx, accessToken, initResp.Data.PublishID, opts.Text)
}

func (h *TiktokHandler) initUpload(ctx context.Context, accessToken, title string, size int64, plan media.ChunkPlan) (*transfer.TiktokVideoInitResponse, bool, error) {
	payload := transfer.TiktokVideoInitRequest{
		PostInfo: transfer.TiktokPostInfo{
			Title:        truncate(title, tiktokTitleMax),
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
		},
		SourceInfo: transfer.TiktokSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       size,
			ChunkSize:       plan.ChunkSize,
			TotalChunkCount: plan.ChunkCount,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+"/post/publish/video/init/", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

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
		authFailed := isAuthError(models.PlatformTiktok, resp.StatusCode, string(respBody))
		return nil, authFailed, fmt.Errorf("tiktok upload init returned status %d: %s", resp.StatusCode, respBody)
	}

	var initResp transfer.TiktokVideoInitResponse
	if err := json.Unmarshal(respBody, &initResp); err != nil {
		return nil, false, err
	}
	if initResp.Data.UploadURL == "" || initResp.Data.PublishID == "" {
		return nil, false, fmt.Errorf("tiktok upload init failed: %s", initResp.Error.Message)
	}
	return &initResp, false, nil
}

// uploadChunks streams the file in plan-sized chunks, each PUT carrying an
// explicit byte range.
func (h *TiktokHandler) uploadChunks(ctx context.Context, uploadURL, path string, total int64, plan media.ChunkPlan) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, plan.ChunkSize)
	var offset int64
	for offset < total {
		chunkLen := plan.ChunkSize
		if remaining := total - offset; remaining < chunkLen {
			chunkLen = remaining
		}
		if _, err := io.ReadFull(file, buf[:chunkLen]); err != nil {
			return fmt.Errorf("error reading video chunk: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(buf[:chunkLen]))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "video/mp4")
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+chunkLen-1, total))
		req.ContentLength = chunkLen

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("chunk upload failed at offset %d: %w", offset, err)
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusPartialContent {
			return fmt.Errorf("chunk upload at offset %d returned status %d: %s", offset, resp.StatusCode, respBody)
		}

		offset += chunkLen
	}
	return nil
}

func (h *TiktokHandler) publish(ctx context.Context, accessToken, publishID, title string) (string, bool, error) {
	payload := transfer.TiktokPublishRequest{
		PublishID: publishID,
		PostInfo: transfer.TiktokPostInfo{
			Title:        truncate(title, tiktokTitleMax),
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+"/post/publish/", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}
	if resp.StatusCode != http.StatusOK {
		authFailed := isAuthError(models.PlatformTiktok, resp.StatusCode, string(respBody))
		return "", authFailed, fmt.Errorf("tiktok publish returned status %d: %s", resp.StatusCode, respBody)
	}

	var publishResp transfer.TiktokPublishResponse
	if err := json.Unmarshal(respBody, &publishResp); err != nil {
		return "", false, err
	}
	result := publishResp.Data.PublishID
	if result == "" {
		result = publishID
	}
	return result, false, nil
}
