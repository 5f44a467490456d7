package platforms

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/maheshrc27/postbridge/internal/media"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
)

const youtubeTitleMax = 100

// YoutubeHandler uploads videos through the YouTube Data API. The client
// library handles the resumable upload protocol itself, so the handler only
// stages the file and builds metadata.
type YoutubeHandler struct {
	store     store.Store
	refresher TokenRefresher
}

func NewYoutubeHandler(s store.Store, refresher TokenRefresher) *YoutubeHandler {
	return &YoutubeHandler{store: s, refresher: refresher}
}

func (h *YoutubeHandler) Platform() string { return models.PlatformYoutube }

func (h *YoutubeHandler) SendPost(ctx context.Context, userID string, conn *models.Connection, opts *models.PostOptions) (*models.PostResult, error) {
	creds, err := conn.OAuth()
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, errors.New("youtube connection is missing an access token")
	}
	if opts.MediaURL == "" || !media.IsVideoURL(opts.MediaURL) {
		return failure(models.PlatformYoutube, "youtube posts require a video media url"), nil
	}

	// Google access tokens expire after an hour, so refresh is the common
	// path rather than the exception.
	if needsProactiveRefresh(creds) {
		refreshed, err := h.refresher.RefreshToken(ctx, conn)
		if err != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformYoutube)
			return failure(models.PlatformYoutube, fmt.Sprintf("token refresh failed: %v", err)), nil
		}
		conn = refreshed
		creds, _ = conn.OAuth()
	}

	videoID, retry, err := h.uploadVideo(ctx, creds.AccessToken, opts)
	if retry {
		refreshed, refreshErr := h.refresher.RefreshToken(ctx, conn)
		if refreshErr != nil {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformYoutube)
			return failure(models.PlatformYoutube, fmt.Sprintf("authentication failed and refresh did not recover: %v", refreshErr)), nil
		}
		refreshedCreds, _ := refreshed.OAuth()
		videoID, retry, err = h.uploadVideo(ctx, refreshedCreds.AccessToken, opts)
		if retry {
			markConnectionInvalid(ctx, h.store, userID, models.PlatformYoutube)
		}
	}
	if err != nil {
		return failure(models.PlatformYoutube, err.Error()), nil
	}

	markConnectionValid(ctx, h.store, userID, models.PlatformYoutube)
	return success(models.PlatformYoutube, map[string]string{
		"id":  videoID,
		"url": "https://youtu.be/" + videoID,
	}), nil
}

func (h *YoutubeHandler) uploadVideo(ctx context.Context, accessToken string, opts *models.PostOptions) (string, bool, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	service, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", false, fmt.Errorf("error creating youtube service: %w", err)
	}

	tempPath, _, err := media.DownloadToTemp(ctx, opts.MediaURL, "youtube-*.mp4")
	if err != nil {
		return "", false, fmt.Errorf("video download failed: %w", err)
	}
	defer os.Remove(tempPath)

	file, err := os.Open(tempPath)
	if err != nil {
		return "", false, err
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       h.videoTitle(opts),
			Description: opts.Text,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(file).Context(ctx).Do()
	if err != nil {
		authFailed := isAuthError(models.PlatformYoutube, 0, err.Error())
		return "", authFailed, fmt.Errorf("youtube upload failed: %w", err)
	}
	return response.Id, false, nil
}

func (h *YoutubeHandler) videoTitle(opts *models.PostOptions) string {
	if title, ok := opts.PostData["title"].(string); ok && title != "" {
		return truncate(title, youtubeTitleMax)
	}
	if opts.Text != "" {
		return truncate(opts.Text, youtubeTitleMax)
	}
	return "Untitled video"
}
