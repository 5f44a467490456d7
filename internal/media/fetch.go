package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	fetchAttempts  = 3
	fetchRetryWait = 2 * time.Second
)

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// Fetch downloads a media URL into memory, retrying transient failures.
// Returns the bytes and the response content type.
func Fetch(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		data, contentType, err := fetchOnce(ctx, url)
		if err == nil {
			return data, contentType, nil
		}
		lastErr = err
		slog.Info("media fetch failed", "url", url, "attempt", attempt, "error", err.Error())
		if attempt < fetchAttempts {
			select {
			case <-time.After(fetchRetryWait):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
	}
	return nil, "", fmt.Errorf("failed to fetch media after %d attempts: %w", fetchAttempts, lastErr)
}

func fetchOnce(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// DownloadToTemp streams a media URL to a temporary file. The caller owns
// the file and must remove it on every exit path.
func DownloadToTemp(ctx context.Context, url, pattern string) (string, int64, error) {
	tempFile, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", 0, fmt.Errorf("error creating temporary file: %w", err)
	}
	defer tempFile.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		os.Remove(tempFile.Name())
		return "", 0, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		os.Remove(tempFile.Name())
		return "", 0, fmt.Errorf("error downloading media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Remove(tempFile.Name())
		return "", 0, fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}

	size, err := io.Copy(tempFile, resp.Body)
	if err != nil {
		os.Remove(tempFile.Name())
		return "", 0, fmt.Errorf("error saving media to temporary file: %w", err)
	}

	return tempFile.Name(), size, nil
}
