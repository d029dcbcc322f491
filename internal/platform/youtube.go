package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeAdapter uploads a single video through the Data API. The video is
// staged in a temp file because the upload call needs a seekable reader.
type YouTubeAdapter struct{}

func NewYouTubeAdapter() *YouTubeAdapter {
	return &YouTubeAdapter{}
}

func (a *YouTubeAdapter) Platform() string { return "youtube" }

func (a *YouTubeAdapter) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if len(req.Media) == 0 {
		return nil, Rejected("youtube requires a video file")
	}

	token := &oauth2.Token{AccessToken: req.AccessToken}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	service, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, Unknown(err.Error())
	}

	tempFile, err := a.stageVideo(ctx, req.Media[0].URL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tempFile)

	file, err := os.Open(tempFile)
	if err != nil {
		return nil, Unknown(err.Error())
	}
	defer file.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(req.Content),
			Description: req.Content,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(file).Context(ctx).Do()
	if err != nil {
		return nil, a.mapError(err)
	}

	return &PublishResult{
		PlatformPostID: response.Id,
		PlatformURL:    fmt.Sprintf("https://youtu.be/%s", response.Id),
	}, nil
}

func (a *YouTubeAdapter) stageVideo(ctx context.Context, url string) (string, error) {
	tempFile, err := os.CreateTemp("", "upload-*.mp4")
	if err != nil {
		return "", Unknown(err.Error())
	}
	defer tempFile.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		os.Remove(tempFile.Name())
		return "", Unknown(err.Error())
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		os.Remove(tempFile.Name())
		return "", wrapTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Remove(tempFile.Name())
		return "", TransientNetwork(fmt.Sprintf("media fetch returned status %d", resp.StatusCode))
	}

	if _, err := io.Copy(tempFile, resp.Body); err != nil {
		os.Remove(tempFile.Name())
		return "", TransientNetwork(err.Error())
	}

	return tempFile.Name(), nil
}

func (a *YouTubeAdapter) mapError(err error) *PublishError {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return TransientNetwork(err.Error())
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		return AuthExpired(apiErr.Message)
	case http.StatusForbidden:
		// Quota errors arrive as 403 with a quota reason.
		for _, e := range apiErr.Errors {
			if strings.Contains(e.Reason, "quota") || e.Reason == "rateLimitExceeded" {
				return RateLimited(apiErr.Message)
			}
		}
		return AuthExpired(apiErr.Message)
	case http.StatusTooManyRequests:
		return RateLimited(apiErr.Message)
	case http.StatusBadRequest:
		return Rejected(apiErr.Message)
	}
	if apiErr.Code >= 500 {
		return TransientNetwork(apiErr.Message)
	}
	return Unknown(apiErr.Message)
}

// videoTitle derives a title from the first content line, capped at the API
// limit of 100 characters.
func videoTitle(content string) string {
	title := content
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	if len(title) > 100 {
		title = title[:97] + "..."
	}
	return title
}
