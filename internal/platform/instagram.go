package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const instagramGraphURL = "https://graph.instagram.com/v21.0"

// InstagramAdapter publishes through the container flow of the Instagram
// Graph API: create one container per media item (or a carousel container
// over them), then publish the container.
type InstagramAdapter struct {
	baseURL string
}

func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{baseURL: instagramGraphURL}
}

func (a *InstagramAdapter) Platform() string { return "instagram" }

func (a *InstagramAdapter) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if len(req.Media) == 0 {
		return nil, Rejected("instagram does not support posts without media")
	}

	var containerID string
	var err error
	if len(req.Media) == 1 {
		containerID, err = a.createContainer(ctx, req, req.Media[0], false)
	} else {
		containerID, err = a.createCarousel(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	mediaID, err := a.publishContainer(ctx, req, containerID)
	if err != nil {
		return nil, err
	}

	if req.FirstComment != "" {
		if err := a.addComment(ctx, mediaID, req.FirstComment, req.AccessToken); err != nil {
			slog.Info("instagram first comment failed", "media_id", mediaID, "error", err.Error())
		}
	}

	permalink := a.fetchPermalink(ctx, mediaID, req.AccessToken)

	return &PublishResult{PlatformPostID: mediaID, PlatformURL: permalink}, nil
}

func (a *InstagramAdapter) createContainer(ctx context.Context, req *PublishRequest, m Media, carouselItem bool) (string, error) {
	payload := map[string]interface{}{
		"access_token": req.AccessToken,
	}
	if strings.HasPrefix(m.MimeType, "video/") {
		payload["video_url"] = m.URL
		switch req.PostType {
		case "reel":
			payload["media_type"] = "REELS"
		case "story":
			payload["media_type"] = "STORIES"
		default:
			payload["media_type"] = "VIDEO"
		}
	} else {
		payload["image_url"] = m.URL
		if req.PostType == "story" {
			payload["media_type"] = "STORIES"
		}
	}
	if carouselItem {
		payload["is_carousel_item"] = true
	} else {
		payload["caption"] = req.Content
	}
	return a.call(ctx, fmt.Sprintf("%s/%s/media", a.baseURL, req.AccountID), payload)
}

func (a *InstagramAdapter) createCarousel(ctx context.Context, req *PublishRequest) (string, error) {
	children := make([]string, 0, len(req.Media))
	for _, m := range req.Media {
		id, err := a.createContainer(ctx, req, m, true)
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	payload := map[string]interface{}{
		"media_type":   "CAROUSEL",
		"caption":      req.Content,
		"children":     children,
		"access_token": req.AccessToken,
	}
	return a.call(ctx, fmt.Sprintf("%s/%s/media", a.baseURL, req.AccountID), payload)
}

func (a *InstagramAdapter) publishContainer(ctx context.Context, req *PublishRequest, containerID string) (string, error) {
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": req.AccessToken,
	}
	return a.call(ctx, fmt.Sprintf("%s/%s/media_publish", a.baseURL, req.AccountID), payload)
}

func (a *InstagramAdapter) addComment(ctx context.Context, mediaID, message, accessToken string) error {
	payload := map[string]interface{}{
		"message":      message,
		"access_token": accessToken,
	}
	_, err := a.call(ctx, fmt.Sprintf("%s/%s/comments", a.baseURL, mediaID), payload)
	return err
}

// fetchPermalink resolves the public URL of a published media item. Failure
// leaves the URL empty rather than failing the publish.
func (a *InstagramAdapter) fetchPermalink(ctx context.Context, mediaID, accessToken string) string {
	url := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", a.baseURL, mediaID, accessToken)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var result struct {
		Permalink string `json:"permalink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	return result.Permalink
}

func (a *InstagramAdapter) call(ctx context.Context, url string, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", Unknown(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", Unknown(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", wrapTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", TransientNetwork(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return "", a.mapError(resp.StatusCode, respBody)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", Unknown(fmt.Sprintf("malformed response: %s", respBody))
	}
	if result.ID == "" {
		return "", Unknown(fmt.Sprintf("no id in response: %s", respBody))
	}
	return result.ID, nil
}

// Instagram shares the Graph API error envelope with Facebook.
func (a *InstagramAdapter) mapError(status int, body []byte) *PublishError {
	var igErr facebookError
	if err := json.Unmarshal(body, &igErr); err == nil && igErr.Error.Message != "" {
		switch igErr.Error.Code {
		case 190:
			return AuthExpired(igErr.Error.Message)
		case 4, 17, 32, 613:
			return RateLimited(igErr.Error.Message)
		case 352, 2207026:
			// Unsupported media format codes.
			return Rejected(igErr.Error.Message)
		}
		if status >= 500 {
			return TransientNetwork(igErr.Error.Message)
		}
		return Unknown(igErr.Error.Message)
	}
	return classifyStatus(status, string(body))
}
