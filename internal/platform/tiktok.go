package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const tiktokAPIURL = "https://open.tiktokapis.com/v2"

// TikTokAdapter publishes through the direct post API. Videos and photo
// carousels go through separate init endpoints; both hand TikTok the asset
// URL to pull from instead of uploading bytes.
type TikTokAdapter struct {
	baseURL string
}

func NewTikTokAdapter() *TikTokAdapter {
	return &TikTokAdapter{baseURL: tiktokAPIURL}
}

func (a *TikTokAdapter) Platform() string { return "tiktok" }

func (a *TikTokAdapter) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	if len(req.Media) == 0 {
		return nil, Rejected("tiktok requires a video or photos")
	}

	if strings.HasPrefix(req.Media[0].MimeType, "video/") {
		return a.postVideo(ctx, req)
	}
	return a.postPhotos(ctx, req)
}

func (a *TikTokAdapter) postVideo(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":                    req.Content,
			"privacy_level":            "PUBLIC_TO_EVERYONE",
			"video_cover_timestamp_ms": 1000,
		},
		"source_info": map[string]interface{}{
			"source":    "PULL_FROM_URL",
			"video_url": req.Media[0].URL,
		},
	}
	return a.initPost(ctx, req.AccessToken, "/post/publish/video/init/", payload)
}

func (a *TikTokAdapter) postPhotos(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	photos := make([]string, 0, len(req.Media))
	for _, m := range req.Media {
		if strings.HasPrefix(m.MimeType, "video/") {
			return nil, Rejected("tiktok photo posts cannot mix in video")
		}
		photos = append(photos, m.URL)
	}

	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":          req.Content,
			"privacy_level":  "PUBLIC_TO_EVERYONE",
			"auto_add_music": true,
		},
		"source_info": map[string]interface{}{
			"source":            "PULL_FROM_URL",
			"photo_cover_index": 0,
			"photo_images":      photos,
		},
		"post_mode":  "DIRECT_POST",
		"media_type": "PHOTO",
	}
	return a.initPost(ctx, req.AccessToken, "/post/publish/content/init/", payload)
}

func (a *TikTokAdapter) initPost(ctx context.Context, accessToken, path string, payload map[string]interface{}) (*PublishResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Unknown(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, Unknown(err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransientNetwork(err.Error())
	}

	var result struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, Unknown(fmt.Sprintf("malformed response: %s", respBody))
	}

	// Every response carries an error envelope; code "ok" means success.
	if resp.StatusCode != http.StatusOK || (result.Error.Code != "" && result.Error.Code != "ok") {
		return nil, a.mapError(resp.StatusCode, result.Error.Code, result.Error.Message)
	}
	if result.Data.PublishID == "" {
		return nil, Unknown(fmt.Sprintf("malformed response: %s", respBody))
	}

	// Direct post is asynchronous on TikTok's side, so there is no final
	// video URL yet. The publish id is what their status API keys on.
	return &PublishResult{PlatformPostID: result.Data.PublishID}, nil
}

func (a *TikTokAdapter) mapError(status int, code, msg string) *PublishError {
	if msg == "" {
		msg = code
	}
	switch {
	case status == http.StatusUnauthorized || code == "access_token_invalid" || code == "scope_not_authorized":
		return AuthExpired(msg)
	case status == http.StatusTooManyRequests || code == "rate_limit_exceeded" || code == "spam_risk_too_many_posts":
		return RateLimited(msg)
	case status >= 500:
		return TransientNetwork(msg)
	case status == http.StatusBadRequest || code == "invalid_params" || strings.HasPrefix(code, "spam_risk"):
		return Rejected(msg)
	default:
		return Unknown(msg)
	}
}
