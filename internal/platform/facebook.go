package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const facebookGraphURL = "https://graph.facebook.com/v18.0"

type facebookError struct {
	Error struct {
		Message   string `json:"message"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

type FacebookAdapter struct {
	baseURL string
}

func NewFacebookAdapter() *FacebookAdapter {
	return &FacebookAdapter{baseURL: facebookGraphURL}
}

func (a *FacebookAdapter) Platform() string { return "facebook" }

func (a *FacebookAdapter) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	var postID string
	var err error

	switch {
	case len(req.Media) == 0:
		postID, err = a.publishText(ctx, req)
	case req.PostType == "video":
		postID, err = a.publishVideo(ctx, req)
	default:
		postID, err = a.publishPhotos(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if req.FirstComment != "" {
		// Best effort. A failed comment never reverts the publish.
		if err := a.addComment(ctx, postID, req.FirstComment, req.AccessToken); err != nil {
			slog.Info("facebook first comment failed", "post_id", postID, "error", err.Error())
		}
	}

	return &PublishResult{
		PlatformPostID: postID,
		PlatformURL:    fmt.Sprintf("https://www.facebook.com/%s", postID),
	}, nil
}

func (a *FacebookAdapter) publishText(ctx context.Context, req *PublishRequest) (string, error) {
	payload := map[string]interface{}{
		"message":      req.Content,
		"access_token": req.AccessToken,
	}
	return a.call(ctx, fmt.Sprintf("%s/%s/feed", a.baseURL, req.AccountID), payload)
}

func (a *FacebookAdapter) publishPhotos(ctx context.Context, req *PublishRequest) (string, error) {
	if len(req.Media) == 1 {
		payload := map[string]interface{}{
			"url":          req.Media[0].URL,
			"caption":      req.Content,
			"access_token": req.AccessToken,
		}
		return a.call(ctx, fmt.Sprintf("%s/%s/photos", a.baseURL, req.AccountID), payload)
	}

	// Multi-photo posts upload each photo unpublished, then attach them to
	// one feed post.
	attached := make([]map[string]string, 0, len(req.Media))
	for _, m := range req.Media {
		payload := map[string]interface{}{
			"url":          m.URL,
			"published":    false,
			"access_token": req.AccessToken,
		}
		id, err := a.call(ctx, fmt.Sprintf("%s/%s/photos", a.baseURL, req.AccountID), payload)
		if err != nil {
			return "", err
		}
		attached = append(attached, map[string]string{"media_fbid": id})
	}

	payload := map[string]interface{}{
		"message":        req.Content,
		"attached_media": attached,
		"access_token":   req.AccessToken,
	}
	return a.call(ctx, fmt.Sprintf("%s/%s/feed", a.baseURL, req.AccountID), payload)
}

func (a *FacebookAdapter) publishVideo(ctx context.Context, req *PublishRequest) (string, error) {
	payload := map[string]interface{}{
		"file_url":     req.Media[0].URL,
		"description":  req.Content,
		"access_token": req.AccessToken,
	}
	return a.call(ctx, fmt.Sprintf("%s/%s/videos", a.baseURL, req.AccountID), payload)
}

func (a *FacebookAdapter) addComment(ctx context.Context, postID, message, accessToken string) error {
	payload := map[string]interface{}{
		"message":      message,
		"access_token": accessToken,
	}
	_, err := a.call(ctx, fmt.Sprintf("%s/%s/comments", a.baseURL, postID), payload)
	return err
}

func (a *FacebookAdapter) call(ctx context.Context, url string, payload map[string]interface{}) (string, error) {
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
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", Unknown(fmt.Sprintf("malformed response: %s", respBody))
	}
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", Unknown(fmt.Sprintf("no id in response: %s", respBody))
	}
	return result.ID, nil
}

// mapError translates Graph API error codes into the shared taxonomy. Code
// 190 is an invalid or expired token; 4, 17, 32 and 613 are throttling codes.
func (a *FacebookAdapter) mapError(status int, body []byte) *PublishError {
	var fbErr facebookError
	if err := json.Unmarshal(body, &fbErr); err == nil && fbErr.Error.Message != "" {
		switch fbErr.Error.Code {
		case 190:
			return AuthExpired(fbErr.Error.Message)
		case 4, 17, 32, 613:
			return RateLimited(fbErr.Error.Message)
		case 368, 100:
			return Rejected(fbErr.Error.Message)
		}
		if status >= 500 {
			return TransientNetwork(fbErr.Error.Message)
		}
		return Unknown(fbErr.Error.Message)
	}
	return classifyStatus(status, string(body))
}
