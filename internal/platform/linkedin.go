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

const linkedinAPIURL = "https://api.linkedin.com/v2"

// LinkedInAdapter publishes through the UGC Posts API. Media has to be
// registered as an asset and uploaded before it can be attached to a share.
type LinkedInAdapter struct {
	baseURL string
}

func NewLinkedInAdapter() *LinkedInAdapter {
	return &LinkedInAdapter{baseURL: linkedinAPIURL}
}

func (a *LinkedInAdapter) Platform() string { return "linkedin" }

func (a *LinkedInAdapter) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	share := map[string]interface{}{
		"author":         fmt.Sprintf("urn:li:person:%s", req.AccountID),
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": req.Content},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	if len(req.Media) > 0 {
		media := make([]map[string]interface{}, 0, len(req.Media))
		category := "IMAGE"
		for _, m := range req.Media {
			urn, err := a.uploadAsset(ctx, req, m)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(m.MimeType, "video/") {
				category = "VIDEO"
			}
			media = append(media, map[string]interface{}{
				"status": "READY",
				"media":  urn,
			})
		}
		content := share["specificContent"].(map[string]interface{})["com.linkedin.ugc.ShareContent"].(map[string]interface{})
		content["shareMediaCategory"] = category
		content["media"] = media
	}

	body, err := json.Marshal(share)
	if err != nil {
		return nil, Unknown(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return nil, Unknown(err.Error())
	}
	a.setHeaders(httpReq, req.AccessToken)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransientNetwork(err.Error())
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, a.mapError(resp.StatusCode, respBody)
	}

	postID := resp.Header.Get("x-restli-id")
	if postID == "" {
		var result struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(respBody, &result); err != nil || result.ID == "" {
			return nil, Unknown(fmt.Sprintf("no post id in response: %s", respBody))
		}
		postID = result.ID
	}

	return &PublishResult{
		PlatformPostID: postID,
		PlatformURL:    fmt.Sprintf("https://www.linkedin.com/feed/update/%s", postID),
	}, nil
}

// uploadAsset registers an upload slot, streams the media bytes into it and
// returns the asset URN.
func (a *LinkedInAdapter) uploadAsset(ctx context.Context, req *PublishRequest, m Media) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if strings.HasPrefix(m.MimeType, "video/") {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}

	register := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{recipe},
			"owner":   fmt.Sprintf("urn:li:person:%s", req.AccountID),
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}

	body, err := json.Marshal(register)
	if err != nil {
		return "", Unknown(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/assets?action=registerUpload", bytes.NewReader(body))
	if err != nil {
		return "", Unknown(err.Error())
	}
	a.setHeaders(httpReq, req.AccessToken)

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
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				Request struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", Unknown(fmt.Sprintf("malformed registerUpload response: %s", respBody))
	}
	uploadURL := result.Value.UploadMechanism.Request.UploadURL
	if uploadURL == "" || result.Value.Asset == "" {
		return "", Unknown(fmt.Sprintf("incomplete registerUpload response: %s", respBody))
	}

	if err := a.putMedia(ctx, uploadURL, m, req.AccessToken); err != nil {
		return "", err
	}

	return result.Value.Asset, nil
}

func (a *LinkedInAdapter) putMedia(ctx context.Context, uploadURL string, m Media, accessToken string) error {
	srcReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return Unknown(err.Error())
	}
	src, err := httpClient.Do(srcReq)
	if err != nil {
		return wrapTransport(err)
	}
	defer src.Body.Close()
	if src.StatusCode != http.StatusOK {
		return TransientNetwork(fmt.Sprintf("media fetch returned status %d", src.StatusCode))
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, src.Body)
	if err != nil {
		return Unknown(err.Error())
	}
	putReq.Header.Set("Authorization", "Bearer "+accessToken)
	putReq.ContentLength = m.FileSize

	resp, err := httpClient.Do(putReq)
	if err != nil {
		return wrapTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return a.mapError(resp.StatusCode, body)
	}
	return nil
}

func (a *LinkedInAdapter) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}

func (a *LinkedInAdapter) mapError(status int, body []byte) *PublishError {
	var liErr struct {
		Message        string `json:"message"`
		ServiceErrCode int    `json:"serviceErrorCode"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &liErr); err == nil && liErr.Message != "" {
		msg = liErr.Message
	}
	switch {
	case status == http.StatusUnauthorized:
		return AuthExpired(msg)
	case status == http.StatusTooManyRequests:
		return RateLimited(msg)
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return Rejected(msg)
	case status >= 500:
		return TransientNetwork(msg)
	default:
		return Unknown(msg)
	}
}
