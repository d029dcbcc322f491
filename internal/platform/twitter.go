package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

const (
	twitterAPIURL    = "https://api.twitter.com/2"
	twitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
)

// TwitterAdapter creates tweets through the v2 API. Media still goes through
// the v1.1 upload endpoint, which returns the media ids the tweet references.
type TwitterAdapter struct {
	baseURL   string
	uploadURL string
}

func NewTwitterAdapter() *TwitterAdapter {
	return &TwitterAdapter{baseURL: twitterAPIURL, uploadURL: twitterUploadURL}
}

func (a *TwitterAdapter) Platform() string { return "twitter" }

func (a *TwitterAdapter) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	payload := map[string]interface{}{
		"text": req.Content,
	}

	if len(req.Media) > 0 {
		mediaIDs := make([]string, 0, len(req.Media))
		for _, m := range req.Media {
			id, err := a.uploadMedia(ctx, m, req.AccessToken)
			if err != nil {
				return nil, err
			}
			mediaIDs = append(mediaIDs, id)
		}
		payload["media"] = map[string]interface{}{"media_ids": mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Unknown(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, Unknown(err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

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

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.Data.ID == "" {
		return nil, Unknown(fmt.Sprintf("malformed response: %s", respBody))
	}

	return &PublishResult{
		PlatformPostID: result.Data.ID,
		PlatformURL:    fmt.Sprintf("https://twitter.com/i/web/status/%s", result.Data.ID),
	}, nil
}

// uploadMedia fetches the media bytes and hands them to the v1.1 upload
// endpoint as a multipart form.
func (a *TwitterAdapter) uploadMedia(ctx context.Context, m Media, accessToken string) (string, error) {
	srcReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return "", Unknown(err.Error())
	}
	src, err := httpClient.Do(srcReq)
	if err != nil {
		return "", wrapTransport(err)
	}
	defer src.Body.Close()
	if src.StatusCode != http.StatusOK {
		return "", TransientNetwork(fmt.Sprintf("media fetch returned status %d", src.StatusCode))
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", Unknown(err.Error())
	}
	if _, err := io.Copy(part, src.Body); err != nil {
		return "", TransientNetwork(err.Error())
	}
	if err := writer.Close(); err != nil {
		return "", Unknown(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.uploadURL, &form)
	if err != nil {
		return "", Unknown(err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

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
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.MediaIDString == "" {
		return "", Unknown(fmt.Sprintf("malformed upload response: %s", respBody))
	}
	return result.MediaIDString, nil
}

func (a *TwitterAdapter) mapError(status int, body []byte) *PublishError {
	var twErr struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &twErr); err == nil && twErr.Detail != "" {
		msg = twErr.Detail
	}
	switch {
	case status == http.StatusUnauthorized:
		return AuthExpired(msg)
	case status == http.StatusTooManyRequests:
		return RateLimited(msg)
	case status == http.StatusForbidden:
		// Duplicate content and policy violations come back as 403.
		return Rejected(msg)
	case status >= 500:
		return TransientNetwork(msg)
	default:
		return Unknown(msg)
	}
}
