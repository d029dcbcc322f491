package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"

	config "crosspost/configs"
	"crosspost/internal/models"
	"crosspost/internal/repository"
	"crosspost/internal/transfer"
	"crosspost/pkg/utils"
)

var twitterEndpoint = oauth2.Endpoint{
	AuthURL:  "https://twitter.com/i/oauth2/authorize",
	TokenURL: "https://api.twitter.com/2/oauth2/token",
}

var instagramEndpoint = oauth2.Endpoint{
	AuthURL:  "https://api.instagram.com/oauth/authorize",
	TokenURL: "https://api.instagram.com/oauth/access_token",
}

var tiktokEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.tiktok.com/v2/auth/authorize/",
	TokenURL: "https://open.tiktokapis.com/v2/oauth/token/",
}

type AccountService interface {
	ConnectURL(ctx context.Context, userID int64, platformName string) (string, error)
	Callback(ctx context.Context, platformName, code, state string) error
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Disconnect(ctx context.Context, userID, accountID int64) error
	SetPostingEnabled(ctx context.Context, userID, accountID int64, enabled bool) error
	RefreshToken(ctx context.Context, account *models.SocialAccount) error
	Credential(account *models.SocialAccount) (string, error)
}

type accountService struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
}

func NewAccountService(cfg config.Config, sa repository.SocialAccountRepository) AccountService {
	return &accountService{
		cfg: cfg,
		sa:  sa,
	}
}

func (s *accountService) oauthConfig(platformName string) (*oauth2.Config, error) {
	switch platformName {
	case "facebook":
		return &oauth2.Config{
			ClientID:     s.cfg.FacebookClientID,
			ClientSecret: s.cfg.FacebookClientSecret,
			RedirectURL:  s.cfg.FacebookRedirectURI,
			Scopes:       []string{"pages_manage_posts", "pages_read_engagement", "publish_video"},
			Endpoint:     facebook.Endpoint,
		}, nil
	case "instagram":
		return &oauth2.Config{
			ClientID:     s.cfg.InstagramClientID,
			ClientSecret: s.cfg.InstagramClientSecret,
			RedirectURL:  s.cfg.InstagramRedirectURI,
			Scopes:       []string{"instagram_business_basic", "instagram_business_content_publish"},
			Endpoint:     instagramEndpoint,
		}, nil
	case "linkedin":
		return &oauth2.Config{
			ClientID:     s.cfg.LinkedinClientID,
			ClientSecret: s.cfg.LinkedinClientSecret,
			RedirectURL:  s.cfg.LinkedinRedirectURI,
			Scopes:       []string{"openid", "profile", "w_member_social"},
			Endpoint:     linkedin.Endpoint,
		}, nil
	case "tiktok":
		// TikTok calls its credential a client key but exchanges it through
		// the standard authorization code grant.
		return &oauth2.Config{
			ClientID:     s.cfg.TiktokClientKey,
			ClientSecret: s.cfg.TiktokClientSecret,
			RedirectURL:  s.cfg.TiktokRedirectURI,
			Scopes:       []string{"user.info.basic", "video.publish", "video.upload"},
			Endpoint:     tiktokEndpoint,
		}, nil
	case "twitter":
		return &oauth2.Config{
			ClientID:     s.cfg.TwitterClientID,
			ClientSecret: s.cfg.TwitterClientSecret,
			RedirectURL:  s.cfg.TwitterRedirectURI,
			Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			Endpoint:     twitterEndpoint,
		}, nil
	case "youtube":
		return &oauth2.Config{
			ClientID:     s.cfg.GoogleClientID,
			ClientSecret: s.cfg.GoogleClientSecret,
			RedirectURL:  s.cfg.YoutubeRedirectURI,
			Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		}, nil
	}
	return nil, fmt.Errorf("unsupported platform: %s", platformName)
}

// ConnectURL builds the authorization URL for connecting an account. The
// state parameter is a short-lived signed token carrying the user id, so the
// callback can recover the user without a session store.
func (s *accountService) ConnectURL(ctx context.Context, userID int64, platformName string) (string, error) {
	conf, err := s.oauthConfig(platformName)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	state, err := utils.GenerateToken(s.cfg.SecretKey, strconv.FormatInt(userID, 10), 15*time.Minute)
	if err != nil {
		return "", err
	}

	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (s *accountService) Callback(ctx context.Context, platformName, code, state string) error {
	if code == "" || state == "" {
		err := errors.New("code or state is empty")
		slog.Info(err.Error())
		return err
	}

	claims, err := utils.ValidateToken(s.cfg.SecretKey, state)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	conf, err := s.oauthConfig(platformName)
	if err != nil {
		return err
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	accountID, accountName, username, picture, err := s.fetchProfile(ctx, platformName, conf, token)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	var encryptedRefreshToken string
	if token.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	account := &models.SocialAccount{
		UserID:          userID,
		Platform:        platformName,
		AccountID:       accountID,
		AccountName:     accountName,
		AccountUsername: username,
		ProfilePicture:  picture,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		TokenExpiresAt:  token.Expiry,
		AccountStatus:   models.AccountStatusConnected,
		PostingEnabled:  true,
	}

	_, err = s.sa.Create(ctx, nil, account)
	return err
}

func (s *accountService) fetchProfile(ctx context.Context, platformName string, conf *oauth2.Config, token *oauth2.Token) (accountID, name, username, picture string, err error) {
	client := conf.Client(ctx, token)

	switch platformName {
	case "facebook":
		var profile transfer.FacebookProfile
		if err = fetchJSON(client, "https://graph.facebook.com/v18.0/me?fields=id,name,picture", &profile); err != nil {
			return
		}
		return profile.ID, profile.Name, "", profile.Picture.Data.URL, nil
	case "instagram":
		var profile transfer.InstagramProfile
		if err = fetchJSON(client, "https://graph.instagram.com/me?fields=id,username,name,profile_picture_url", &profile); err != nil {
			return
		}
		return profile.ID, profile.Name, profile.Username, profile.ProfilePicture, nil
	case "linkedin":
		var profile transfer.LinkedinProfile
		if err = fetchJSON(client, "https://api.linkedin.com/v2/userinfo", &profile); err != nil {
			return
		}
		return profile.Sub, profile.Name, "", profile.Picture, nil
	case "tiktok":
		var profile transfer.TiktokProfile
		if err = fetchJSON(client, "https://open.tiktokapis.com/v2/user/info/?fields=open_id,avatar_url,display_name,username", &profile); err != nil {
			return
		}
		return profile.Data.User.OpenID, profile.Data.User.DisplayName, profile.Data.User.Username, profile.Data.User.AvatarURL, nil
	case "twitter":
		var profile transfer.TwitterProfile
		if err = fetchJSON(client, "https://api.twitter.com/2/users/me", &profile); err != nil {
			return
		}
		return profile.Data.ID, profile.Data.Name, profile.Data.Username, "", nil
	case "youtube":
		var info *transfer.GoogleUserInfo
		info, err = GetUserInfo(client)
		if err != nil {
			return
		}
		return info.ID, info.Name, "", info.Picture, nil
	}
	err = fmt.Errorf("unsupported platform: %s", platformName)
	return
}

func fetchJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return s.sa.ListByUserID(ctx, userID)
}

// Disconnect flips the account status instead of deleting the row, so old
// post targets keep pointing at a real account.
func (s *accountService) Disconnect(ctx context.Context, userID, accountID int64) error {
	if err := s.ownedAccount(ctx, accountID, userID); err != nil {
		return err
	}
	return s.sa.UpdateStatus(ctx, accountID, models.AccountStatusDisconnected)
}

func (s *accountService) SetPostingEnabled(ctx context.Context, userID, accountID int64, enabled bool) error {
	if err := s.ownedAccount(ctx, accountID, userID); err != nil {
		return err
	}
	return s.sa.SetPostingEnabled(ctx, accountID, enabled)
}

// RefreshToken renews the credential through the platform's refresh grant
// and rotates the stored ciphertexts.
func (s *accountService) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	conf, err := s.oauthConfig(account.Platform)
	if err != nil {
		return err
	}

	if account.RefreshToken == "" {
		return errors.New("account has no refresh token")
	}
	refreshToken, err := utils.Decrypt(account.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	encryptedRefreshToken := account.RefreshToken
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	updated := *account
	updated.AccessToken = encryptedAccessToken
	updated.RefreshToken = encryptedRefreshToken
	updated.TokenExpiresAt = token.Expiry

	return s.sa.SetToken(ctx, account.UserID, account.AccessToken, &updated)
}

// Credential resolves the decrypted access token for publishing. It refuses
// accounts that are not connected, so an expired account fails fast as an
// auth error instead of a confusing platform response.
func (s *accountService) Credential(account *models.SocialAccount) (string, error) {
	if account.AccountStatus != models.AccountStatusConnected {
		return "", fmt.Errorf("account is %s", account.AccountStatus)
	}
	return utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
}

func (s *accountService) ownedAccount(ctx context.Context, accountID, userID int64) error {
	exists, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !exists {
		err = errors.New("social account doesn't exist")
		slog.Info(err.Error())
		return err
	}
	return nil
}
