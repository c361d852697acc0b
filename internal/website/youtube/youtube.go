// Package youtube posts video submissions to YouTube through the Data API.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/website"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	Website = "youtube"

	uploadScope    = "https://www.googleapis.com/auth/youtube.upload"
	maxTitle       = 100
	maxDescription = 5000
	defaultPrivacy = "public"
	peopleCategory = "22"
)

var errMessageUnsupported = errors.New("youtube only accepts video posts")

// TokenStore persists refreshed tokens. SetToken only succeeds if the stored
// access token still equals oldAccessToken.
type TokenStore interface {
	SetToken(ctx context.Context, id string, oldAccessToken string, acc *models.Account) error
}

type Config struct {
	ClientID     string
	ClientSecret string
	// SecretKey decrypts the stored account tokens.
	SecretKey []byte
}

type Adapter struct {
	oauth  *oauth2.Config
	key    []byte
	tokens TokenStore
	opts   []option.ClientOption
}

func New(cfg Config, tokens TokenStore, opts ...option.ClientOption) *Adapter {
	return &Adapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{uploadScope},
			Endpoint:     google.Endpoint,
		},
		key:    cfg.SecretKey,
		tokens: tokens,
		opts:   opts,
	}
}

func (a *Adapter) Website() string { return Website }

func (a *Adapter) Capabilities() website.Capabilities {
	return website.Capabilities{
		SupportsFile:      true,
		FileBatchSize:     1,
		AcceptedMimeTypes: []string{"video/*"},
		WaitBetweenPosts:  30 * time.Second,
		PostTimeout:       30 * time.Minute,
		ConcurrentSafe:    true,
	}
}

func (a *Adapter) GetLoginState(ctx context.Context, account *models.Account) (models.LoginState, error) {
	if account.RefreshToken == "" {
		return models.LoginState{LoggedIn: false}, nil
	}
	if _, err := a.token(ctx, account); err != nil {
		return models.LoginState{LoggedIn: false}, err
	}
	return models.LoginState{LoggedIn: true, Username: account.Username}, nil
}

// token returns a valid access token for the account, refreshing and storing
// it when the stored one has expired.
func (a *Adapter) token(ctx context.Context, account *models.Account) (*oauth2.Token, error) {
	refresh, err := utils.Decrypt(account.RefreshToken, a.key)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	current := &oauth2.Token{RefreshToken: refresh, Expiry: account.TokenExpiresAt}
	if account.AccessToken != "" {
		access, err := utils.Decrypt(account.AccessToken, a.key)
		if err != nil {
			return nil, fmt.Errorf("decrypt access token: %w", err)
		}
		current.AccessToken = access
	}

	token, err := a.oauth.TokenSource(ctx, current).Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("refresh youtube token: %w", err)
	}

	if token.AccessToken != current.AccessToken {
		encrypted, err := utils.Encrypt([]byte(token.AccessToken), a.key)
		if err != nil {
			return nil, err
		}
		updated := &models.Account{AccessToken: encrypted, TokenExpiresAt: token.Expiry}
		if err := a.tokens.SetToken(ctx, account.ID, account.AccessToken, updated); err != nil {
			return nil, err
		}
		account.AccessToken = encrypted
		account.TokenExpiresAt = token.Expiry
	}

	return token, nil
}

func (a *Adapter) OnPostFileSubmission(ctx context.Context, data website.FilePostData, cancel website.CancelSignal) (*website.PostResult, error) {
	if len(data.Files) != 1 {
		return nil, fmt.Errorf("youtube posts exactly one video, got %d files", len(data.Files))
	}
	video, err := videoFor(data)
	if err != nil {
		return nil, err
	}

	token, err := a.token(ctx, data.Account)
	if err != nil {
		return nil, err
	}
	if cancel.Cancelled() {
		return nil, errors.New("cancelled before upload")
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	service, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, a.opts...)...)
	if err != nil {
		slog.Info("error creating youtube service", "error", err)
		return nil, err
	}

	file := data.Files[0]
	content, err := data.Opener.Open(ctx, file.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.FileName, err)
	}
	defer content.Close()

	uploaded, err := service.Videos.Insert([]string{"snippet", "status"}, video).Context(ctx).Media(content).Do()
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}

	slog.Info("video uploaded", "account_id", data.Account.ID, "video_id", uploaded.Id)
	return &website.PostResult{SourceURL: "https://youtu.be/" + uploaded.Id}, nil
}

func (a *Adapter) OnPostMessageSubmission(ctx context.Context, data website.MessagePostData, cancel website.CancelSignal) (*website.PostResult, error) {
	return nil, errMessageUnsupported
}

func (a *Adapter) OnValidateFileSubmission(ctx context.Context, data website.FilePostData) website.ValidationResult {
	var result website.ValidationResult
	if _, err := videoFor(data); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	if description, _ := data.Options["description"].(string); description == "" {
		result.Warnings = append(result.Warnings, "video has no description")
	}
	return result
}

func (a *Adapter) OnValidateMessageSubmission(ctx context.Context, data website.MessagePostData) website.ValidationResult {
	return website.ValidationResult{Errors: []string{errMessageUnsupported.Error()}}
}

// videoFor builds the upload metadata from the merged website options,
// falling back to the submission title.
func videoFor(data website.FilePostData) (*youtube.Video, error) {
	title, _ := data.Options["title"].(string)
	if title == "" && data.Submission != nil {
		title = data.Submission.Title
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("a title is required")
	}
	if len([]rune(title)) > maxTitle {
		return nil, fmt.Errorf("title is longer than %d characters", maxTitle)
	}

	description, _ := data.Options["description"].(string)
	if len([]rune(description)) > maxDescription {
		return nil, fmt.Errorf("description is longer than %d characters", maxDescription)
	}

	privacy, _ := data.Options["privacy"].(string)
	switch privacy {
	case "":
		privacy = defaultPrivacy
	case "public", "unlisted", "private":
	default:
		return nil, fmt.Errorf("unknown privacy status %q", privacy)
	}

	var tags []string
	switch v := data.Options["tags"].(type) {
	case []string:
		tags = v
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
	}

	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			Tags:        tags,
			CategoryId:  peopleCategory,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: privacy,
		},
	}, nil
}
