package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

const (
	defaultAPIBase = "https://api.linkedin.com/v2"
	authorizeURL   = "https://www.linkedin.com/oauth/v2/authorization"
	tokenURL       = "https://www.linkedin.com/oauth/v2/accessToken"
	oauthScope     = "w_member_social"

	credentialsFile = "linkedin_oauth.json"
)

// Config wires the OAuth application and the credentials location.
type Config struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	AuthorURN      string
	CredentialsDir string

	// APIBaseURL and TokenURL override the LinkedIn endpoints in tests.
	APIBaseURL string
	TokenURL   string
}

// Publisher delivers posts to LinkedIn through the UGC API, holding OAuth
// tokens in a JSON credentials file.
type Publisher struct {
	oauth      *oauth2.Config
	author     string
	apiBase    string
	credPath   string
	httpClient *http.Client
	logger     *slog.Logger
	mu         sync.Mutex
}

var (
	_ ports.Publisher   = (*Publisher)(nil)
	_ ports.TokenBroker = (*Publisher)(nil)
)

// NewPublisher prepares the credentials directory and the OAuth config.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if cfg.CredentialsDir == "" {
		cfg.CredentialsDir = "./data/credentials"
	}
	if err := os.MkdirAll(cfg.CredentialsDir, 0o700); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}

	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	endpointTokenURL := cfg.TokenURL
	if endpointTokenURL == "" {
		endpointTokenURL = tokenURL
	}

	return &Publisher{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oauthScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   authorizeURL,
				TokenURL:  endpointTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		author:     cfg.AuthorURN,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		credPath:   filepath.Join(cfg.CredentialsDir, credentialsFile),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// AuthURL builds the LinkedIn authorization URL for the OAuth code flow.
func (p *Publisher) AuthURL(state string) (string, error) {
	if p.oauth.ClientID == "" || p.oauth.RedirectURL == "" {
		return "", fmt.Errorf("missing client_id or redirect_uri for OAuth")
	}
	return p.oauth.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for tokens and persists them.
func (p *Publisher) Exchange(ctx context.Context, code string) error {
	if p.oauth.ClientID == "" || p.oauth.ClientSecret == "" {
		return fmt.Errorf("missing OAuth credentials")
	}
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := p.saveToken(token); err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Info("oauth authentication successful")
	}
	return nil
}

// Publish creates a UGC post. Errors are typed so the orchestrator can
// retry transient failures only.
func (p *Publisher) Publish(ctx context.Context, content, weekKey string) (domain.PublishReceipt, error) {
	token, err := p.token(ctx)
	if err != nil {
		return domain.PublishReceipt{}, &domain.PublishError{Transient: false, Err: err}
	}

	author := p.author
	if author == "" {
		author = "urn:li:person:CURRENT"
	}
	payload, err := json.Marshal(map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": content},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	})
	if err != nil {
		return domain.PublishReceipt{}, &domain.PublishError{Transient: false, Err: fmt.Errorf("marshal post payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return domain.PublishReceipt{}, &domain.PublishError{Transient: false, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.PublishReceipt{}, &domain.PublishError{Transient: true, Err: fmt.Errorf("post to linkedin: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := fmt.Errorf("linkedin api %s: %s", resp.Status, parseAPIError(resp.Body))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		if p.logger != nil {
			p.logger.Error("linkedin api error", "week_key", weekKey, "status", resp.StatusCode, "transient", transient)
		}
		return domain.PublishReceipt{}, &domain.PublishError{Transient: transient, Err: apiErr}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return domain.PublishReceipt{}, &domain.PublishError{Transient: false, Err: fmt.Errorf("decode response: %w", err)}
	}

	receipt := domain.PublishReceipt{PostID: created.ID}
	if created.ID != "" {
		receipt.PostURL = "https://www.linkedin.com/feed/update/" + created.ID
	}
	if p.logger != nil {
		p.logger.Info("post published to linkedin", "week_key", weekKey, "post_id", created.ID)
	}
	return receipt, nil
}

// token loads the stored token, refreshing and re-persisting it when expired.
func (p *Publisher) token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := p.loadToken()
	if err != nil {
		return nil, err
	}

	if stored.Valid() {
		return stored, nil
	}
	if stored.RefreshToken == "" {
		return nil, fmt.Errorf("access token expired and no refresh token available")
	}

	refreshed, err := p.oauth.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	if err := p.saveToken(refreshed); err != nil {
		return nil, err
	}
	if p.logger != nil {
		p.logger.Info("access token refreshed")
	}
	return refreshed, nil
}

func (p *Publisher) loadToken() (*oauth2.Token, error) {
	raw, err := os.ReadFile(p.credPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no access token available, authenticate first")
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("no access token available, authenticate first")
	}
	return &token, nil
}

func (p *Publisher) saveToken(token *oauth2.Token) error {
	payload, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.credPath), "oauth.*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.credPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// parseAPIError extracts a readable message from a LinkedIn error body.
func parseAPIError(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 2048))

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err == nil {
		for _, key := range []string{"message", "error_description", "error"} {
			if value, ok := parsed[key].(string); ok && value != "" {
				return value
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
