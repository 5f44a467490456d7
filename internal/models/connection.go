package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	PlatformTwitter   = "twitter"
	PlatformLinkedIn  = "linkedin"
	PlatformTiktok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformYoutube   = "youtube"
	PlatformBluesky   = "bluesky"
	PlatformMastodon  = "mastodon"
	PlatformDevto     = "devto"
	PlatformDiscord   = "discord"
)

// Credentials is the closed set of per-platform secret shapes. Code that
// needs platform-specific fields must type-switch on the concrete type;
// the connection's Platform tag decides which concrete type is present.
type Credentials interface {
	credentialKind() string
}

// OAuthCredentials covers the OAuth2 platforms (twitter, linkedin, tiktok,
// instagram, youtube). ExpiresAt is nil when the platform never reported an
// expiry; a nil expiry is always treated as needing refresh.
type OAuthCredentials struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AccountID    string     `json:"account_id,omitempty"`
}

func (OAuthCredentials) credentialKind() string { return "oauth2" }

// SessionCredentials is the bluesky handle/app-password session pair. The
// JWTs carry their own expiry claim; there is no refresh_token rotation.
type SessionCredentials struct {
	AccessJwt  string `json:"access_jwt"`
	RefreshJwt string `json:"refresh_jwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

func (SessionCredentials) credentialKind() string { return "session" }

type APIKeyCredentials struct {
	APIKey string `json:"api_key"`
}

func (APIKeyCredentials) credentialKind() string { return "api_key" }

type WebhookCredentials struct {
	WebhookURL   string `json:"webhook_url"`
	WebhookID    string `json:"webhook_id,omitempty"`
	WebhookToken string `json:"webhook_token,omitempty"`
}

func (WebhookCredentials) credentialKind() string { return "webhook" }

// TokenCredentials is a personal access token (mastodon).
type TokenCredentials struct {
	Token string `json:"token"`
}

func (TokenCredentials) credentialKind() string { return "token" }

// Connection is one user's authenticated relationship with one platform.
// Exactly one connection exists per (UserID, Platform). IsValid=false means
// the record must not be used for publishing without a refresh attempt or a
// new handshake.
type Connection struct {
	UserID            string      `json:"uid"`
	Platform          string      `json:"platform"`
	IsValid           bool        `json:"is_valid"`
	NeedsReconnection bool        `json:"needs_reconnection"`
	LastValidated     *time.Time  `json:"last_validated,omitempty"`
	Credentials       Credentials `json:"-"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NewCredentialsFor returns the zero credential variant for a platform tag.
func NewCredentialsFor(platform string) (Credentials, error) {
	switch platform {
	case PlatformTwitter, PlatformLinkedIn, PlatformTiktok, PlatformInstagram, PlatformYoutube:
		return &OAuthCredentials{}, nil
	case PlatformBluesky:
		return &SessionCredentials{}, nil
	case PlatformDevto:
		return &APIKeyCredentials{}, nil
	case PlatformDiscord:
		return &WebhookCredentials{}, nil
	case PlatformMastodon:
		return &TokenCredentials{}, nil
	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

type connectionJSON struct {
	UserID            string          `json:"uid"`
	Platform          string          `json:"platform"`
	IsValid           bool            `json:"is_valid"`
	NeedsReconnection bool            `json:"needs_reconnection"`
	LastValidated     *time.Time      `json:"last_validated,omitempty"`
	Credentials       json.RawMessage `json:"credentials,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (c Connection) MarshalJSON() ([]byte, error) {
	out := connectionJSON{
		UserID:            c.UserID,
		Platform:          c.Platform,
		IsValid:           c.IsValid,
		NeedsReconnection: c.NeedsReconnection,
		LastValidated:     c.LastValidated,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if c.Credentials != nil {
		raw, err := json.Marshal(c.Credentials)
		if err != nil {
			return nil, err
		}
		out.Credentials = raw
	}
	return json.Marshal(out)
}

func (c *Connection) UnmarshalJSON(data []byte) error {
	var in connectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.UserID = in.UserID
	c.Platform = in.Platform
	c.IsValid = in.IsValid
	c.NeedsReconnection = in.NeedsReconnection
	c.LastValidated = in.LastValidated
	c.CreatedAt = in.CreatedAt
	c.UpdatedAt = in.UpdatedAt
	if len(in.Credentials) == 0 {
		c.Credentials = nil
		return nil
	}
	creds, err := NewCredentialsFor(in.Platform)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(in.Credentials, creds); err != nil {
		return err
	}
	c.Credentials = creds
	return nil
}

// OAuth returns the OAuth2 credential variant, or an error when the
// connection holds a different shape. Handlers call this after narrowing on
// the platform tag; a mismatch is a programmer error, not a soft failure.
func (c *Connection) OAuth() (*OAuthCredentials, error) {
	creds, ok := c.Credentials.(*OAuthCredentials)
	if !ok {
		return nil, fmt.Errorf("connection for %s does not carry oauth2 credentials", c.Platform)
	}
	return creds, nil
}

func (c *Connection) Session() (*SessionCredentials, error) {
	creds, ok := c.Credentials.(*SessionCredentials)
	if !ok {
		return nil, fmt.Errorf("connection for %s does not carry session credentials", c.Platform)
	}
	return creds, nil
}

// OAuthState is the ephemeral handshake record written at initiate and
// consumed (read-then-delete, single use) at callback.
type OAuthState struct {
	UserID       string    `json:"uid"`
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConnectionUpdate is a partial update applied through the store. Nil fields
// are left untouched.
type ConnectionUpdate struct {
	IsValid           *bool
	NeedsReconnection *bool
	LastValidated     *time.Time
	Credentials       Credentials
}
