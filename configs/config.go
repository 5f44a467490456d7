package config

import "os"

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// PlatformCredentials holds the app-level credentials for one platform.
// An all-empty entry (and Enabled=false) disables the platform entirely:
// no provider or handler is constructed for it.
type PlatformCredentials struct {
	ClientID     string
	ClientSecret string
	Enabled      bool
}

func (p PlatformCredentials) Configured() bool {
	return p.Enabled || p.ClientID != "" || p.ClientSecret != ""
}

type Config struct {
	Twitter   PlatformCredentials
	LinkedIn  PlatformCredentials
	Tiktok    PlatformCredentials
	Instagram PlatformCredentials
	Google    PlatformCredentials
	Bluesky   PlatformCredentials
	Mastodon  PlatformCredentials
	Devto     PlatformCredentials
	Discord   PlatformCredentials

	MastodonBaseURL string
	BlueskyService  string

	PostgresURI string
	RedisURI    string
	FrontendURL string
	R2          R2
	SecretKey   string
	CookieName  string
}

func LoadConfig() *Config {
	return &Config{
		Twitter: PlatformCredentials{
			ClientID:     getEnv("TWITTER_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
		},
		LinkedIn: PlatformCredentials{
			ClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
			ClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		},
		Tiktok: PlatformCredentials{
			ClientID:     getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
		},
		Instagram: PlatformCredentials{
			ClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
			ClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		},
		Google: PlatformCredentials{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
		Bluesky:  PlatformCredentials{Enabled: getEnv("BLUESKY_ENABLED", "") == "true"},
		Mastodon: PlatformCredentials{Enabled: getEnv("MASTODON_ENABLED", "") == "true"},
		Devto:    PlatformCredentials{Enabled: getEnv("DEVTO_ENABLED", "") == "true"},
		Discord:  PlatformCredentials{Enabled: getEnv("DISCORD_ENABLED", "") == "true"},

		MastodonBaseURL: getEnv("MASTODON_BASE_URL", "https://mastodon.social"),
		BlueskyService:  getEnv("BLUESKY_SERVICE", "https://bsky.social"),

		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postbridge_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
