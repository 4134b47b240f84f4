package domain

import "time"

// Platform identifies one of the supported social providers.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{
	PlatformInstagram,
	PlatformFacebook,
	PlatformTikTok,
	PlatformYouTube,
	PlatformTwitter,
	PlatformLinkedIn,
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// SelfValidating reports whether the platform's tokens are validated via an
// introspection call instead of being refreshed with a refresh grant. This is
// the case for the Meta platforms, whose long-lived page tokens carry no
// refresh token.
func (p Platform) SelfValidating() bool {
	return p == PlatformInstagram || p == PlatformFacebook
}

// AuthStatus is the lifecycle state of a connected account's credentials.
type AuthStatus string

const (
	AuthStatusActive  AuthStatus = "active"
	AuthStatusExpired AuthStatus = "expired"
	AuthStatusRevoked AuthStatus = "revoked"
	AuthStatusPending AuthStatus = "pending"
)

// SocialAccount represents a connected provider account for a tenant. Token
// fields hold ciphertext; decryption is the token vault's concern.
type SocialAccount struct {
	ID                string     `json:"id" db:"id"`
	TenantID          string     `json:"tenant_id" db:"tenant_id"`
	Platform          Platform   `json:"platform" db:"platform"`
	ExternalAccountID string     `json:"external_account_id" db:"external_account_id"`
	AccountName       string     `json:"account_name" db:"account_name"`
	AccessTokenEnc    []byte     `json:"-" db:"access_token_enc"`
	RefreshTokenEnc   []byte     `json:"-" db:"refresh_token_enc"`
	TokenExpiresAt    *time.Time `json:"token_expires_at" db:"token_expires_at"`
	AuthStatus        AuthStatus `json:"auth_status" db:"auth_status"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}
