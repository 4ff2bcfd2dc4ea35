package domain

import "time"

// SocialConnection maps a user to their account on one provider.
type SocialConnection struct {
	UserID            string    `json:"userId"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"`
	Name              string    `json:"name,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Credential is a bearer token issued by the identity broker.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || c.ExpiresAt.After(now)
}
