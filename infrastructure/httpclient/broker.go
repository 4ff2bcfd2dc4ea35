package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
)

// IdentityBroker asks the external broker for a user's provider credential.
// GET <base>/credentials/<user>/<provider> -> {"token": "...", "expiresAt": "..."}
type IdentityBroker struct {
	client  *Client
	baseURL string
	apiKey  string
}

func NewIdentityBroker(client *Client, baseURL, apiKey string) *IdentityBroker {
	return &IdentityBroker{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type credentialResponse struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (b *IdentityBroker) Credential(ctx context.Context, userID, provider string) (domain.Credential, error) {
	target := fmt.Sprintf("%s/credentials/%s/%s", b.baseURL, url.PathEscape(userID), url.PathEscape(strings.ToLower(provider)))

	var resp credentialResponse
	err := b.client.jsonRequest(ctx, "GET", target, map[string]string{"Authorization": bearer(b.apiKey)}, nil, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return domain.Credential{}, domain.ErrConnectionNotFound
		}
		return domain.Credential{}, err
	}
	if resp.Token == "" {
		return domain.Credential{}, errors.New("broker returned an empty token")
	}
	cred := domain.Credential{Token: resp.Token}
	if resp.ExpiresAt != nil {
		cred.ExpiresAt = resp.ExpiresAt.UTC()
	}
	return cred, nil
}
