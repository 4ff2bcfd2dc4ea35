package httpclient

import (
	"context"
	"errors"
	"strings"

	"github.com/AzielCF/az-publish/publishing/domain"
)

// ProviderEndpoint publishes through an HTTP service that speaks one
// network's API on our behalf.
type ProviderEndpoint struct {
	client *Client
	name   string
	url    string
}

func NewProviderEndpoint(client *Client, name, url string) *ProviderEndpoint {
	return &ProviderEndpoint{client: client, name: strings.ToLower(name), url: url}
}

func (p *ProviderEndpoint) Name() string { return p.name }

type publishPayload struct {
	Caption string   `json:"caption"`
	Media   []string `json:"media,omitempty"`
	DryRun  bool     `json:"dryRun,omitempty"`
}

// providerResponse covers the field spellings endpoints use in practice.
type providerResponse struct {
	OK         *bool  `json:"ok"`
	Success    *bool  `json:"success"`
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	PostID     string `json:"post_id"`
	Error      any    `json:"error"`
	Message    string `json:"message"`
}

func (r providerResponse) outcome() domain.ProviderOutcome {
	ok := true
	switch {
	case r.OK != nil:
		ok = *r.OK
	case r.Success != nil:
		ok = *r.Success
	}

	out := domain.ProviderOutcome{OK: ok}
	for _, id := range []string{r.ExternalID, r.ID, r.PostID} {
		if id != "" {
			out.ExternalID = id
			break
		}
	}
	if !ok {
		out.Error = errorText(r.Error)
		if out.Error == "" {
			out.Error = r.Message
		}
		if out.Error == "" {
			out.Error = string(domain.KindProviderError)
		}
	}
	return out
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return "provider_error"
}

func (p *ProviderEndpoint) Publish(ctx context.Context, in domain.PublishInput) (domain.ProviderOutcome, error) {
	headers := map[string]string{"Authorization": bearer(in.Credential.Token)}
	payload := publishPayload{Caption: in.Caption, Media: in.Media, DryRun: in.DryRun}

	var resp providerResponse
	err := p.client.jsonRequest(ctx, "POST", p.url, headers, payload, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !temporary(statusErr.Code) {
			// the network rejected the post; that is an outcome, not a call failure
			return domain.ProviderOutcome{OK: false, Error: rejection(statusErr)}, nil
		}
		return domain.ProviderOutcome{}, err
	}
	return resp.outcome(), nil
}

func rejection(e *StatusError) string {
	var resp providerResponse
	if jsonErr := decodeLoose(e.Body, &resp); jsonErr == nil {
		if msg := errorText(resp.Error); msg != "" {
			return msg
		}
		if resp.Message != "" {
			return resp.Message
		}
	}
	return e.Error()
}
