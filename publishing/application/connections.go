package application

import (
	"context"
	"errors"
	"strings"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/sirupsen/logrus"
)

// ErrUnknownProvider rejects connections to providers without an adapter.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrConnectionsDisabled is returned when no connection store is wired.
var ErrConnectionsDisabled = errors.New("social connections are not configured")

type ConnectRequest struct {
	Provider          string `json:"-"`
	ProviderAccountID string `json:"providerAccountId"`
	Name              string `json:"name"`
}

// ProviderConnection is one supported provider and the session user's
// account on it, if any.
type ProviderConnection struct {
	Provider   string                   `json:"provider"`
	Connected  bool                     `json:"connected"`
	Connection *domain.SocialConnection `json:"connection,omitempty"`
}

// Connections lists every provider with an adapter, plus connections to
// providers that lost theirs.
func (m *JobManager) Connections(ctx context.Context) ([]ProviderConnection, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	if m.connections == nil {
		return nil, ErrConnectionsDisabled
	}
	existing, err := m.connections.ListForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	byProvider := make(map[string]domain.SocialConnection, len(existing))
	for _, c := range existing {
		byProvider[c.Provider] = c
	}
	out := make([]ProviderConnection, 0, len(m.adapters)+len(existing))
	for _, name := range m.Providers() {
		pc := ProviderConnection{Provider: name}
		if c, ok := byProvider[name]; ok {
			pc.Connected = true
			pc.Connection = &c
			delete(byProvider, name)
		}
		out = append(out, pc)
	}
	for _, c := range existing {
		if _, ok := byProvider[c.Provider]; ok {
			c := c
			out = append(out, ProviderConnection{Provider: c.Provider, Connected: true, Connection: &c})
		}
	}
	return out, nil
}

// Connect records the session user's account on a provider, replacing any
// earlier one.
func (m *JobManager) Connect(ctx context.Context, req ConnectRequest) (*domain.SocialConnection, error) {
	session, err := domain.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	if m.connections == nil {
		return nil, ErrConnectionsDisabled
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if _, ok := m.adapters[provider]; !ok {
		return nil, ErrUnknownProvider
	}

	conn := &domain.SocialConnection{
		UserID:            session.UserID,
		Provider:          provider,
		ProviderAccountID: strings.TrimSpace(req.ProviderAccountID),
		Name:              strings.TrimSpace(req.Name),
		CreatedAt:         m.now(),
	}
	if err := m.connections.Upsert(ctx, conn); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"user_id": session.UserID, "provider": provider}).Info("[PUBLISH_JOB] Social connection saved")
	return conn, nil
}
