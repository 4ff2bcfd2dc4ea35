package application_test

import (
	"context"
	"testing"

	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/publishing/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) connectedManager(adapters ...domain.ProviderAdapter) *application.JobManager {
	return application.NewJobManager(application.JobManagerDeps{
		Jobs:        f.jobs,
		Content:     f.content,
		Connections: f.connections,
		Broker:      f.broker,
		Adapters:    adapters,
	})
}

func TestConnect_ThenPublishIsNoLongerNotConnected(t *testing.T) {
	f := newFixture(t)
	f.broker.Grant("u1", "facebook", "fb")
	m := f.connectedManager(providertest.NewAdapter("facebook"))

	results, err := m.Preview(userCtx("u1"), application.SubmitRequest{Caption: "hi", Providers: []string{"facebook"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "not_connected", results[0].Error)

	conn, err := m.Connect(userCtx("u1"), application.ConnectRequest{Provider: " Facebook", ProviderAccountID: " page-1 ", Name: "Page"})
	require.NoError(t, err)
	assert.Equal(t, "facebook", conn.Provider)
	assert.Equal(t, "page-1", conn.ProviderAccountID)

	results, err = m.Preview(userCtx("u1"), application.SubmitRequest{Caption: "hi", Providers: []string{"facebook"}})
	require.NoError(t, err)
	assert.True(t, results[0].OK)
}

func TestConnect_RejectsUnknownProviderAndAnonymous(t *testing.T) {
	f := newFixture(t)
	m := f.connectedManager(providertest.NewAdapter("facebook"))

	_, err := m.Connect(userCtx("u1"), application.ConnectRequest{Provider: "myspace", ProviderAccountID: "x"})
	assert.ErrorIs(t, err, application.ErrUnknownProvider)

	_, err = m.Connect(context.Background(), application.ConnectRequest{Provider: "facebook", ProviderAccountID: "x"})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.manager().Connect(userCtx("u1"), application.ConnectRequest{Provider: "facebook", ProviderAccountID: "x"})
	assert.ErrorIs(t, err, application.ErrConnectionsDisabled)
}

func TestConnections_ListsSupportedProviders(t *testing.T) {
	f := newFixture(t)
	m := f.connectedManager(providertest.NewAdapter("instagram"), providertest.NewAdapter("facebook"))
	require.NoError(t, f.connections.Upsert(context.Background(), &domain.SocialConnection{UserID: "u1", Provider: "facebook", ProviderAccountID: "1"}))
	require.NoError(t, f.connections.Upsert(context.Background(), &domain.SocialConnection{UserID: "u1", Provider: "legacy", ProviderAccountID: "2"}))
	require.NoError(t, f.connections.Upsert(context.Background(), &domain.SocialConnection{UserID: "u2", Provider: "instagram", ProviderAccountID: "3"}))

	list, err := m.Connections(userCtx("u1"))
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "facebook", list[0].Provider)
	assert.True(t, list[0].Connected)
	assert.Equal(t, "1", list[0].Connection.ProviderAccountID)

	assert.Equal(t, "instagram", list[1].Provider)
	assert.False(t, list[1].Connected)
	assert.Nil(t, list[1].Connection)

	assert.Equal(t, "legacy", list[2].Provider)
	assert.True(t, list[2].Connected)
}
