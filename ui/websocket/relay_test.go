package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/ui/rest/middleware"
	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRelay struct {
	reason application.CloseReason
	err    error
	msgs   []application.RelayMessage
	seen   chan domain.Session
}

func (r *scriptedRelay) Run(ctx context.Context, session domain.Session, jobID string, emit func(application.RelayMessage) error) (application.CloseReason, error) {
	if r.seen != nil {
		r.seen <- session
	}
	for _, m := range r.msgs {
		if err := emit(m); err != nil {
			return application.CloseGone, err
		}
	}
	return r.reason, r.err
}

// withUser stands in for middleware.Session.
func withUser(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals(middleware.SessionLocal, domain.Session{UserID: userID})
		}
		return c.Next()
	}
}

func serveRelay(t *testing.T, relay Relayer, userID string) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", withUser(userID), RelayHandler(relay))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/ws"
}

func TestRelayHandler_RefusesBeforeUpgrade(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", withUser(""), RelayHandler(&scriptedRelay{}))
	app.Get("/user", withUser("u1"), RelayHandler(&scriptedRelay{}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/user?jobId=pub_1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	upgradeReq := func(path string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		return req
	}

	resp, err = app.Test(upgradeReq("/anon?jobId=pub_1"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(upgradeReq("/user"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRelayHandler_StreamsThenClosesNormally(t *testing.T) {
	job := &domain.PublishJob{ID: "pub_1", Status: domain.JobStatusCompleted}
	relay := &scriptedRelay{
		reason: application.CloseNormal,
		msgs: []application.RelayMessage{
			{OK: true, Type: application.RelayStatus, Job: job},
			{OK: true, Type: application.RelayDone, Job: job},
		},
		seen: make(chan domain.Session, 1),
	}
	url := serveRelay(t, relay, "u1")

	conn, _, err := fws.DefaultDialer.Dial(url+"?jobId=pub_1", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	for _, want := range []application.RelayMessageType{application.RelayStatus, application.RelayDone} {
		var msg application.RelayMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, want, msg.Type)
		assert.Equal(t, "pub_1", msg.Job.ID)
	}

	_, _, err = conn.ReadMessage()
	var closeErr *fws.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, 1000, closeErr.Code)
	assert.Equal(t, "u1", (<-relay.seen).UserID)
}

func TestRelayHandler_ForbiddenCloseCode(t *testing.T) {
	relay := &scriptedRelay{reason: application.CloseForbidden, err: domain.ErrForbidden}
	url := serveRelay(t, relay, "u2")

	conn, _, err := fws.DefaultDialer.Dial(url+"?jobId=pub_1", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	_, _, err = conn.ReadMessage()
	var closeErr *fws.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, 4403, closeErr.Code)
	assert.Equal(t, "forbidden", closeErr.Text)
}
