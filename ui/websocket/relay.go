package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/AzielCF/az-publish/publishing/application"
	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/AzielCF/az-publish/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const jobIDLocal = "relay_job_id"

// Relayer is the part of the status relay the transport needs.
type Relayer interface {
	Run(ctx context.Context, session domain.Session, jobID string, emit func(application.RelayMessage) error) (application.CloseReason, error)
}

// RelayHandler upgrades GET /publish-jobs/ws?jobId= to a websocket that
// streams the job's status. It must run behind middleware.Session, so an
// unauthenticated request is refused before the upgrade.
func RelayHandler(relay Relayer) fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		session, _ := conn.Locals(middleware.SessionLocal).(domain.Session)
		jobID, _ := conn.Locals(jobIDLocal).(string)
		serve(conn, relay, session, jobID)
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.SendStatus(fiber.StatusUpgradeRequired)
		}
		if _, ok := middleware.SessionFrom(c); !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "unauthenticated"})
		}
		jobID := c.Query("jobId")
		if jobID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "jobId is required"})
		}
		c.Locals(jobIDLocal, jobID)
		return upgrade(c)
	}
}

func serve(conn *websocket.Conn, relay Relayer, session domain.Session, jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client never sends anything we act on; reading only detects the
	// disconnect and answers control frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
					logrus.Debugf("[WS] Relay read error for job %s: %v", jobID, err)
				}
				return
			}
		}
	}()

	reason, err := relay.Run(ctx, session, jobID, func(msg application.RelayMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(msg)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrTimeout):
		logrus.Debugf("[WS] Relay for job %s closed: %s", jobID, reason)
	default:
		logrus.WithError(err).Warnf("[WS] Relay for job %s closed: %s", jobID, reason)
	}

	if reason != application.CloseGone {
		msg := websocket.FormatCloseMessage(reason.Code(), reason.String())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	_ = conn.Close()
}
