package channel

import (
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// Bounded retry: the transport gives up after this many attempts
	// instead of reconnecting forever.
	maxReconnects = 5
	reconnectWait = 2 * time.Second
)

// NATS is the production Channel, scoped to one user's subjects.
type NATS struct {
	conn   *nats.Conn
	userID int
}

// DialNATS opens the event channel for an authenticated user. The
// credential token doubles as the channel authentication.
func DialNATS(url, token string, userID int) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("smsleopard-dashboard"),
		nats.Token(token),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Println("⚠️ Event channel disconnected:", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Println("✅ Event channel reconnected to", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{conn: conn, userID: userID}, nil
}

func (c *NATS) Subscribe(event string, h Handler) (func(), error) {
	sub, err := c.conn.Subscribe(Subject(c.userID, event), func(m *nats.Msg) {
		h(m.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = sub.Unsubscribe()
	}, nil
}

func (c *NATS) Emit(event string, payload any) error {
	body, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return c.conn.Publish(Subject(c.userID, event), body)
}

func (c *NATS) Close() {
	c.conn.Close()
}
