// Package events bridges backend state changes onto the push channel.
// Progress and status updates fan out to per-user subjects; the last
// known device status and active campaign are cached in Redis so
// request events can be answered without touching Postgres.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/smsleopard-dashboard/internal/channel"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

// Publisher is what the send pipeline needs from the bridge.
type Publisher interface {
	CampaignProgress(userID int, ev model.CampaignProgress) error
	CampaignStatus(userID, campaignID int, status model.CampaignStatus) error
	ActiveCampaign(userID int, c *model.Campaign) error
	DeviceStatus(userID int, ds model.DeviceStatus) error
}

// ActiveLookup resolves the in-flight campaign for a user on a cache
// miss.
type ActiveLookup func(userID int) (*model.Campaign, error)

// Conn is the slice of *nats.Conn the bridge uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type Bridge struct {
	nc     Conn
	rdb    *redis.Client
	active ActiveLookup
	subs   []*nats.Subscription
}

func NewBridge(nc Conn, rdb *redis.Client, active ActiveLookup) *Bridge {
	return &Bridge{nc: nc, rdb: rdb, active: active}
}

func activeKey(userID int) string { return fmt.Sprintf("active_campaign:%d", userID) }
func deviceKey(userID int) string { return fmt.Sprintf("device_status:%d", userID) }

// ====================== Outbound ======================

func (b *Bridge) publish(userID int, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.nc.Publish(channel.Subject(userID, event), body)
}

func (b *Bridge) CampaignProgress(userID int, ev model.CampaignProgress) error {
	return b.publish(userID, "campaignProgress", ev)
}

func (b *Bridge) CampaignStatus(userID, campaignID int, status model.CampaignStatus) error {
	return b.publish(userID, "campaignStatusUpdate", model.CampaignStatusUpdate{
		CampaignID: campaignID,
		Status:     status,
	})
}

// ActiveCampaign publishes the current in-flight campaign, or null
// when it ended, and keeps the Redis cache in step.
func (b *Bridge) ActiveCampaign(userID int, c *model.Campaign) error {
	ctx := context.Background()
	if c == nil {
		if err := b.rdb.Del(ctx, activeKey(userID)).Err(); err != nil {
			log.Println("⚠️ Failed to drop active campaign cache:", err)
		}
		return b.nc.Publish(channel.Subject(userID, "activeCampaignUpdate"), []byte("null"))
	}

	body, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := b.rdb.Set(ctx, activeKey(userID), body, 0).Err(); err != nil {
		log.Println("⚠️ Failed to cache active campaign:", err)
	}
	return b.nc.Publish(channel.Subject(userID, "activeCampaignUpdate"), body)
}

func (b *Bridge) DeviceStatus(userID int, ds model.DeviceStatus) error {
	body, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	if err := b.rdb.Set(context.Background(), deviceKey(userID), body, 0).Err(); err != nil {
		log.Println("⚠️ Failed to cache device status:", err)
	}
	return b.nc.Publish(channel.Subject(userID, "deviceStatusUpdate"), body)
}

// ====================== Inbound ======================

// Start wires the request events the dashboard emits. Each handler
// answers on the same user's subject space.
func (b *Bridge) Start() error {
	if err := b.subscribeUserEvent("requestActiveCampaign", b.answerActiveCampaign); err != nil {
		return err
	}
	if err := b.subscribeUserEvent("requestDeviceStatus", b.answerDeviceStatus); err != nil {
		return err
	}
	// Joining the room pushes the full current state once, so a fresh
	// dashboard does not wait for the next change.
	if err := b.subscribeUserEvent("joinUserRoom", func(userID int) {
		b.answerActiveCampaign(userID)
		b.answerDeviceStatus(userID)
	}); err != nil {
		return err
	}
	// Device agents report on their own subject space.
	sub, err := b.nc.Subscribe("device.*.status", func(m *nats.Msg) {
		userID, ok := userIDFromSubject(m.Subject)
		if !ok {
			return
		}
		var ds model.DeviceStatus
		if err := json.Unmarshal(m.Data, &ds); err != nil {
			log.Println("⚠️ Invalid device status report:", err)
			return
		}
		if err := b.DeviceStatus(userID, ds); err != nil {
			log.Println("⚠️ Failed to forward device status:", err)
		}
	})
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	log.Println("✅ Event bridge listening")
	return nil
}

func (b *Bridge) subscribeUserEvent(event string, handler func(userID int)) error {
	sub, err := b.nc.Subscribe("user.*."+event, func(m *nats.Msg) {
		userID, ok := userIDFromSubject(m.Subject)
		if !ok {
			return
		}
		handler(userID)
	})
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	return nil
}

func (b *Bridge) answerActiveCampaign(userID int) {
	ctx := context.Background()
	cached, err := b.rdb.Get(ctx, activeKey(userID)).Bytes()
	if err == nil {
		_ = b.nc.Publish(channel.Subject(userID, "activeCampaignUpdate"), cached)
		return
	}
	if err != redis.Nil {
		log.Println("⚠️ Active campaign cache read failed:", err)
	}

	var campaign *model.Campaign
	if b.active != nil {
		if campaign, err = b.active(userID); err != nil {
			log.Println("⚠️ Active campaign lookup failed:", err)
			return
		}
	}
	if err := b.ActiveCampaign(userID, campaign); err != nil {
		log.Println("⚠️ Failed to publish active campaign:", err)
	}
}

func (b *Bridge) answerDeviceStatus(userID int) {
	cached, err := b.rdb.Get(context.Background(), deviceKey(userID)).Bytes()
	if err == redis.Nil {
		// No report yet: answer with a disconnected default.
		body, _ := json.Marshal(model.DeviceStatus{})
		cached = body
	} else if err != nil {
		log.Println("⚠️ Device status cache read failed:", err)
		return
	}
	_ = b.nc.Publish(channel.Subject(userID, "deviceStatusUpdate"), cached)
}

func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

func userIDFromSubject(subject string) (int, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 {
		return 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

var _ Publisher = (*Bridge)(nil)
