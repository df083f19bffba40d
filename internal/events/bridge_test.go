package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

// fakeConn records publishes and routes delivered messages to the
// wildcard subscriptions the bridge registered.
type fakeConn struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]nats.MsgHandler
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		published: make(map[string][][]byte),
		handlers:  make(map[string]nats.MsgHandler),
	}
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subject] = append(f.published[subject], data)
	return nil
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subject] = cb
	return nil, nil
}

func (f *fakeConn) deliver(t *testing.T, subject string, data []byte) {
	t.Helper()
	f.mu.Lock()
	var matched []nats.MsgHandler
	for pattern, h := range f.handlers {
		if subjectMatches(pattern, subject) {
			matched = append(matched, h)
		}
	}
	f.mu.Unlock()
	require.NotEmpty(t, matched, "no subscription matches %s", subject)
	for _, h := range matched {
		h(&nats.Msg{Subject: subject, Data: data})
	}
}

func subjectMatches(pattern, subject string) bool {
	pp := strings.Split(pattern, ".")
	sp := strings.Split(subject, ".")
	if len(pp) != len(sp) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != sp[i] {
			return false
		}
	}
	return true
}

func (f *fakeConn) lastOn(t *testing.T, subject string) []byte {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.published[subject]
	require.NotEmpty(t, msgs, "nothing published on %s", subject)
	return msgs[len(msgs)-1]
}

func newBridge(t *testing.T, active ActiveLookup) (*Bridge, *fakeConn, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	nc := newFakeConn()
	b := NewBridge(nc, rdb, active)
	require.NoError(t, b.Start())
	return b, nc, rdb
}

func TestCampaignProgressFansOutToUserSubject(t *testing.T) {
	b, nc, _ := newBridge(t, nil)

	require.NoError(t, b.CampaignProgress(7, model.CampaignProgress{
		CampaignID: 3, SuccessCount: 2, FailureCount: 1, TotalRecipients: 10,
	}))

	var got model.CampaignProgress
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.campaignProgress"), &got))
	assert.Equal(t, 3, got.CampaignID)
	assert.Equal(t, 2, got.SuccessCount)
}

func TestCampaignStatusUpdate(t *testing.T) {
	b, nc, _ := newBridge(t, nil)

	require.NoError(t, b.CampaignStatus(7, 3, model.StatusCompleted))

	var got model.CampaignStatusUpdate
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.campaignStatusUpdate"), &got))
	assert.Equal(t, 3, got.CampaignID)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestActiveCampaignCachesAndPublishes(t *testing.T) {
	b, nc, rdb := newBridge(t, nil)

	campaign := &model.Campaign{ID: 3, Name: "promo", Status: model.StatusSending}
	require.NoError(t, b.ActiveCampaign(7, campaign))

	var got model.Campaign
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.activeCampaignUpdate"), &got))
	assert.Equal(t, 3, got.ID)

	cached, err := rdb.Get(context.Background(), "active_campaign:7").Result()
	require.NoError(t, err)
	assert.Contains(t, cached, `"promo"`)
}

func TestActiveCampaignEndedPublishesNullAndDropsCache(t *testing.T) {
	b, nc, rdb := newBridge(t, nil)
	require.NoError(t, b.ActiveCampaign(7, &model.Campaign{ID: 3, Status: model.StatusSending}))

	require.NoError(t, b.ActiveCampaign(7, nil))

	assert.Equal(t, "null", string(nc.lastOn(t, "user.7.activeCampaignUpdate")))
	err := rdb.Get(context.Background(), "active_campaign:7").Err()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestRequestActiveCampaignAnsweredFromCache(t *testing.T) {
	lookupCalls := 0
	_, nc, rdb := newBridge(t, func(int) (*model.Campaign, error) {
		lookupCalls++
		return nil, nil
	})
	require.NoError(t, rdb.Set(context.Background(), "active_campaign:7", `{"id":3}`, 0).Err())

	nc.deliver(t, "user.7.requestActiveCampaign", nil)

	assert.JSONEq(t, `{"id":3}`, string(nc.lastOn(t, "user.7.activeCampaignUpdate")))
	assert.Zero(t, lookupCalls, "cache hit must not query the database")
}

func TestRequestActiveCampaignCacheMissFallsBackToLookup(t *testing.T) {
	_, nc, rdb := newBridge(t, func(userID int) (*model.Campaign, error) {
		return &model.Campaign{ID: 3, UserID: userID, Status: model.StatusSending}, nil
	})

	nc.deliver(t, "user.7.requestActiveCampaign", nil)

	var got model.Campaign
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.activeCampaignUpdate"), &got))
	assert.Equal(t, 3, got.ID)

	// answer is cached for the next request
	require.NoError(t, rdb.Get(context.Background(), "active_campaign:7").Err())
}

func TestRequestActiveCampaignNoneRunning(t *testing.T) {
	_, nc, _ := newBridge(t, func(int) (*model.Campaign, error) { return nil, nil })

	nc.deliver(t, "user.7.requestActiveCampaign", nil)

	assert.Equal(t, "null", string(nc.lastOn(t, "user.7.activeCampaignUpdate")))
}

func TestRequestDeviceStatusDefaultsToDisconnected(t *testing.T) {
	_, nc, _ := newBridge(t, nil)

	nc.deliver(t, "user.7.requestDeviceStatus", nil)

	var got model.DeviceStatus
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.deviceStatusUpdate"), &got))
	assert.False(t, got.IsConnected)
}

func TestDeviceAgentReportCachedAndForwarded(t *testing.T) {
	_, nc, rdb := newBridge(t, nil)

	report, _ := json.Marshal(model.DeviceStatus{
		IsConnected: true, BatteryLevel: 81, SMSPackage: "prepaid", DeviceModel: "SM-A155M",
	})
	nc.deliver(t, "device.7.status", report)

	var got model.DeviceStatus
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.deviceStatusUpdate"), &got))
	assert.True(t, got.IsConnected)
	assert.Equal(t, 81, got.BatteryLevel)

	// request events now answer from the cached report
	require.NoError(t, rdb.Get(context.Background(), "device_status:7").Err())
	nc.deliver(t, "user.7.requestDeviceStatus", nil)
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.deviceStatusUpdate"), &got))
	assert.Equal(t, "SM-A155M", got.DeviceModel)
}

func TestJoinUserRoomPushesFullState(t *testing.T) {
	b, nc, _ := newBridge(t, func(int) (*model.Campaign, error) { return nil, nil })
	require.NoError(t, b.DeviceStatus(7, model.DeviceStatus{IsConnected: true}))

	nc.deliver(t, "user.7.joinUserRoom", nil)

	assert.Equal(t, "null", string(nc.lastOn(t, "user.7.activeCampaignUpdate")))
	var got model.DeviceStatus
	require.NoError(t, json.Unmarshal(nc.lastOn(t, "user.7.deviceStatusUpdate"), &got))
	assert.True(t, got.IsConnected)
}

func TestMalformedDeviceReportIgnored(t *testing.T) {
	_, nc, rdb := newBridge(t, nil)

	nc.deliver(t, "device.7.status", []byte("not json"))

	assert.Empty(t, nc.published["user.7.deviceStatusUpdate"])
	assert.ErrorIs(t, rdb.Get(context.Background(), "device_status:7").Err(), redis.Nil)
}
