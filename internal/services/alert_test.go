package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/Cyvadra/tv-autotrade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (f *fakeSubmitter) Submit(alert *models.Alert) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return true
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type alertFixture struct {
	db        *gorm.DB
	svc       *AlertService
	hub       *Hub
	users     map[string]*models.User
	submitted *fakeSubmitter
}

func newAlertFixture(t *testing.T, mode string) *alertFixture {
	t.Helper()
	db := testutil.NewDB(t)
	users := NewUserService(db)
	seeded := seedUsers(t, users)

	gate := newTestGate(t, db, mode, &testClock{t: time.Now()})
	hub := NewHub()
	sub := &fakeSubmitter{}
	return &alertFixture{
		db:        db,
		svc:       NewAlertService(db, gate, hub, users, nil, sub),
		hub:       hub,
		users:     seeded,
		submitted: sub,
	}
}

func (f *alertFixture) alertCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Alert{}).Count(&n).Error)
	return n
}

func TestIngestReceived(t *testing.T) {
	f := newAlertFixture(t, config.DedupTwoTier)
	ctx := context.Background()

	listener := &fakeListener{id: "l1", user: f.users["alice"]}
	f.hub.Register(listener)

	res, err := f.svc.Ingest(ctx, []byte(`{"symbol":"BINANCE:BTCUSDT.P","action":"buy","price":"95150.5"}`), SharedFeed)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, res.Status)
	require.NotEmpty(t, res.AlertID)

	stored, err := f.svc.Get(ctx, res.AlertID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", stored.Symbol)
	assert.Equal(t, "BTC", stored.Instrument)
	assert.Equal(t, models.ActionBuy, stored.Action)
	require.NotNil(t, stored.Price)
	assert.Equal(t, 95150.5, *stored.Price)

	assert.Equal(t, 1, listener.received())
	assert.Equal(t, 1, f.submitted.count())
}

func TestIngestDuplicateReferencesFirstAlert(t *testing.T) {
	for _, mode := range []string{config.DedupTwoTier, config.DedupUnified} {
		t.Run(mode, func(t *testing.T) {
			f := newAlertFixture(t, mode)
			ctx := context.Background()
			body := []byte(`{"symbol":"BTCUSD","action":"BUY"}`)

			first, err := f.svc.Ingest(ctx, body, SharedFeed)
			require.NoError(t, err)
			require.Equal(t, StatusReceived, first.Status)

			second, err := f.svc.Ingest(ctx, body, SharedFeed)
			require.NoError(t, err)
			assert.Equal(t, StatusDuplicate, second.Status)
			assert.Equal(t, first.AlertID, second.AlertID)

			assert.Equal(t, int64(1), f.alertCount(t))
			assert.Equal(t, 1, f.submitted.count())
		})
	}
}

func TestIngestInstrumentsAreIndependent(t *testing.T) {
	f := newAlertFixture(t, config.DedupTwoTier)
	ctx := context.Background()

	btc, err := f.svc.Ingest(ctx, []byte(`{"symbol":"BTCUSD","action":"BUY"}`), SharedFeed)
	require.NoError(t, err)
	eth, err := f.svc.Ingest(ctx, []byte(`{"symbol":"ETHUSD","action":"BUY"}`), SharedFeed)
	require.NoError(t, err)
	sell, err := f.svc.Ingest(ctx, []byte(`{"symbol":"BTCUSD","action":"SELL"}`), SharedFeed)
	require.NoError(t, err)

	for _, res := range []*IngestResult{btc, eth, sell} {
		assert.Equal(t, StatusReceived, res.Status)
	}
	assert.Equal(t, int64(3), f.alertCount(t))
	assert.Equal(t, 3, f.submitted.count())
}

func TestIngestPersonalFeedsDoNotSuppressEachOther(t *testing.T) {
	f := newAlertFixture(t, config.DedupTwoTier)
	ctx := context.Background()
	body := []byte(`{"symbol":"BTCUSD","action":"BUY"}`)

	shared, err := f.svc.Ingest(ctx, body, SharedFeed)
	require.NoError(t, err)
	erin, err := f.svc.Ingest(ctx, body, PersonalFeed(f.users["erin"].ID))
	require.NoError(t, err)
	frank, err := f.svc.Ingest(ctx, body, PersonalFeed(f.users["frank"].ID))
	require.NoError(t, err)

	assert.Equal(t, StatusReceived, shared.Status)
	assert.Equal(t, StatusReceived, erin.Status)
	assert.Equal(t, StatusReceived, frank.Status)
}

func TestIngestRejected(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"not json", `BUY BTCUSD`, "unsupported payload: body must be JSON"},
		{"missing symbol", `{"action":"buy"}`, "no symbol"},
		{"unknown instrument", `{"symbol":"SOLUSD","action":"buy"}`, "unknown instrument: SOLUSD"},
		{"bad action", `{"symbol":"BTCUSD","action":"hold"}`, "invalid action: hold"},
	}

	f := newAlertFixture(t, config.DedupTwoTier)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Ingest(context.Background(), []byte(tt.body), SharedFeed)
			require.NoError(t, err)
			assert.Equal(t, StatusRejected, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, res.AlertID)
		})
	}
	assert.Zero(t, f.alertCount(t))
	assert.Zero(t, f.submitted.count())
}

func TestIngestPersistFailureReleasesClaim(t *testing.T) {
	f := newAlertFixture(t, config.DedupUnified)
	require.NoError(t, f.db.Migrator().DropTable(&models.Alert{}))

	_, err := f.svc.Ingest(context.Background(), []byte(`{"symbol":"BTCUSD","action":"BUY"}`), SharedFeed)
	require.Error(t, err)

	var claims int64
	require.NoError(t, f.db.Model(&models.DedupClaim{}).Count(&claims).Error)
	assert.Zero(t, claims)
	assert.Zero(t, f.submitted.count())
}

func TestIngestReclaimsSlotOfUnsavedAlert(t *testing.T) {
	f := newAlertFixture(t, config.DedupUnified)
	ctx := context.Background()
	body := []byte(`{"symbol":"BTCUSD","action":"BUY"}`)

	// another request claimed the slot but has not stored its alert
	ghost, rej := f.svc.normalizer.Normalize(body, SharedFeed)
	require.Nil(t, rej)
	ghost.ID = "unsaved"
	_, err := f.svc.gate.Claim(ctx, ghost)
	require.NoError(t, err)

	// that request fails and releases the slot while this one checks the holder
	var once sync.Once
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:release_unsaved", func(tx *gorm.DB) {
		if tx.Statement.Table != "alerts" {
			return
		}
		once.Do(func() {
			f.db.Session(&gorm.Session{NewDB: true}).Where("alert_id = ?", "unsaved").Delete(&models.DedupClaim{})
		})
	}))

	res, err := f.svc.Ingest(ctx, body, SharedFeed)
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, res.Status)
	assert.NotEqual(t, "unsaved", res.AlertID)
	assert.EqualValues(t, 1, f.alertCount(t))
	assert.Equal(t, 1, f.submitted.count())
}

func TestIngestDuplicateOfUnsavedAlert(t *testing.T) {
	f := newAlertFixture(t, config.DedupUnified)
	ctx := context.Background()
	body := []byte(`{"symbol":"ETHUSD","action":"SELL"}`)

	pending, rej := f.svc.normalizer.Normalize(body, SharedFeed)
	require.Nil(t, rej)
	_, err := f.svc.gate.Claim(ctx, pending)
	require.NoError(t, err)

	// the holder is still saving: the slot stays taken
	res, err := f.svc.Ingest(ctx, body, SharedFeed)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	assert.Equal(t, pending.ID, res.AlertID)
	assert.Zero(t, f.submitted.count())
}

func TestResolveFeed(t *testing.T) {
	f := newAlertFixture(t, config.DedupTwoTier)
	ctx := context.Background()

	feed, err := f.svc.ResolveFeed(ctx, *f.users["erin"].FeedID)
	require.NoError(t, err)
	assert.Equal(t, PersonalFeed(f.users["erin"].ID), feed)

	_, err = f.svc.ResolveFeed(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownFeed)
}

func TestAlertQueries(t *testing.T) {
	f := newAlertFixture(t, config.DedupTwoTier)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, []byte(`{"symbol":"BTCUSD","action":"BUY"}`), SharedFeed)
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, []byte(`{"symbol":"ETHUSD","action":"SELL"}`), PersonalFeed(f.users["erin"].ID))
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, []byte(`{"symbol":"BTCUSD","action":"SELL"}`), PersonalFeed(f.users["alice"].ID))
	require.NoError(t, err)

	alice, err := f.svc.ListForUser(ctx, f.users["alice"], 100)
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	erin, err := f.svc.ListForUser(ctx, f.users["erin"], 100)
	require.NoError(t, err)
	require.Len(t, erin, 1)
	assert.Equal(t, "ETH", erin[0].Instrument)

	bob, err := f.svc.ListForUser(ctx, f.users["bob"], 100)
	require.NoError(t, err)
	assert.Len(t, bob, 1)

	recent, err := f.svc.Recent(ctx, time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.SourcePrimaryFeed, recent[0].Source)
}
