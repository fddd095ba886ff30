package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/internal/domain/entity"
	"regwatch/internal/infra/notifier"
	"regwatch/internal/usecase/notify"
)

/*──────────────────────────────── stubs ────────────────────────────────*/

type stubChannel struct {
	name    string
	enabled bool
	err     error
	block   chan struct{} // when set, Send waits for it or ctx

	mu   sync.Mutex
	sent []*notifier.Message
}

func (c *stubChannel) Name() string    { return c.name }
func (c *stubChannel) IsEnabled() bool { return c.enabled }

func (c *stubChannel) Send(ctx context.Context, msg *notifier.Message) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *stubChannel) Sent() []*notifier.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*notifier.Message(nil), c.sent...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testChange() (*entity.Source, *entity.ChangeRecord) {
	src := &entity.Source{ID: "src-1", URL: "https://agency.example/1", Agency: "CPSC", Jurisdiction: "US"}
	rec := &entity.ChangeRecord{
		ID:         "chg-1",
		SourceID:   "src-1",
		Kind:       entity.ChangeChanged,
		DetectedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Classification: &entity.Classification{
			Category: entity.CategoryProductSafety,
			Impact:   entity.ImpactHigh,
		},
	}
	return src, rec
}

func shutdown(t *testing.T, svc *notify.Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}

/*──────────────────────────────── dispatch ────────────────────────────────*/

func TestNotifyChange_FansOutToEnabledChannels(t *testing.T) {
	slack := &stubChannel{name: "slack", enabled: true}
	discord := &stubChannel{name: "discord", enabled: true}
	off := &stubChannel{name: "off", enabled: false}
	svc := notify.NewService([]notify.Channel{slack, discord, off}, notify.DefaultConfig(), quietLogger())

	src, rec := testChange()
	require.NoError(t, svc.NotifyChange(context.Background(), src, rec))
	shutdown(t, svc)

	require.Len(t, slack.Sent(), 1)
	require.Len(t, discord.Sent(), 1)
	assert.Empty(t, off.Sent())

	msg := slack.Sent()[0]
	assert.Equal(t, "chg-1", msg.ChangeID)
	assert.Equal(t, entity.ImpactHigh, msg.Impact)
	assert.Equal(t, "CPSC", msg.Agency)
}

func TestNotifyChange_InvalidInput(t *testing.T) {
	svc := notify.NewService(nil, notify.DefaultConfig(), quietLogger())
	defer shutdown(t, svc)

	src, rec := testChange()
	assert.ErrorIs(t, svc.NotifyChange(context.Background(), nil, rec), notify.ErrInvalidChange)
	assert.ErrorIs(t, svc.NotifyChange(context.Background(), src, nil), notify.ErrInvalidChange)
}

func TestNotifyChange_DoesNotBlockCaller(t *testing.T) {
	ch := &stubChannel{name: "slow", enabled: true, block: make(chan struct{})}
	svc := notify.NewService([]notify.Channel{ch}, notify.DefaultConfig(), quietLogger())

	src, rec := testChange()
	done := make(chan error, 1)
	go func() { done <- svc.NotifyChange(context.Background(), src, rec) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("NotifyChange blocked on delivery")
	}
	close(ch.block)
	shutdown(t, svc)
	assert.Len(t, ch.Sent(), 1)
}

func TestNotifyChange_MessageIsSnapshot(t *testing.T) {
	ch := &stubChannel{name: "slack", enabled: true, block: make(chan struct{})}
	svc := notify.NewService([]notify.Channel{ch}, notify.DefaultConfig(), quietLogger())

	src, rec := testChange()
	require.NoError(t, svc.NotifyChange(context.Background(), src, rec))
	rec.Classification.Impact = entity.ImpactLow
	close(ch.block)
	shutdown(t, svc)

	require.Len(t, ch.Sent(), 1)
	assert.Equal(t, entity.ImpactHigh, ch.Sent()[0].Impact)
}

/*──────────────────────────────── pool ────────────────────────────────*/

func TestNotifyChange_DropsWhenPoolFull(t *testing.T) {
	ch := &stubChannel{name: "slack", enabled: true, block: make(chan struct{})}
	cfg := notify.DefaultConfig()
	cfg.MaxConcurrent = 1
	cfg.PoolTimeout = 20 * time.Millisecond
	svc := notify.NewService([]notify.Channel{ch}, cfg, quietLogger())

	src, rec := testChange()
	require.NoError(t, svc.NotifyChange(context.Background(), src, rec))
	second := *rec
	second.ID = "chg-2"
	require.NoError(t, svc.NotifyChange(context.Background(), src, &second))

	// The second send gives up waiting for the only slot.
	time.Sleep(100 * time.Millisecond)
	close(ch.block)
	shutdown(t, svc)

	sent := ch.Sent()
	require.Len(t, sent, 1)
}

/*──────────────────────────────── breaker ────────────────────────────────*/

func TestNotifyChange_CircuitBreakerOpensAfterFailures(t *testing.T) {
	ch := &stubChannel{name: "broken", enabled: true, err: errors.New("webhook returned 500")}
	cfg := notify.DefaultConfig()
	cfg.MaxConcurrent = 1
	svc := notify.NewService([]notify.Channel{ch}, cfg, quietLogger())
	defer shutdown(t, svc)

	src, rec := testChange()
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.NotifyChange(context.Background(), src, rec))
	}

	require.Eventually(t, func() bool {
		health := svc.ChannelHealth()
		return len(health) == 1 && health[0].CircuitBreakerOpen
	}, 5*time.Second, 10*time.Millisecond)

	health := svc.ChannelHealth()[0]
	assert.Equal(t, "broken", health.Name)
	assert.True(t, health.Enabled)
	assert.Equal(t, "open", health.State)
}

func TestChannelHealth_ClosedByDefault(t *testing.T) {
	svc := notify.NewService([]notify.Channel{
		&stubChannel{name: "slack", enabled: true},
		&stubChannel{name: "discord", enabled: false},
	}, notify.DefaultConfig(), quietLogger())
	defer shutdown(t, svc)

	health := svc.ChannelHealth()
	require.Len(t, health, 2)
	assert.Equal(t, notify.ChannelHealthStatus{Name: "slack", Enabled: true, State: "closed"}, health[0])
	assert.Equal(t, notify.ChannelHealthStatus{Name: "discord", Enabled: false, State: "closed"}, health[1])
}

/*──────────────────────────────── shutdown ────────────────────────────────*/

func TestShutdown_CancelsInFlightSends(t *testing.T) {
	ch := &stubChannel{name: "stuck", enabled: true, block: make(chan struct{})}
	svc := notify.NewService([]notify.Channel{ch}, notify.DefaultConfig(), quietLogger())

	src, rec := testChange()
	require.NoError(t, svc.NotifyChange(context.Background(), src, rec))
	shutdown(t, svc)

	assert.Empty(t, ch.Sent())
	assert.ErrorIs(t, svc.NotifyChange(context.Background(), src, rec), notify.ErrServiceClosed)
}

func TestShutdown_Timeout(t *testing.T) {
	ch := &stubChannel{name: "stuck", enabled: true}
	ch.block = make(chan struct{})
	svc := notify.NewService([]notify.Channel{&ignoringChannel{stubChannel: ch}}, notify.DefaultConfig(), quietLogger())

	src, rec := testChange()
	require.NoError(t, svc.NotifyChange(context.Background(), src, rec))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Shutdown(ctx), context.DeadlineExceeded)
	close(ch.block)
}

// ignoringChannel waits for its block channel regardless of ctx.
type ignoringChannel struct{ *stubChannel }

func (c *ignoringChannel) Send(_ context.Context, msg *notifier.Message) error {
	<-c.block
	return c.stubChannel.Send(context.Background(), msg)
}
