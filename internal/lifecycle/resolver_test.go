package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/lifecycle"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/storage/memory"
)

const (
	remindAfter   = 7 * 24 * time.Hour
	completeAfter = 14 * 24 * time.Hour
)

// backdate переводит часы заявки на завершение в прошлое
func backdate(t *testing.T, store *memory.Store, tradeID uuid.UUID, requestedAt time.Time) {
	t.Helper()
	err := store.UpdateTrade(context.Background(), tradeID, func(tx *lifecycle.TradeTx) error {
		ts := requestedAt
		tx.Trade.CompletionRequestedAt = &ts
		return nil
	})
	require.NoError(t, err)
}

// pendingTrade доводит обмен до pending_confirmation с заявкой от participant
func pendingTrade(t *testing.T, svc *lifecycle.Service, store *memory.Store, creator, participant uuid.UUID, requestedAt time.Time) *models.Trade {
	t.Helper()
	trade := startTrade(t, svc, creator, participant)
	_, err := svc.RequestCompletion(context.Background(), trade.ID, participant, "Готово", evidenceLink())
	require.NoError(t, err)
	backdate(t, store, trade.ID, requestedAt)
	return trade
}

func TestResolverReminderThenAutoComplete(t *testing.T) {
	store, svc, rewards := newFixture(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	t0 := time.Now().Add(-30 * 24 * time.Hour)
	trade := pendingTrade(t, svc, store, u1, u2, t0)

	resolver := lifecycle.NewResolver(store, rewards, remindAfter, completeAfter)

	// день 8: ровно одно напоминание второй стороне
	stats, err := resolver.Run(ctx, t0.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reminded)
	assert.Equal(t, 0, stats.AutoCompleted)

	got, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReminderStage)
	assert.Equal(t, 1, countEvents(store, models.EventReminderSent))

	reminders := 0
	for _, n := range store.Notifications() {
		if n.Event == models.EventReminderSent {
			reminders++
			assert.Equal(t, u1, n.RecipientID, "напоминание уходит не-заявителю")
		}
	}
	require.Equal(t, 1, reminders)

	// день 10: повторный запуск напоминаний не дублирует
	stats, err = resolver.Run(ctx, t0.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Reminded)
	assert.Equal(t, 1, countEvents(store, models.EventReminderSent))

	// день 15: принудительное завершение
	stats, err = resolver.Run(ctx, t0.Add(15*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AutoCompleted)

	got, err = store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAutoCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.CompletionRequestedBy)
	assert.Equal(t, 1, rewards.count())
	assert.Equal(t, 2, countEvents(store, models.EventAutoCompleted))

	// день 16: конечный статус больше не трогаем
	stats, err = resolver.Run(ctx, t0.Add(16*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Scanned)
	assert.Equal(t, 1, rewards.count(), "награда не начисляется повторно")
}

func TestResolverLateRunAppliesOverdueDeadline(t *testing.T) {
	store, svc, rewards := newFixture(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	// планировщик не запускался 40 дней: первый же запуск завершает обмен
	t0 := time.Now().Add(-60 * 24 * time.Hour)
	trade := pendingTrade(t, svc, store, u1, u2, t0)

	resolver := lifecycle.NewResolver(store, rewards, remindAfter, completeAfter)
	stats, err := resolver.Run(ctx, t0.Add(40*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AutoCompleted)
	assert.Equal(t, 0, stats.Reminded, "напоминание уже не имеет смысла")

	got, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAutoCompleted, got.Status)
}

func TestResolverNoReminderForInProgress(t *testing.T) {
	store, svc, rewards := newFixture(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	t0 := time.Now().Add(-30 * 24 * time.Hour)
	trade := pendingTrade(t, svc, store, u1, u2, t0)

	// вторая сторона запросила доработки: обмен снова в работе, часы идут
	_, err := svc.RequestChanges(ctx, trade.ID, u1, "Добавьте примеры")
	require.NoError(t, err)
	backdate(t, store, trade.ID, t0)

	resolver := lifecycle.NewResolver(store, rewards, remindAfter, completeAfter)

	// день 8: напоминаний для in_progress нет
	stats, err := resolver.Run(ctx, t0.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Reminded)
	assert.Equal(t, 0, countEvents(store, models.EventReminderSent))

	// день 15: но принудительное завершение срабатывает
	stats, err = resolver.Run(ctx, t0.Add(15*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AutoCompleted)

	got, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAutoCompleted, got.Status)
	assert.Equal(t, 1, rewards.count())
}

func TestResolverRepeatedRunsAreNoop(t *testing.T) {
	store, svc, rewards := newFixture(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	t0 := time.Now().Add(-30 * 24 * time.Hour)
	pendingTrade(t, svc, store, u1, u2, t0)

	resolver := lifecycle.NewResolver(store, rewards, remindAfter, completeAfter)

	at := t0.Add(15 * 24 * time.Hour)
	total := 0
	for i := 0; i < 3; i++ {
		stats, err := resolver.Run(ctx, at)
		require.NoError(t, err)
		total += stats.AutoCompleted
	}
	assert.Equal(t, 1, total, "повторные запуски не завершают обмен повторно")
	assert.Equal(t, 1, rewards.count())
	assert.Equal(t, 2, countEvents(store, models.EventAutoCompleted))
}

// failingStore ломает транзакции по выбранному обмену
type failingStore struct {
	*memory.Store
	failID uuid.UUID
}

func (s *failingStore) UpdateTrade(ctx context.Context, tradeID uuid.UUID, fn func(tx *lifecycle.TradeTx) error) error {
	if tradeID == s.failID {
		return errors.New("хранилище недоступно")
	}
	return s.Store.UpdateTrade(ctx, tradeID, fn)
}

func TestResolverIsolatesPerTradeFailures(t *testing.T) {
	store, svc, rewards := newFixture(t)
	ctx := context.Background()
	u1, u2, u3, u4 := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	t0 := time.Now().Add(-30 * 24 * time.Hour)
	bad := pendingTrade(t, svc, store, u1, u2, t0)
	good := pendingTrade(t, svc, store, u3, u4, t0)

	resolver := lifecycle.NewResolver(&failingStore{Store: store, failID: bad.ID}, rewards, remindAfter, completeAfter)

	stats, err := resolver.Run(ctx, t0.Add(15*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.AutoCompleted)

	got, err := store.GetTrade(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAutoCompleted, got.Status, "ошибка одного обмена не прерывает остальные")

	got, err = store.GetTrade(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusPendingConfirmation, got.Status)
}

func TestResolverRewardFailureDoesNotRevertState(t *testing.T) {
	store, svc, rewards := newFixture(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	t0 := time.Now().Add(-30 * 24 * time.Hour)
	trade := pendingTrade(t, svc, store, u1, u2, t0)

	rewards.err = errors.New("сервис геймификации недоступен")
	resolver := lifecycle.NewResolver(store, rewards, remindAfter, completeAfter)

	stats, err := resolver.Run(ctx, t0.Add(15*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AutoCompleted)

	got, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAutoCompleted, got.Status, "переход зафиксирован несмотря на ошибку награды")
}
