package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/lifecycle"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/storage/memory"
)

func newTrade(creator uuid.UUID) *models.Trade {
	now := time.Now()
	return &models.Trade{
		ID:             uuid.New(),
		CreatorID:      creator,
		Status:         models.TradeStatusOpen,
		Title:          "Обмен",
		OfferedSkill:   "гитара",
		RequestedSkill: "английский",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestGetTradeReturnsCopy(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	trade := newTrade(uuid.New())
	require.NoError(t, store.CreateTrade(ctx, trade))

	got, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)

	// правка копии не должна менять хранимое состояние
	got.Status = models.TradeStatusCancelled
	again, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusOpen, again.Status)
}

func TestUpdateTradeDetectsConcurrentChange(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	trade := newTrade(uuid.New())
	require.NoError(t, store.CreateTrade(ctx, trade))

	// вложенное обновление фиксируется первым: внешняя транзакция
	// работает с устаревшим снимком и должна получить конфликт
	err := store.UpdateTrade(ctx, trade.ID, func(tx *lifecycle.TradeTx) error {
		inner := store.UpdateTrade(ctx, trade.ID, func(innerTx *lifecycle.TradeTx) error {
			innerTx.Trade.Title = "Изменено параллельно"
			return nil
		})
		require.NoError(t, inner)

		tx.Trade.Title = "Изменено из устаревшего снимка"
		return nil
	})
	require.ErrorIs(t, err, lifecycle.ErrConcurrencyConflict)

	got, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, "Изменено параллельно", got.Title, "побеждает зафиксированная транзакция")
}

func TestUpdateTradeRollsBackOnError(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	trade := newTrade(uuid.New())
	require.NoError(t, store.CreateTrade(ctx, trade))

	wantErr := &lifecycle.ValidationError{Reason: "проверка"}
	err := store.UpdateTrade(ctx, trade.ID, func(tx *lifecycle.TradeTx) error {
		tx.Trade.Status = models.TradeStatusCancelled
		tx.Notify(uuid.New(), models.EventTradeCancelled, nil)
		return wantErr
	})
	require.ErrorAs(t, err, &wantErr)

	got, err := store.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusOpen, got.Status)
	assert.Empty(t, store.Notifications(), "уведомления не сохраняются при откате")
}

func TestListDueTrades(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()

	due := newTrade(uuid.New())
	due.Status = models.TradeStatusPendingConfirmation
	old := now.Add(-10 * 24 * time.Hour)
	due.CompletionRequestedAt = &old
	require.NoError(t, store.CreateTrade(ctx, due))

	fresh := newTrade(uuid.New())
	fresh.Status = models.TradeStatusPendingConfirmation
	recent := now.Add(-time.Hour)
	fresh.CompletionRequestedAt = &recent
	require.NoError(t, store.CreateTrade(ctx, fresh))

	noTimer := newTrade(uuid.New())
	noTimer.Status = models.TradeStatusInProgress
	require.NoError(t, store.CreateTrade(ctx, noTimer))

	terminal := newTrade(uuid.New())
	terminal.Status = models.TradeStatusCompleted
	terminal.CompletionRequestedAt = &old
	require.NoError(t, store.CreateTrade(ctx, terminal))

	ids, err := store.ListDueTrades(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, due.ID, ids[0])
}
