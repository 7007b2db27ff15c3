package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// Resolver — периодическая задача авторазрешения зависших обменов.
// Дедлайны считаются от сохраненного completion_requested_at, а не от
// времени запуска задачи: пропущенный или задержанный запуск применит
// просроченные дедлайны при следующем выполнении.
type Resolver struct {
	store         Store
	rewards       RewardPort
	remindAfter   time.Duration
	completeAfter time.Duration
}

// NewResolver создает новый экземпляр Resolver
func NewResolver(store Store, rewards RewardPort, remindAfter, completeAfter time.Duration) *Resolver {
	return &Resolver{
		store:         store,
		rewards:       rewards,
		remindAfter:   remindAfter,
		completeAfter: completeAfter,
	}
}

// RunStats — итоги одного прохода планировщика
type RunStats struct {
	Scanned       int
	Reminded      int
	AutoCompleted int
	Failed        int
}

// Run выполняет один проход: напоминания по T1, автозавершение по T2.
// Ошибка обработки одного обмена логируется и не прерывает остальные.
// Параллельные запуски безопасны: переходы атомарны, а чекпоинт
// reminder_stage и конечные статусы делают повторную обработку no-op.
func (r *Resolver) Run(ctx context.Context, now time.Time) (RunStats, error) {
	var stats RunStats

	ids, err := r.store.ListDueTrades(ctx, now.Add(-r.remindAfter))
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(ids)

	for _, id := range ids {
		reminded, completed, err := r.resolveOne(ctx, id, now)
		if err != nil {
			stats.Failed++
			log.Printf("❌ Ошибка авторазрешения обмена %s: %v", id, err)
			continue
		}
		if reminded {
			stats.Reminded++
		}
		if completed {
			stats.AutoCompleted++
		}
	}
	return stats, nil
}

func (r *Resolver) resolveOne(ctx context.Context, tradeID uuid.UUID, now time.Time) (reminded, completed bool, err error) {
	var rewardDue bool
	var done *models.Trade

	err = r.store.UpdateTrade(ctx, tradeID, func(tx *TradeTx) error {
		reminded, completed, rewardDue = false, false, false
		trade := tx.Trade

		if trade.Status.IsTerminal() || trade.CompletionRequestedAt == nil {
			return nil
		}
		age := now.Sub(*trade.CompletionRequestedAt)

		if age >= r.completeAfter {
			if err := ValidateTransition(trade, models.TradeStatusAutoCompleted, SystemActorID); err != nil {
				return err
			}
			rewardDue = finishTrade(trade, models.TradeStatusAutoCompleted, now)
			tx.Notify(trade.CreatorID, models.EventAutoCompleted, map[string]string{"trade_id": trade.ID.String()})
			if trade.ParticipantID != nil {
				tx.Notify(*trade.ParticipantID, models.EventAutoCompleted, map[string]string{"trade_id": trade.ID.String()})
			}
			done = trade
			completed = true
			return nil
		}

		// напоминание шлем только пока заявка висит на подтверждении:
		// у нее есть однозначный адресат — вторая сторона
		if age >= r.remindAfter && trade.Status == models.TradeStatusPendingConfirmation && trade.ReminderStage < 1 {
			trade.ReminderStage = 1
			if trade.CompletionRequestedBy != nil {
				if other := trade.Counterpart(*trade.CompletionRequestedBy); other != nil {
					tx.Notify(*other, models.EventReminderSent, map[string]string{
						"trade_id": trade.ID.String(),
					})
				}
			}
			reminded = true
		}
		return nil
	})
	if err != nil {
		return false, false, err
	}

	if rewardDue && done != nil && r.rewards != nil {
		participantID := uuid.Nil
		if done.ParticipantID != nil {
			participantID = *done.ParticipantID
		}
		if awardErr := r.rewards.AwardCompletion(ctx, done.ID, done.CreatorID, participantID); awardErr != nil {
			log.Printf("⚠️ Ошибка начисления награды за обмен %s: %v", done.ID, awardErr)
		}
	}
	return reminded, completed, nil
}

// finishTrade — общий шаг перехода в конечный статус завершения.
// Возвращает true, если награду нужно начислить (одноразовый флаг).
func finishTrade(trade *models.Trade, status models.TradeStatus, now time.Time) (rewardDue bool) {
	trade.Status = status
	trade.CompletedAt = &now
	trade.CompletionRequestedBy = nil
	if !trade.RewardGranted {
		trade.RewardGranted = true
		rewardDue = true
	}
	return rewardDue
}
