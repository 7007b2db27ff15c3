package lifecycle

import (
	"context"

	"github.com/google/uuid"
)

// RewardPort — внешняя подсистема геймификации.
// Вызывается ровно один раз за жизнь обмена, в момент перехода в
// completed или auto_completed. За одноразовость отвечает вызывающая
// сторона (флаг reward_granted в записи обмена), а не сама подсистема.
type RewardPort interface {
	AwardCompletion(ctx context.Context, tradeID, creatorID, participantID uuid.UUID) error
}
