package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// TradeTx — состояние одного обмена внутри транзакции хранилища.
// Функция мутации правит Trade и Proposals на месте; хранилище фиксирует
// изменения вместе с накопленными уведомлениями атомарно.
type TradeTx struct {
	Trade     *models.Trade
	Proposals []*models.Proposal

	added         []*models.Proposal
	notifications []*models.Notification
}

// AddProposal добавляет новый отклик в рамках текущей транзакции
func (tx *TradeTx) AddProposal(p *models.Proposal) {
	tx.added = append(tx.added, p)
	tx.Proposals = append(tx.Proposals, p)
}

// AddedProposals возвращает отклики, созданные в этой транзакции
func (tx *TradeTx) AddedProposals() []*models.Proposal {
	return tx.added
}

// Notify ставит уведомление в очередь на отправку. Запись сохраняется
// той же транзакцией, что и изменение обмена, поэтому событие не теряется
// даже при падении процесса до фактической доставки.
func (tx *TradeTx) Notify(recipientID uuid.UUID, event models.EventType, payload any) {
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	tx.notifications = append(tx.notifications, &models.Notification{
		ID:          uuid.New(),
		TradeID:     tx.Trade.ID,
		RecipientID: recipientID,
		Event:       event,
		Payload:     raw,
		CreatedAt:   time.Now(),
	})
}

// Notifications возвращает уведомления, накопленные транзакцией
func (tx *TradeTx) Notifications() []*models.Notification {
	return tx.notifications
}

// Store — транзакционное хранилище обменов и откликов
type Store interface {
	CreateTrade(ctx context.Context, trade *models.Trade) error
	GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error)
	ListUserTrades(ctx context.Context, userID uuid.UUID, role string, status models.TradeStatus) ([]*models.Trade, error)
	ListProposals(ctx context.Context, tradeID uuid.UUID) ([]*models.Proposal, error)

	// UpdateTrade выполняет атомарное изменение обмена и его откликов.
	// Если запись изменилась параллельно, возвращается ErrConcurrencyConflict
	// и никакие изменения не применяются.
	UpdateTrade(ctx context.Context, tradeID uuid.UUID, fn func(tx *TradeTx) error) error

	// ListDueTrades возвращает ID обменов с запущенным таймером завершения,
	// у которых completion_requested_at старше olderThan.
	ListDueTrades(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
}
