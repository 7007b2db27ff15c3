// Package memory — хранилище в памяти с той же семантикой транзакций,
// что и у Postgres-реализации. Используется в тестах и для локального
// запуска без базы данных.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/lifecycle"
	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// Store хранит обмены, отклики и очередь уведомлений в памяти
type Store struct {
	mu            sync.Mutex
	trades        map[uuid.UUID]*models.Trade
	proposals     map[uuid.UUID][]*models.Proposal // tradeID -> отклики в порядке создания
	notifications []*models.Notification
}

// NewStore создает новый экземпляр Store
func NewStore() *Store {
	return &Store{
		trades:    make(map[uuid.UUID]*models.Trade),
		proposals: make(map[uuid.UUID][]*models.Proposal),
	}
}

// CreateTrade сохраняет новый обмен
func (s *Store) CreateTrade(ctx context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[trade.ID] = trade.Clone()
	return nil
}

// GetTrade возвращает копию обмена по ID
func (s *Store) GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade, ok := s.trades[id]
	if !ok {
		return nil, &lifecycle.NotFoundError{Entity: "обмен", ID: id}
	}
	return trade.Clone(), nil
}

// ListUserTrades возвращает обмены пользователя с фильтрами
func (s *Store) ListUserTrades(ctx context.Context, userID uuid.UUID, role string, status models.TradeStatus) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Trade
	for _, t := range s.trades {
		created := t.CreatorID == userID
		participating := t.ParticipantID != nil && *t.ParticipantID == userID
		switch role {
		case "created":
			if !created {
				continue
			}
		case "participating":
			if !participating {
				continue
			}
		default:
			if !created && !participating {
				continue
			}
		}
		if status != "" && t.Status != status {
			continue
		}
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListProposals возвращает отклики по обмену
func (s *Store) ListProposals(ctx context.Context, tradeID uuid.UUID) ([]*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Proposal
	for _, p := range s.proposals[tradeID] {
		result = append(result, p.Clone())
	}
	return result, nil
}

// UpdateTrade выполняет атомарное изменение обмена по схеме compare-and-swap:
// снимок читается под блокировкой, fn работает с копией без блокировки,
// фиксация проверяет, что версия записи не изменилась.
func (s *Store) UpdateTrade(ctx context.Context, tradeID uuid.UUID, fn func(tx *lifecycle.TradeTx) error) error {
	s.mu.Lock()
	stored, ok := s.trades[tradeID]
	if !ok {
		s.mu.Unlock()
		return &lifecycle.NotFoundError{Entity: "обмен", ID: tradeID}
	}
	snapshotVersion := stored.Version
	tx := &lifecycle.TradeTx{Trade: stored.Clone()}
	for _, p := range s.proposals[tradeID] {
		tx.Proposals = append(tx.Proposals, p.Clone())
	}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.trades[tradeID]
	if !ok {
		return &lifecycle.NotFoundError{Entity: "обмен", ID: tradeID}
	}
	if current.Version != snapshotVersion {
		return lifecycle.ErrConcurrencyConflict
	}

	tx.Trade.Version = snapshotVersion + 1
	tx.Trade.UpdatedAt = time.Now()
	s.trades[tradeID] = tx.Trade.Clone()

	// порядок сохраняется: существующие первыми, новые в конце
	var updated []*models.Proposal
	for _, p := range tx.Proposals {
		updated = append(updated, p.Clone())
	}
	s.proposals[tradeID] = updated

	s.notifications = append(s.notifications, tx.Notifications()...)
	return nil
}

// ListDueTrades возвращает обмены с запущенным таймером завершения
func (s *Store) ListDueTrades(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for _, t := range s.trades {
		if t.Status != models.TradeStatusInProgress && t.Status != models.TradeStatusPendingConfirmation {
			continue
		}
		if t.CompletionRequestedAt == nil || !t.CompletionRequestedAt.Before(olderThan) {
			continue
		}
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// PendingNotifications возвращает недоставленные уведомления
func (s *Store) PendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Notification
	for _, n := range s.notifications {
		if n.SentAt != nil {
			continue
		}
		cp := *n
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// MarkNotificationSent отмечает уведомление доставленным
func (s *Store) MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			n.SentAt = &at
			return nil
		}
	}
	return &lifecycle.NotFoundError{Entity: "уведомление", ID: id}
}

// MarkNotificationFailed увеличивает счетчик неудачных попыток доставки
func (s *Store) MarkNotificationFailed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			n.Attempts++
			return nil
		}
	}
	return &lifecycle.NotFoundError{Entity: "уведомление", ID: id}
}

// Notifications возвращает все уведомления (для тестов)
func (s *Store) Notifications() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		cp := *n
		result = append(result, &cp)
	}
	return result
}
