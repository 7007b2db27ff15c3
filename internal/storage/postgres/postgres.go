// Package postgres — реализация хранилища обменов поверх PostgreSQL.
// Все мутации выполняются в транзакции с блокировкой строки обмена
// (SELECT ... FOR UPDATE) и проверкой версии при записи.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/skillswap-api/internal/lifecycle"
	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// Store — хранилище обменов в PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// NewStore создает новый экземпляр Store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const tradeColumns = `
	id, creator_id, participant_id, status, title, description,
	offered_skill, requested_skill, completion_requested_by, completion_notes,
	evidence, change_requests, reminder_stage, reward_granted, version,
	created_at, updated_at, proposal_accepted_at, completion_requested_at, completed_at
`

// CreateTrade сохраняет новый обмен
func (s *Store) CreateTrade(ctx context.Context, trade *models.Trade) error {
	evidence, err := json.Marshal(trade.Evidence)
	if err != nil {
		return fmt.Errorf("ошибка сериализации подтверждений: %w", err)
	}
	changeRequests, err := json.Marshal(trade.ChangeRequests)
	if err != nil {
		return fmt.Errorf("ошибка сериализации истории доработок: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (id, creator_id, status, title, description,
			offered_skill, requested_skill, completion_notes,
			evidence, change_requests, reminder_stage, reward_granted, version,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, trade.ID, trade.CreatorID, trade.Status, trade.Title, trade.Description,
		trade.OfferedSkill, trade.RequestedSkill, trade.CompletionNotes,
		evidence, changeRequests, trade.ReminderStage, trade.RewardGranted, trade.Version,
		trade.CreatedAt, trade.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания обмена: %w", err)
	}
	return nil
}

// GetTrade возвращает обмен по ID
func (s *Store) GetTrade(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &lifecycle.NotFoundError{Entity: "обмен", ID: id}
		}
		return nil, fmt.Errorf("ошибка запроса обмена: %w", err)
	}
	return trade, nil
}

// ListUserTrades возвращает обмены пользователя с фильтрами по роли и статусу
func (s *Store) ListUserTrades(ctx context.Context, userID uuid.UUID, role string, status models.TradeStatus) ([]*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE `
	args := []interface{}{userID}

	switch role {
	case "created":
		query += `creator_id = $1`
	case "participating":
		query += `participant_id = $1`
	default:
		query += `(creator_id = $1 OR participant_id = $1)`
	}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса обменов: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования обмена: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// ListProposals возвращает отклики по обмену в порядке создания
func (s *Store) ListProposals(ctx context.Context, tradeID uuid.UUID) ([]*models.Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trade_id, proposer_id, status, message, offered_skill, requested_skill, created_at, updated_at
		FROM proposals WHERE trade_id = $1 ORDER BY created_at ASC
	`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса откликов: %w", err)
	}
	defer rows.Close()
	return scanProposals(rows)
}

// UpdateTrade выполняет атомарное изменение обмена и его откликов.
// Строка обмена блокируется на время транзакции; проверка версии при
// записи сохраняет семантику compare-and-swap и для внешних конкурентов.
func (s *Store) UpdateTrade(ctx context.Context, tradeID uuid.UUID, fn func(tx *lifecycle.TradeTx) error) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer dbTx.Rollback(ctx)

	row := dbTx.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE`, tradeID)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &lifecycle.NotFoundError{Entity: "обмен", ID: tradeID}
		}
		return fmt.Errorf("ошибка запроса обмена: %w", err)
	}
	snapshotVersion := trade.Version

	rows, err := dbTx.Query(ctx, `
		SELECT id, trade_id, proposer_id, status, message, offered_skill, requested_skill, created_at, updated_at
		FROM proposals WHERE trade_id = $1 ORDER BY created_at ASC FOR UPDATE
	`, tradeID)
	if err != nil {
		return fmt.Errorf("ошибка запроса откликов: %w", err)
	}
	proposals, err := scanProposals(rows)
	if err != nil {
		return err
	}

	tradeTx := &lifecycle.TradeTx{Trade: trade, Proposals: proposals}
	if err := fn(tradeTx); err != nil {
		return err
	}

	evidence, err := json.Marshal(trade.Evidence)
	if err != nil {
		return fmt.Errorf("ошибка сериализации подтверждений: %w", err)
	}
	changeRequests, err := json.Marshal(trade.ChangeRequests)
	if err != nil {
		return fmt.Errorf("ошибка сериализации истории доработок: %w", err)
	}

	tag, err := dbTx.Exec(ctx, `
		UPDATE trades SET
			participant_id = $1, status = $2, title = $3, description = $4,
			offered_skill = $5, requested_skill = $6,
			completion_requested_by = $7, completion_notes = $8,
			evidence = $9, change_requests = $10,
			reminder_stage = $11, reward_granted = $12,
			version = version + 1, updated_at = NOW(),
			proposal_accepted_at = $13, completion_requested_at = $14, completed_at = $15
		WHERE id = $16 AND version = $17
	`, trade.ParticipantID, trade.Status, trade.Title, trade.Description,
		trade.OfferedSkill, trade.RequestedSkill,
		trade.CompletionRequestedBy, trade.CompletionNotes,
		evidence, changeRequests,
		trade.ReminderStage, trade.RewardGranted,
		trade.ProposalAcceptedAt, trade.CompletionRequestedAt, trade.CompletedAt,
		trade.ID, snapshotVersion)
	if err != nil {
		return fmt.Errorf("ошибка обновления обмена: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lifecycle.ErrConcurrencyConflict
	}

	added := make(map[uuid.UUID]bool)
	for _, p := range tradeTx.AddedProposals() {
		added[p.ID] = true
		_, err = dbTx.Exec(ctx, `
			INSERT INTO proposals (id, trade_id, proposer_id, status, message, offered_skill, requested_skill, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, p.ID, p.TradeID, p.ProposerID, p.Status, p.Message, p.OfferedSkill, p.RequestedSkill, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("ошибка создания отклика: %w", err)
		}
	}
	for _, p := range tradeTx.Proposals {
		if added[p.ID] {
			continue
		}
		_, err = dbTx.Exec(ctx, `
			UPDATE proposals SET status = $1, updated_at = $2 WHERE id = $3
		`, p.Status, p.UpdatedAt, p.ID)
		if err != nil {
			return fmt.Errorf("ошибка обновления отклика: %w", err)
		}
	}

	for _, n := range tradeTx.Notifications() {
		_, err = dbTx.Exec(ctx, `
			INSERT INTO notifications (id, trade_id, recipient_id, event, payload, attempts, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, n.ID, n.TradeID, n.RecipientID, n.Event, []byte(n.Payload), n.Attempts, n.CreatedAt)
		if err != nil {
			return fmt.Errorf("ошибка постановки уведомления в очередь: %w", err)
		}
	}

	if err = dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// ListDueTrades возвращает ID обменов с таймером завершения старше olderThan
func (s *Store) ListDueTrades(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM trades
		WHERE status IN ($1, $2)
		  AND completion_requested_at IS NOT NULL
		  AND completion_requested_at < $3
		ORDER BY completion_requested_at ASC
	`, models.TradeStatusInProgress, models.TradeStatusPendingConfirmation, olderThan)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска просроченных обменов: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ID обмена: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PendingNotifications возвращает недоставленные уведомления
func (s *Store) PendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trade_id, recipient_id, event, payload, attempts, created_at, sent_at
		FROM notifications WHERE sent_at IS NULL
		ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса уведомлений: %w", err)
	}
	defer rows.Close()

	var result []*models.Notification
	for rows.Next() {
		var n models.Notification
		var payload []byte
		var sentAt pgtype.Timestamptz
		if err := rows.Scan(&n.ID, &n.TradeID, &n.RecipientID, &n.Event, &payload, &n.Attempts, &n.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		n.Payload = payload
		if sentAt.Valid {
			t := sentAt.Time
			n.SentAt = &t
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}

// MarkNotificationSent отмечает уведомление доставленным
func (s *Store) MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET sent_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("ошибка отметки уведомления: %w", err)
	}
	return nil
}

// MarkNotificationFailed увеличивает счетчик неудачных попыток доставки
func (s *Store) MarkNotificationFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка учета попытки доставки: %w", err)
	}
	return nil
}

// scanTrade читает обмен из строки результата
func scanTrade(row pgx.Row) (*models.Trade, error) {
	var trade models.Trade
	var participantID, completionRequestedBy uuid.NullUUID
	var evidence, changeRequests []byte
	var proposalAcceptedAt, completionRequestedAt, completedAt pgtype.Timestamptz
	var description, notes pgtype.Text

	err := row.Scan(
		&trade.ID, &trade.CreatorID, &participantID, &trade.Status, &trade.Title, &description,
		&trade.OfferedSkill, &trade.RequestedSkill, &completionRequestedBy, &notes,
		&evidence, &changeRequests, &trade.ReminderStage, &trade.RewardGranted, &trade.Version,
		&trade.CreatedAt, &trade.UpdatedAt, &proposalAcceptedAt, &completionRequestedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if participantID.Valid {
		id := participantID.UUID
		trade.ParticipantID = &id
	}
	if completionRequestedBy.Valid {
		id := completionRequestedBy.UUID
		trade.CompletionRequestedBy = &id
	}
	if description.Valid {
		trade.Description = description.String
	}
	if notes.Valid {
		trade.CompletionNotes = notes.String
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &trade.Evidence); err != nil {
			return nil, fmt.Errorf("ошибка разбора подтверждений: %w", err)
		}
	}
	if len(changeRequests) > 0 {
		if err := json.Unmarshal(changeRequests, &trade.ChangeRequests); err != nil {
			return nil, fmt.Errorf("ошибка разбора истории доработок: %w", err)
		}
	}
	if proposalAcceptedAt.Valid {
		t := proposalAcceptedAt.Time
		trade.ProposalAcceptedAt = &t
	}
	if completionRequestedAt.Valid {
		t := completionRequestedAt.Time
		trade.CompletionRequestedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		trade.CompletedAt = &t
	}
	return &trade, nil
}

// scanProposals читает отклики из результата запроса
func scanProposals(rows pgx.Rows) ([]*models.Proposal, error) {
	defer rows.Close()
	var proposals []*models.Proposal
	for rows.Next() {
		var p models.Proposal
		var message, requestedSkill pgtype.Text
		if err := rows.Scan(&p.ID, &p.TradeID, &p.ProposerID, &p.Status, &message, &p.OfferedSkill, &requestedSkill, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования отклика: %w", err)
		}
		if message.Valid {
			p.Message = message.String
		}
		if requestedSkill.Valid {
			p.RequestedSkill = requestedSkill.String
		}
		proposals = append(proposals, &p)
	}
	return proposals, rows.Err()
}
