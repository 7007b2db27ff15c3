package lifecycle

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// Service реализует все пользовательские операции жизненного цикла обмена.
// Каждая операция — короткая атомарная транзакция: чтение текущего состояния,
// проверка предусловий через ValidateTransition, запись нового состояния.
type Service struct {
	store         Store
	rewards       RewardPort
	retryAttempts uint64
	now           func() time.Time
}

// NewService создает новый экземпляр Service
func NewService(store Store, rewards RewardPort, retryAttempts int) *Service {
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	return &Service{
		store:         store,
		rewards:       rewards,
		retryAttempts: uint64(retryAttempts),
		now:           time.Now,
	}
}

// CreateTradeParams — данные для создания обмена
type CreateTradeParams struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	OfferedSkill   string `json:"offered_skill"`
	RequestedSkill string `json:"requested_skill"`
}

// ProposalParams — данные отклика на обмен
type ProposalParams struct {
	Message        string `json:"message"`
	OfferedSkill   string `json:"offered_skill"`
	RequestedSkill string `json:"requested_skill"`
}

// EvidenceInput — подтверждение работы в заявке на завершение
type EvidenceInput struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateTrade создает новый открытый обмен
func (s *Service) CreateTrade(ctx context.Context, creatorID uuid.UUID, params CreateTradeParams) (*models.Trade, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, &ValidationError{Reason: "укажите название обмена"}
	}
	if strings.TrimSpace(params.OfferedSkill) == "" || strings.TrimSpace(params.RequestedSkill) == "" {
		return nil, &ValidationError{Reason: "укажите предлагаемый и желаемый навыки"}
	}

	now := s.now()
	trade := &models.Trade{
		ID:             uuid.New(),
		CreatorID:      creatorID,
		Status:         models.TradeStatusOpen,
		Title:          params.Title,
		Description:    params.Description,
		OfferedSkill:   params.OfferedSkill,
		RequestedSkill: params.RequestedSkill,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateTrade(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// GetTrade возвращает обмен по ID
func (s *Service) GetTrade(ctx context.Context, tradeID uuid.UUID) (*models.Trade, error) {
	return s.store.GetTrade(ctx, tradeID)
}

// ListUserTrades возвращает обмены пользователя с фильтрами по роли и статусу
func (s *Service) ListUserTrades(ctx context.Context, userID uuid.UUID, role string, status models.TradeStatus) ([]*models.Trade, error) {
	return s.store.ListUserTrades(ctx, userID, role, status)
}

// SubmitProposal создает отклик на открытый обмен
func (s *Service) SubmitProposal(ctx context.Context, tradeID, proposerID uuid.UUID, params ProposalParams) (*models.Proposal, error) {
	if strings.TrimSpace(params.OfferedSkill) == "" {
		return nil, &ValidationError{Reason: "укажите навык, который вы предлагаете"}
	}

	var result *models.Proposal
	err := s.updateWithRetry(ctx, tradeID, func(tx *TradeTx) error {
		trade := tx.Trade
		if trade.Status != models.TradeStatusOpen {
			return &InvalidStateError{Current: trade.Status}
		}
		if proposerID == trade.CreatorID {
			return &AuthorizationError{Reason: "нельзя откликнуться на собственный обмен"}
		}
		// повторный отклик от того же пользователя не создаем (защита от ретраев клиента)
		for _, p := range tx.Proposals {
			if p.ProposerID == proposerID && p.Status == models.ProposalStatusPending {
				result = p
				return nil
			}
		}

		now := s.now()
		proposal := &models.Proposal{
			ID:             uuid.New(),
			TradeID:        trade.ID,
			ProposerID:     proposerID,
			Status:         models.ProposalStatusPending,
			Message:        params.Message,
			OfferedSkill:   params.OfferedSkill,
			RequestedSkill: params.RequestedSkill,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		tx.AddProposal(proposal)
		tx.Notify(trade.CreatorID, models.EventProposalReceived, map[string]string{
			"trade_id":    trade.ID.String(),
			"proposal_id": proposal.ID.String(),
		})
		result = proposal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListProposals возвращает отклики по обмену. Стороны обмена видят все
// отклики, остальные пользователи — только свои.
func (s *Service) ListProposals(ctx context.Context, tradeID, actorID uuid.UUID) ([]*models.Proposal, error) {
	trade, err := s.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	proposals, err := s.store.ListProposals(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.IsParticipant(actorID) {
		return proposals, nil
	}
	var own []*models.Proposal
	for _, p := range proposals {
		if p.ProposerID == actorID {
			own = append(own, p)
		}
	}
	return own, nil
}

// AcceptProposal принимает отклик. Одной транзакцией: выбранный отклик
// становится accepted, все остальные pending — rejected, обмен переходит
// в in_progress с зафиксированным участником.
func (s *Service) AcceptProposal(ctx context.Context, tradeID, proposalID, actorID uuid.UUID) (*models.Trade, error) {
	var result *models.Trade
	err := s.updateWithRetry(ctx, tradeID, func(tx *TradeTx) error {
		trade := tx.Trade

		var chosen *models.Proposal
		for _, p := range tx.Proposals {
			if p.ID == proposalID {
				chosen = p
				break
			}
		}
		if chosen == nil {
			return &NotFoundError{Entity: "отклик", ID: proposalID}
		}
		if chosen.Status != models.ProposalStatusPending {
			return &ProposalResolvedError{Status: chosen.Status}
		}
		if err := ValidateTransition(trade, models.TradeStatusInProgress, actorID); err != nil {
			return err
		}

		now := s.now()
		chosen.Status = models.ProposalStatusAccepted
		chosen.UpdatedAt = now
		for _, p := range tx.Proposals {
			if p.ID != chosen.ID && p.Status == models.ProposalStatusPending {
				p.Status = models.ProposalStatusRejected
				p.UpdatedAt = now
			}
		}

		participantID := chosen.ProposerID
		trade.ParticipantID = &participantID
		trade.Status = models.TradeStatusInProgress
		trade.ProposalAcceptedAt = &now

		tx.Notify(participantID, models.EventProposalAccepted, map[string]string{
			"trade_id": trade.ID.String(),
		})
		result = trade
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestCompletion фиксирует заявку на завершение обмена с подтверждениями.
// Повторный вызов тем же участником — идемпотентный no-op. Вызов второй
// стороной, пока заявка уже висит, трактуется как неявное подтверждение:
// обе стороны считают работу сделанной, тупиковая гонка исключается.
func (s *Service) RequestCompletion(ctx context.Context, tradeID, actorID uuid.UUID, notes string, evidence []EvidenceInput) (*models.Trade, error) {
	var (
		result    *models.Trade
		rewardDue bool
	)
	err := s.updateWithRetry(ctx, tradeID, func(tx *TradeTx) error {
		trade := tx.Trade
		rewardDue = false

		if !trade.IsParticipant(actorID) {
			return &AuthorizationError{Reason: "вы не являетесь участником этого обмена"}
		}

		if trade.Status == models.TradeStatusPendingConfirmation {
			if trade.CompletionRequestedBy != nil && *trade.CompletionRequestedBy == actorID {
				// повтор от того же участника: состояние не меняем
				result = trade
				return nil
			}
			// вторая сторона тоже объявила работу сделанной — неявное подтверждение
			due, err := s.applyConfirm(tx, actorID)
			if err != nil {
				return err
			}
			rewardDue = due
			result = trade
			return nil
		}

		if err := ValidateTransition(trade, models.TradeStatusPendingConfirmation, actorID); err != nil {
			return err
		}
		if strings.TrimSpace(notes) == "" {
			return &ValidationError{Reason: "опишите выполненную работу"}
		}
		if len(evidence) == 0 {
			return &ValidationError{Reason: "приложите хотя бы одно подтверждение работы"}
		}

		now := s.now()
		trade.Status = models.TradeStatusPendingConfirmation
		trade.CompletionRequestedBy = &actorID
		trade.CompletionNotes = notes
		// новая заявка запускает отсчет дедлайнов заново
		trade.CompletionRequestedAt = &now
		trade.ReminderStage = 0
		for _, ev := range evidence {
			trade.Evidence = append(trade.Evidence, models.EvidenceItem{
				Type:        ev.Type,
				URL:         ev.URL,
				Title:       ev.Title,
				Description: ev.Description,
				SubmittedBy: actorID,
				SubmittedAt: now,
			})
		}

		if other := trade.Counterpart(actorID); other != nil {
			tx.Notify(*other, models.EventCompletionRequested, map[string]string{
				"trade_id":     trade.ID.String(),
				"requested_by": actorID.String(),
			})
		}
		result = trade
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.maybeAward(ctx, result, rewardDue)
	return result, nil
}

// Confirm подтверждает заявку на завершение и переводит обмен в completed
func (s *Service) Confirm(ctx context.Context, tradeID, actorID uuid.UUID) (*models.Trade, error) {
	var (
		result    *models.Trade
		rewardDue bool
	)
	err := s.updateWithRetry(ctx, tradeID, func(tx *TradeTx) error {
		rewardDue = false
		due, err := s.applyConfirm(tx, actorID)
		if err != nil {
			return err
		}
		rewardDue = due
		result = tx.Trade
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.maybeAward(ctx, result, rewardDue)
	return result, nil
}

// applyConfirm — единственный путь перехода в completed. Используется и
// явным подтверждением, и разрешением гонки в RequestCompletion.
func (s *Service) applyConfirm(tx *TradeTx, actorID uuid.UUID) (rewardDue bool, err error) {
	trade := tx.Trade
	if trade.Status != models.TradeStatusPendingConfirmation {
		if trade.Status.IsTerminal() {
			return false, &AlreadyTerminalError{Status: trade.Status}
		}
		return false, &InvalidStateError{Current: trade.Status, Requested: models.TradeStatusCompleted}
	}
	if err := ValidateTransition(trade, models.TradeStatusCompleted, actorID); err != nil {
		return false, err
	}

	// награда начисляется ровно один раз, строго на переходе в конечный статус
	rewardDue = finishTrade(trade, models.TradeStatusCompleted, s.now())

	tx.Notify(trade.CreatorID, models.EventCompletionConfirmed, map[string]string{"trade_id": trade.ID.String()})
	if trade.ParticipantID != nil {
		tx.Notify(*trade.ParticipantID, models.EventCompletionConfirmed, map[string]string{"trade_id": trade.ID.String()})
	}
	return rewardDue, nil
}

// RequestChanges возвращает обмен из pending_confirmation в работу.
// Подтверждения не удаляются, отзыв добавляется в историю доработок.
func (s *Service) RequestChanges(ctx context.Context, tradeID, actorID uuid.UUID, feedback string) (*models.Trade, error) {
	if strings.TrimSpace(feedback) == "" {
		return nil, &ValidationError{Reason: "опишите, что нужно доработать"}
	}

	var result *models.Trade
	err := s.updateWithRetry(ctx, tradeID, func(tx *TradeTx) error {
		trade := tx.Trade
		if trade.Status != models.TradeStatusPendingConfirmation {
			if trade.Status.IsTerminal() {
				return &AlreadyTerminalError{Status: trade.Status}
			}
			return &InvalidStateError{Current: trade.Status, Requested: models.TradeStatusInProgress}
		}
		if err := ValidateTransition(trade, models.TradeStatusInProgress, actorID); err != nil {
			return err
		}

		requester := trade.CompletionRequestedBy

		now := s.now()
		trade.Status = models.TradeStatusInProgress
		trade.CompletionRequestedBy = nil
		trade.ChangeRequests = append(trade.ChangeRequests, models.ChangeRequest{
			RequestedBy: actorID,
			Feedback:    feedback,
			RequestedAt: now,
		})

		if requester != nil {
			tx.Notify(*requester, models.EventCompletionChangesRequested, map[string]string{
				"trade_id": trade.ID.String(),
				"feedback": feedback,
			})
		}
		result = trade
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelTrade отменяет обмен. Доступно только создателю, пока обмен
// не дошел до протокола подтверждения завершения.
func (s *Service) CancelTrade(ctx context.Context, tradeID, actorID uuid.UUID) (*models.Trade, error) {
	var result *models.Trade
	err := s.updateWithRetry(ctx, tradeID, func(tx *TradeTx) error {
		trade := tx.Trade
		if err := ValidateTransition(trade, models.TradeStatusCancelled, actorID); err != nil {
			return err
		}
		trade.Status = models.TradeStatusCancelled
		if trade.ParticipantID != nil {
			tx.Notify(*trade.ParticipantID, models.EventTradeCancelled, map[string]string{
				"trade_id": trade.ID.String(),
			})
		}
		result = trade
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// updateWithRetry выполняет транзакцию с ограниченным числом повторов
// при конфликте параллельного изменения. Бизнес-ошибки не повторяются.
func (s *Service) updateWithRetry(ctx context.Context, tradeID uuid.UUID, fn func(tx *TradeTx) error) error {
	op := func() error {
		err := s.store.UpdateTrade(ctx, tradeID, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newConflictBackOff(), s.retryAttempts), ctx)
	return backoff.Retry(op, policy)
}

func newConflictBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	return b
}

// maybeAward вызывает подсистему наград после успешной фиксации перехода.
// Состояние уже сохранено, поэтому ошибка порта только логируется.
func (s *Service) maybeAward(ctx context.Context, trade *models.Trade, due bool) {
	if !due || trade == nil || s.rewards == nil {
		return
	}
	participantID := uuid.Nil
	if trade.ParticipantID != nil {
		participantID = *trade.ParticipantID
	}
	if err := s.rewards.AwardCompletion(ctx, trade.ID, trade.CreatorID, participantID); err != nil {
		log.Printf("⚠️ Ошибка начисления награды за обмен %s: %v", trade.ID, err)
	}
}
