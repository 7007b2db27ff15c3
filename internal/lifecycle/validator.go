package lifecycle

import (
	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// SystemActorID — служебный идентификатор планировщика.
// Только он имеет право на переход в auto_completed.
var SystemActorID = uuid.Nil

// transitionGraph — единственное описание допустимых переходов статуса.
// Любая мутирующая операция обязана пройти через ValidateTransition.
var transitionGraph = map[models.TradeStatus][]models.TradeStatus{
	models.TradeStatusOpen: {
		models.TradeStatusInProgress,
		models.TradeStatusCancelled,
	},
	models.TradeStatusInProgress: {
		models.TradeStatusPendingConfirmation,
		models.TradeStatusAutoCompleted,
		models.TradeStatusCancelled,
	},
	models.TradeStatusPendingConfirmation: {
		models.TradeStatusCompleted,
		models.TradeStatusInProgress,
		models.TradeStatusAutoCompleted,
	},
	// конечные статусы не имеют исходящих переходов
	models.TradeStatusCompleted:     {},
	models.TradeStatusAutoCompleted: {},
	models.TradeStatusCancelled:     {},
}

// ValidateTransition проверяет, что переход обмена в статус requested
// допустим по графу и разрешён пользователю actorID.
func ValidateTransition(trade *models.Trade, requested models.TradeStatus, actorID uuid.UUID) error {
	current := trade.Status

	if current.IsTerminal() {
		return &AlreadyTerminalError{Status: current}
	}

	allowed := false
	for _, next := range transitionGraph[current] {
		if next == requested {
			allowed = true
			break
		}
	}
	if !allowed {
		return &InvalidStateError{Current: current, Requested: requested}
	}

	switch requested {
	case models.TradeStatusInProgress:
		if current == models.TradeStatusOpen {
			// принятие отклика доступно только создателю
			if actorID != trade.CreatorID {
				return &AuthorizationError{Reason: "только создатель обмена может принять отклик"}
			}
			return nil
		}
		// возврат из pending_confirmation — запрос доработок второй стороной
		if !trade.IsParticipant(actorID) {
			return &AuthorizationError{Reason: "вы не являетесь участником этого обмена"}
		}
		if trade.CompletionRequestedBy != nil && *trade.CompletionRequestedBy == actorID {
			return &AuthorizationError{Reason: "нельзя запросить доработки по собственной заявке на завершение"}
		}
		return nil

	case models.TradeStatusPendingConfirmation:
		if !trade.IsParticipant(actorID) {
			return &AuthorizationError{Reason: "вы не являетесь участником этого обмена"}
		}
		return nil

	case models.TradeStatusCompleted:
		if !trade.IsParticipant(actorID) {
			return &AuthorizationError{Reason: "вы не являетесь участником этого обмена"}
		}
		// самоподтверждение запрещено всегда
		if trade.CompletionRequestedBy != nil && *trade.CompletionRequestedBy == actorID {
			return &AuthorizationError{Reason: "нельзя подтвердить собственную заявку на завершение"}
		}
		return nil

	case models.TradeStatusAutoCompleted:
		if actorID != SystemActorID {
			return &AuthorizationError{Reason: "автозавершение доступно только планировщику"}
		}
		return nil

	case models.TradeStatusCancelled:
		if actorID != trade.CreatorID {
			return &AuthorizationError{Reason: "только создатель может отменить обмен"}
		}
		return nil
	}

	return &InvalidStateError{Current: current, Requested: requested}
}
