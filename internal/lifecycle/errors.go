package lifecycle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// ErrConcurrencyConflict возвращается хранилищем, когда запись изменилась
// между чтением и фиксацией транзакции. Вызывающий должен повторить операцию.
var ErrConcurrencyConflict = errors.New("запись была изменена параллельной операцией")

// NotFoundError — обмен или отклик не найден
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s не найден", e.Entity, e.ID)
}

// AuthorizationError — действие запрещено для этого пользователя
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

// InvalidStateError — переход недопустим из текущего статуса
type InvalidStateError struct {
	Current   models.TradeStatus
	Requested models.TradeStatus
}

func (e *InvalidStateError) Error() string {
	if e.Requested == "" {
		return fmt.Sprintf("операция недоступна в статусе %q", e.Current)
	}
	return fmt.Sprintf("переход из статуса %q в %q недопустим", e.Current, e.Requested)
}

// AlreadyTerminalError — обмен уже находится в конечном статусе
type AlreadyTerminalError struct {
	Status models.TradeStatus
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("обмен уже завершён со статусом %q", e.Status)
}

// ValidationError — в запросе не хватает обязательных данных
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ProposalResolvedError — отклик уже принят или отклонён
type ProposalResolvedError struct {
	Status models.ProposalStatus
}

func (e *ProposalResolvedError) Error() string {
	return fmt.Sprintf("отклик уже обработан, статус %q", e.Status)
}
