package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType определяет тип события уведомления.
// Набор закрытый: новые события добавляются здесь, а не строками по месту.
type EventType string

const (
	EventProposalReceived           EventType = "proposal_received"
	EventProposalAccepted           EventType = "proposal_accepted"
	EventCompletionRequested        EventType = "completion_requested"
	EventCompletionConfirmed        EventType = "completion_confirmed"
	EventCompletionChangesRequested EventType = "completion_changes_requested"
	EventReminderSent               EventType = "reminder_sent"
	EventAutoCompleted              EventType = "auto_completed"
	EventTradeCancelled             EventType = "trade_cancelled"
)

// Notification — запись исходящего уведомления.
// Создаётся в той же транзакции, что и изменение обмена, и доставляется
// асинхронно: пока SentAt не установлен, запись считается недоставленной.
type Notification struct {
	ID          uuid.UUID       `json:"id"`
	TradeID     uuid.UUID       `json:"trade_id"`
	RecipientID uuid.UUID       `json:"recipient_id"`
	Event       EventType       `json:"event"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
}
