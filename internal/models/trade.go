package models

import (
	"time"

	"github.com/google/uuid"
)

// TradeStatus — статус обмена навыками
type TradeStatus string

const (
	TradeStatusOpen                TradeStatus = "open"
	TradeStatusInProgress          TradeStatus = "in_progress"
	TradeStatusPendingConfirmation TradeStatus = "pending_confirmation"
	TradeStatusCompleted           TradeStatus = "completed"
	TradeStatusAutoCompleted       TradeStatus = "auto_completed"
	TradeStatusCancelled           TradeStatus = "cancelled"
)

// IsTerminal сообщает, является ли статус конечным
func (s TradeStatus) IsTerminal() bool {
	return s == TradeStatusCompleted || s == TradeStatusAutoCompleted || s == TradeStatusCancelled
}

// Trade представляет обмен навыками между двумя участниками
type Trade struct {
	ID             uuid.UUID   `json:"id"`
	CreatorID      uuid.UUID   `json:"creator_id"`
	ParticipantID  *uuid.UUID  `json:"participant_id,omitempty"` // появляется после принятия отклика
	Status         TradeStatus `json:"status"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	OfferedSkill   string      `json:"offered_skill"`
	RequestedSkill string      `json:"requested_skill"`

	// Поля протокола завершения
	CompletionRequestedBy *uuid.UUID      `json:"completion_requested_by,omitempty"`
	CompletionNotes       string          `json:"completion_notes,omitempty"`
	Evidence              []EvidenceItem  `json:"evidence,omitempty"`
	ChangeRequests        []ChangeRequest `json:"change_requests,omitempty"`

	// ReminderStage — какие напоминания о дедлайне уже отправлены (0 — ни одного)
	ReminderStage int `json:"reminder_stage"`
	// RewardGranted — награда за завершение уже начислена
	RewardGranted bool `json:"reward_granted"`

	// Version используется для оптимистичной блокировки
	Version int64 `json:"-"`

	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProposalAcceptedAt    *time.Time `json:"proposal_accepted_at,omitempty"`
	CompletionRequestedAt *time.Time `json:"completion_requested_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// EvidenceItem — подтверждение выполненной работы (только добавляется, никогда не удаляется)
type EvidenceItem struct {
	Type        string    `json:"type"` // image, link, document
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	SubmittedBy uuid.UUID `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ChangeRequest — запрос доработок по заявке на завершение
type ChangeRequest struct {
	RequestedBy uuid.UUID `json:"requested_by"`
	Feedback    string    `json:"feedback"`
	RequestedAt time.Time `json:"requested_at"`
}

// IsParticipant проверяет, что пользователь — одна из сторон обмена
func (t *Trade) IsParticipant(userID uuid.UUID) bool {
	if t.CreatorID == userID {
		return true
	}
	return t.ParticipantID != nil && *t.ParticipantID == userID
}

// Counterpart возвращает вторую сторону обмена относительно userID
func (t *Trade) Counterpart(userID uuid.UUID) *uuid.UUID {
	if t.CreatorID == userID {
		return t.ParticipantID
	}
	if t.ParticipantID != nil && *t.ParticipantID == userID {
		id := t.CreatorID
		return &id
	}
	return nil
}

// Clone возвращает глубокую копию обмена
func (t *Trade) Clone() *Trade {
	cp := *t
	if t.ParticipantID != nil {
		id := *t.ParticipantID
		cp.ParticipantID = &id
	}
	if t.CompletionRequestedBy != nil {
		id := *t.CompletionRequestedBy
		cp.CompletionRequestedBy = &id
	}
	cp.Evidence = append([]EvidenceItem(nil), t.Evidence...)
	cp.ChangeRequests = append([]ChangeRequest(nil), t.ChangeRequests...)
	if t.ProposalAcceptedAt != nil {
		ts := *t.ProposalAcceptedAt
		cp.ProposalAcceptedAt = &ts
	}
	if t.CompletionRequestedAt != nil {
		ts := *t.CompletionRequestedAt
		cp.CompletionRequestedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}
