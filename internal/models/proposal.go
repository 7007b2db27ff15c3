package models

import (
	"time"

	"github.com/google/uuid"
)

// ProposalStatus — статус отклика на обмен
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusAccepted ProposalStatus = "accepted"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// Proposal представляет отклик пользователя на открытый обмен
type Proposal struct {
	ID             uuid.UUID      `json:"id"`
	TradeID        uuid.UUID      `json:"trade_id"`
	ProposerID     uuid.UUID      `json:"proposer_id"`
	Status         ProposalStatus `json:"status"`
	Message        string         `json:"message,omitempty"`
	OfferedSkill   string         `json:"offered_skill"`
	RequestedSkill string         `json:"requested_skill,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Clone возвращает копию отклика
func (p *Proposal) Clone() *Proposal {
	cp := *p
	return &cp
}
