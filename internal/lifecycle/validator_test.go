package lifecycle_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/lifecycle"
	"github.com/rajivgeraev/skillswap-api/internal/models"
)

func tradeFixture(status models.TradeStatus, creator, participant uuid.UUID) *models.Trade {
	t := &models.Trade{
		ID:        uuid.New(),
		CreatorID: creator,
		Status:    status,
	}
	if participant != uuid.Nil {
		t.ParticipantID = &participant
	}
	return t
}

func TestValidateTransitionGraph(t *testing.T) {
	creator := uuid.New()
	participant := uuid.New()

	cases := []struct {
		name      string
		from      models.TradeStatus
		to        models.TradeStatus
		actor     uuid.UUID
		requester uuid.UUID // completionRequestedBy, если задан
		wantErr   interface{}
	}{
		{name: "open -> in_progress создателем", from: models.TradeStatusOpen, to: models.TradeStatusInProgress, actor: creator},
		{name: "open -> in_progress не создателем", from: models.TradeStatusOpen, to: models.TradeStatusInProgress, actor: participant, wantErr: &lifecycle.AuthorizationError{}},
		{name: "open -> cancelled создателем", from: models.TradeStatusOpen, to: models.TradeStatusCancelled, actor: creator},
		{name: "open -> cancelled участником", from: models.TradeStatusOpen, to: models.TradeStatusCancelled, actor: participant, wantErr: &lifecycle.AuthorizationError{}},
		{name: "open -> completed запрещен", from: models.TradeStatusOpen, to: models.TradeStatusCompleted, actor: creator, wantErr: &lifecycle.InvalidStateError{}},
		{name: "open -> pending запрещен", from: models.TradeStatusOpen, to: models.TradeStatusPendingConfirmation, actor: creator, wantErr: &lifecycle.InvalidStateError{}},
		{name: "in_progress -> pending участником", from: models.TradeStatusInProgress, to: models.TradeStatusPendingConfirmation, actor: participant},
		{name: "in_progress -> pending посторонним", from: models.TradeStatusInProgress, to: models.TradeStatusPendingConfirmation, actor: uuid.New(), wantErr: &lifecycle.AuthorizationError{}},
		{name: "in_progress -> completed запрещен", from: models.TradeStatusInProgress, to: models.TradeStatusCompleted, actor: creator, wantErr: &lifecycle.InvalidStateError{}},
		{name: "pending -> completed второй стороной", from: models.TradeStatusPendingConfirmation, to: models.TradeStatusCompleted, actor: creator, requester: participant},
		{name: "pending -> completed заявителем", from: models.TradeStatusPendingConfirmation, to: models.TradeStatusCompleted, actor: participant, requester: participant, wantErr: &lifecycle.AuthorizationError{}},
		{name: "pending -> in_progress второй стороной", from: models.TradeStatusPendingConfirmation, to: models.TradeStatusInProgress, actor: creator, requester: participant},
		{name: "pending -> in_progress заявителем", from: models.TradeStatusPendingConfirmation, to: models.TradeStatusInProgress, actor: participant, requester: participant, wantErr: &lifecycle.AuthorizationError{}},
		{name: "pending -> cancelled запрещен", from: models.TradeStatusPendingConfirmation, to: models.TradeStatusCancelled, actor: creator, wantErr: &lifecycle.InvalidStateError{}},
		{name: "in_progress -> auto_completed планировщиком", from: models.TradeStatusInProgress, to: models.TradeStatusAutoCompleted, actor: lifecycle.SystemActorID},
		{name: "pending -> auto_completed планировщиком", from: models.TradeStatusPendingConfirmation, to: models.TradeStatusAutoCompleted, actor: lifecycle.SystemActorID},
		{name: "auto_completed пользователем запрещен", from: models.TradeStatusPendingConfirmation, to: models.TradeStatusAutoCompleted, actor: creator, wantErr: &lifecycle.AuthorizationError{}},
		{name: "completed конечный", from: models.TradeStatusCompleted, to: models.TradeStatusInProgress, actor: creator, wantErr: &lifecycle.AlreadyTerminalError{}},
		{name: "cancelled конечный", from: models.TradeStatusCancelled, to: models.TradeStatusOpen, actor: creator, wantErr: &lifecycle.AlreadyTerminalError{}},
		{name: "auto_completed конечный", from: models.TradeStatusAutoCompleted, to: models.TradeStatusCompleted, actor: creator, wantErr: &lifecycle.AlreadyTerminalError{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trade := tradeFixture(tc.from, creator, participant)
			if tc.requester != uuid.Nil {
				r := tc.requester
				trade.CompletionRequestedBy = &r
			}

			err := lifecycle.ValidateTransition(trade, tc.to, tc.actor)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			switch tc.wantErr.(type) {
			case *lifecycle.AuthorizationError:
				var target *lifecycle.AuthorizationError
				assert.ErrorAs(t, err, &target)
			case *lifecycle.InvalidStateError:
				var target *lifecycle.InvalidStateError
				assert.ErrorAs(t, err, &target)
			case *lifecycle.AlreadyTerminalError:
				var target *lifecycle.AlreadyTerminalError
				assert.ErrorAs(t, err, &target)
			}
		})
	}
}
