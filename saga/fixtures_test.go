package saga

import (
	"time"

	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
)

var (
	issuedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	deadline = issuedAt.Add(time.Hour)
)

func clockAt(now time.Time) func() time.Time {
	return func() time.Time {
		return now
	}
}

func issuedEvent(commandID, teamID uuid.UUID, members ...uuid.UUID) *event.CommandIssued {
	return &event.CommandIssued{
		CommandID: commandID,
		TeamID:    teamID,
		Message: event.Message{
			Content:  "hold position",
			SenderID: teamID,
			SentAt:   issuedAt,
		},
		Deadline:                deadline,
		IssuedBy:                teamID,
		ExpectedAcknowledgerIDs: members,
		Timestamp:               issuedAt,
	}
}

func ackEvent(commandID, teamID, memberID uuid.UUID, at time.Time) *event.CommandAcknowledged {
	return &event.CommandAcknowledged{
		CommandID: commandID,
		TeamID:    teamID,
		MemberID:  memberID,
		Timestamp: at,
	}
}

func params(commandID, teamID uuid.UUID, members ...uuid.UUID) Params {
	return ParamsFromIssued(issuedEvent(commandID, teamID, members...))
}
