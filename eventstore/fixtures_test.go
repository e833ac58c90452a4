package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedNow
}

func sequentialIDs() func() uuid.UUID {
	var counter byte
	return func() uuid.UUID {
		counter++
		return uuid.UUID{15: counter}
	}
}

func commandHistory(commandID, teamID uuid.UUID, members ...uuid.UUID) []event.Event {
	history := []event.Event{
		&event.CommandIssued{
			CommandID: commandID,
			TeamID:    teamID,
			Message: event.Message{
				Content:  "evacuate sector 7",
				SenderID: members[0],
				SentAt:   fixedNow,
			},
			Deadline:                fixedNow.Add(time.Hour),
			IssuedBy:                members[0],
			ExpectedAcknowledgerIDs: members,
			Timestamp:               fixedNow,
		},
	}

	for i, member := range members {
		history = append(history, &event.CommandAcknowledged{
			CommandID: commandID,
			TeamID:    teamID,
			MemberID:  member,
			Timestamp: fixedNow.Add(time.Duration(i+1) * time.Second),
		})
	}

	return history
}

// assertStoreContract runs the same expectations against every Store implementation.
func assertStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	commandID := uuid.New()
	otherCommandID := uuid.New()
	teamID := uuid.New()
	memberA, memberB := uuid.New(), uuid.New()

	team := &event.TeamCreated{
		TeamID: teamID,
		Name:   "bravo",
		Members: []event.Member{
			{ID: memberA, Name: "Ann", Role: "lead"},
			{ID: memberB, Name: "Bob", Role: "medic"},
		},
		IssuedBy:  memberA,
		Timestamp: fixedNow,
	}

	history := commandHistory(commandID, teamID, memberA, memberB)
	otherHistory := commandHistory(otherCommandID, teamID, memberB)

	empty, err := store.ReadByCorrelationID(ctx, commandID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Append(ctx, team))
	// interleave two correlation ids, each must keep its own append order
	for i := 0; i < len(history); i++ {
		require.NoError(t, store.Append(ctx, history[i]))
		if i < len(otherHistory) {
			require.NoError(t, store.Append(ctx, otherHistory[i]))
		}
	}

	read, err := store.ReadByCorrelationID(ctx, commandID)
	require.NoError(t, err)
	assert.Equal(t, history, read)

	read, err = store.ReadByCorrelationID(ctx, otherCommandID)
	require.NoError(t, err)
	assert.Equal(t, otherHistory, read)

	read, err = store.ReadByCorrelationID(ctx, teamID)
	require.NoError(t, err)
	assert.Equal(t, []event.Event{team}, read)

	all, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1+len(history)+len(otherHistory))
	assert.Equal(t, team, all[0])
	assert.Equal(t, history[0], all[1])
	assert.Equal(t, otherHistory[0], all[2])
	assert.Equal(t, history[len(history)-1], all[len(all)-1])
}
