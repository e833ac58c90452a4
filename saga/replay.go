package saga

import (
	"context"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/eventstore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// LoadFromEvents builds a fresh saga and replays history through it in order.
// A replay that reaches the compensated status invokes compensator like the live run did, so compensator must be idempotent.
func LoadFromEvents(ctx context.Context, params Params, compensator CompensationHandler, history []event.Event, options ...Opt) (*CommandSaga, error) {
	s, err := NewCommandSaga(params, compensator, options...)
	if err != nil {
		return nil, err
	}

	for _, ev := range history {
		if err := s.Replay(ctx, ev); err != nil {
			return nil, errors.Wrapf(err, "replaying saga %s", params.CommandID)
		}
	}

	return s, nil
}

// ParamsFromHistory finds the CommandIssued event of commandID in history.
func ParamsFromHistory(commandID uuid.UUID, history []event.Event) (Params, error) {
	for _, ev := range history {
		if issued, ok := ev.(*event.CommandIssued); ok && issued.CommandID == commandID {
			return ParamsFromIssued(issued), nil
		}
	}

	return Params{}, ccErrors.InvalidState("command %s was never issued", commandID)
}

// LoadFromStore reads the history of commandID and replays it. Decode errors of the store are returned as is.
func LoadFromStore(ctx context.Context, reader eventstore.Reader, commandID uuid.UUID, compensator CompensationHandler, options ...Opt) (*CommandSaga, []event.Event, error) {
	history, err := reader.ReadByCorrelationID(ctx, commandID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading history of saga %s", commandID)
	}

	params, err := ParamsFromHistory(commandID, history)
	if err != nil {
		return nil, history, err
	}

	s, err := LoadFromEvents(ctx, params, compensator, history, options...)
	if err != nil {
		return nil, history, err
	}

	return s, history, nil
}
