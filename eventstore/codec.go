package eventstore

import (
	"encoding/json"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/runtime/scheme"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// JSONCodec turns events into (type tag, json payload) pairs and back.
// The tag is the scheme GroupKind of the event, e.g. commandcenter.CommandIssued.
type JSONCodec struct {
	knownTypes scheme.KnownTypesRegistry
}

func NewJSONCodec(knownTypes scheme.KnownTypesRegistry) *JSONCodec {
	return &JSONCodec{knownTypes: knownTypes}
}

func (c *JSONCodec) Marshal(ev event.Event) (string, []byte, error) {
	if ev == nil {
		return "", nil, ccErrors.WithPersistenceErr(errors.New("marshaling nil event"))
	}

	gk, err := c.knownTypes.ObjectKind(ev)
	if err != nil {
		return "", nil, ccErrors.WithPersistenceErr(errors.Wrap(err, "resolving event type"))
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return "", nil, ccErrors.WithPersistenceErr(errors.Wrapf(err, "marshaling event %s", gk))
	}

	return gk.String(), payload, nil
}

// Unmarshal never skips: an unknown tag or a payload that does not fit the registered type is a DecodeErr.
func (c *JSONCodec) Unmarshal(eventType string, payload []byte) (event.Event, error) {
	gk, err := scheme.ParseGroupKind(eventType)
	if err != nil {
		return nil, ccErrors.WithDecodeErr(err)
	}

	obj, err := c.knownTypes.NewObject(gk)
	if err != nil {
		return nil, ccErrors.WithDecodeErr(err)
	}

	ev, ok := obj.(event.Event)
	if !ok {
		return nil, ccErrors.WithDecodeErr(errors.Errorf("type %s is registered but is not an event", gk))
	}

	//payload is decoded into a generic map first, mapstructure fills the registered type from it.
	//uuids and instants arrive as strings and go through their UnmarshalText
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ccErrors.WithDecodeErr(errors.Wrapf(err, "decoding payload of %s", gk))
	}

	decoderConf := mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.TextUnmarshallerHookFunc(),
		ErrorUnused: true,
		Squash:      true,
		TagName:     "json",
		Result:      obj,
	}

	decoder, err := mapstructure.NewDecoder(&decoderConf)
	if err != nil {
		return nil, ccErrors.WithDecodeErr(errors.WithStack(err))
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, ccErrors.WithDecodeErr(errors.Wrapf(err, "decoding data from payload into %s", gk))
	}

	return ev, nil
}
