package subscription

import (
	"encoding/json"

	"nostrworker.dev/pkg/mesh"
	"nostrworker.dev/pkg/wire"
)

// SubscribePayload is the Parser-bound control payload for
// mesh.FrameSubscribe: spec.md §6 lists Subscribe as one of the tagged
// messages the control schema carries.
type SubscribePayload struct {
	Fingerprint string        `msgpack:"fingerprint"`
	Requests    []wire.Request `msgpack:"requests"`
	Options     wire.Options   `msgpack:"options"`
}

// UnsubscribePayload is the Parser-bound control payload for
// mesh.FrameUnsubscribe.
type UnsubscribePayload struct {
	Fingerprint string `msgpack:"fingerprint"`
}

// PublishPayload is the Parser-bound control payload for mesh.FramePublish.
type PublishPayload struct {
	Fingerprint   string          `msgpack:"fingerprint"`
	Event         json.RawMessage `msgpack:"event"`
	DefaultRelays []string        `msgpack:"default_relays,omitempty"`
}

// buildSubscribeFrame, buildUnsubscribeFrame and buildPublishFrame encode
// the tagged-union control frames the Engine sends to the Parser worker
// (spec.md §4.C/§9: "Control frames use a tagged-union schema").
func buildSubscribeFrame(fp string, requests []wire.Request, options wire.Options) (mesh.Frame, error) {
	payload, err := mesh.EncodePayload(SubscribePayload{Fingerprint: fp, Requests: requests, Options: options})
	if err != nil {
		return mesh.Frame{}, err
	}
	return mesh.Frame{Type: mesh.FrameSubscribe, Payload: payload}, nil
}

func buildUnsubscribeFrame(fp string) (mesh.Frame, error) {
	payload, err := mesh.EncodePayload(UnsubscribePayload{Fingerprint: fp})
	if err != nil {
		return mesh.Frame{}, err
	}
	return mesh.Frame{Type: mesh.FrameUnsubscribe, Payload: payload}, nil
}

func buildPublishFrame(fp string, event json.RawMessage, defaultRelays []string) (mesh.Frame, error) {
	payload, err := mesh.EncodePayload(PublishPayload{Fingerprint: fp, Event: event, DefaultRelays: defaultRelays})
	if err != nil {
		return mesh.Frame{}, err
	}
	return mesh.Frame{Type: mesh.FramePublish, Payload: payload}, nil
}
