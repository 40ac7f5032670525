// Package wsmarshaller is the JSON codec for frames on the device socket.
package wsmarshaller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hadlocna/PaperDrop/internal/domain/model"
)

// Marshal encodes an outbound envelope into one text frame.
func Marshal(env model.Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("wsmarshaller: nil envelope")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wsmarshaller: encode %s: %w", env.GetType(), err)
	}
	return data, nil
}

// header is decoded first to pick the concrete envelope.
type header struct {
	Type model.EnvelopeType `json:"type"`
}

// ParseInbound decodes a device frame into its typed envelope.
// Undecodable frames yield model.ErrMalformedPayload, unrecognized
// discriminators yield model.ErrUnknownInboundType.
func ParseInbound(frame []byte) (model.Envelope, error) {
	var h header
	if err := json.Unmarshal(frame, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}

	var env model.Envelope
	switch h.Type {
	case model.EnvelopePrintStatus:
		env = &model.PrintStatusEnvelope{}
	case model.EnvelopeDeviceHello:
		env = &model.DeviceHelloEnvelope{}
	case model.EnvelopePong:
		return &model.PongEnvelope{Type: model.EnvelopePong}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", model.ErrMalformedPayload)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownInboundType, h.Type)
	}

	if err := json.Unmarshal(frame, env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedPayload, h.Type, err)
	}

	if ps, ok := env.(*model.PrintStatusEnvelope); ok {
		if ps.MessageID == "" || ps.Status == "" {
			return nil, fmt.Errorf("%w: print_status requires message_id and status", model.ErrMalformedPayload)
		}
	}
	return env, nil
}
