package model

import "errors"

var (
	ErrMissingCredentials   = errors.New("missing device credentials")
	ErrInvalidCredentials   = errors.New("invalid device credentials")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceAlreadyClaimed = errors.New("device already claimed")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicatePairingCode = errors.New("pairing code already registered")
	ErrMalformedPayload     = errors.New("malformed inbound payload")
	ErrUnknownInboundType   = errors.New("unknown inbound type")
	ErrInvalidTransition    = errors.New("invalid message state transition")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
)
