package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hadlocna/PaperDrop/config"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/hadlocna/PaperDrop/internal/metrics"
	"github.com/hadlocna/PaperDrop/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Credentials are presented by a device with the connection request.
type Credentials struct {
	PairingCode string
	Secret      string
}

func (c Credentials) complete() bool {
	return c.PairingCode != "" && c.Secret != ""
}

// [AUTH_SERVICE] TRUST-ON-FIRST-USE DEVICE HANDSHAKE
type Auther interface {
	// Authenticate admits a known device with a matching secret, or provisions
	// an unknown pairing code. It never mutates a device on a secret mismatch.
	Authenticate(ctx context.Context, creds Credentials) (*model.Device, error)
	// Provision pre-creates a setup_pending device for out-of-band pairing.
	Provision(ctx context.Context, creds Credentials) (*model.Device, error)
}

// Handshake outcomes reported to metrics.
const (
	handshakeAccepted = "accepted"
	handshakeCreated  = "created"
	handshakeMissing  = "missing"
	handshakeInvalid  = "invalid"
	handshakeError    = "error"
)

type AuthService struct {
	devices     store.DeviceStore
	locks       *stripedLock
	hashSecrets bool
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewAuthService(st store.Store, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *AuthService {
	return &AuthService{
		devices:     st,
		locks:       newStripedLock(defaultStripes),
		hashSecrets: cfg.Auth.HashNewSecrets,
		metrics:     m,
		logger:      logger.With("component", "auth"),
		now:         time.Now,
	}
}

func (s *AuthService) Authenticate(ctx context.Context, creds Credentials) (*model.Device, error) {
	if !creds.complete() {
		s.metrics.ObserveHandshake(handshakeMissing)
		return nil, model.ErrMissingCredentials
	}

	// [FIRST_CONTACT_GUARD] Two sockets racing with the same new code must
	// agree on a single record. The store's unique constraint covers other processes.
	unlock := s.locks.Lock(creds.PairingCode)
	defer unlock()

	device, err := s.devices.GetDeviceByPairingCode(ctx, creds.PairingCode)
	if errors.Is(err, model.ErrDeviceNotFound) {
		return s.firstContact(ctx, creds)
	}
	if err != nil {
		s.metrics.ObserveHandshake(handshakeError)
		return nil, fmt.Errorf("auth: lookup device: %w", err)
	}

	return s.verify(device, creds)
}

func (s *AuthService) firstContact(ctx context.Context, creds Credentials) (*model.Device, error) {
	secret, err := s.storedSecret(creds.Secret)
	if err != nil {
		s.metrics.ObserveHandshake(handshakeError)
		return nil, err
	}

	device := model.NewDevice(creds.PairingCode, secret, model.DeviceOnline, s.now())
	err = s.devices.CreateDevice(ctx, device)
	switch {
	case err == nil:
		s.metrics.ObserveHandshake(handshakeCreated)
		s.logger.Info("[AUTH] device provisioned on first contact",
			"device_id", device.ID,
			"pairing_code", device.PairingCode,
		)
		return device, nil

	case errors.Is(err, model.ErrDuplicatePairingCode):
		// Lost the race to another process; the winner's record decides.
		existing, lookupErr := s.devices.GetDeviceByPairingCode(ctx, creds.PairingCode)
		if lookupErr != nil {
			s.metrics.ObserveHandshake(handshakeError)
			return nil, fmt.Errorf("auth: reload device: %w", lookupErr)
		}
		return s.verify(existing, creds)

	default:
		s.metrics.ObserveHandshake(handshakeError)
		return nil, fmt.Errorf("auth: create device: %w", err)
	}
}

func (s *AuthService) verify(device *model.Device, creds Credentials) (*model.Device, error) {
	if !secretMatches(device.Secret, creds.Secret) {
		s.metrics.ObserveHandshake(handshakeInvalid)
		s.logger.Warn("[AUTH] secret mismatch", "pairing_code", creds.PairingCode)
		return nil, model.ErrInvalidCredentials
	}

	s.metrics.ObserveHandshake(handshakeAccepted)
	return device, nil
}

func (s *AuthService) Provision(ctx context.Context, creds Credentials) (*model.Device, error) {
	if !creds.complete() {
		return nil, model.ErrMissingCredentials
	}

	secret, err := s.storedSecret(creds.Secret)
	if err != nil {
		return nil, err
	}

	device := model.NewDevice(creds.PairingCode, secret, model.DeviceSetupPending, s.now())
	if err := s.devices.CreateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("auth: provision %s: %w", creds.PairingCode, err)
	}
	return device, nil
}

// storedSecret is the credential form persisted for a new device.
func (s *AuthService) storedSecret(secret string) (string, error) {
	if !s.hashSecrets {
		return secret, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	return string(hash), nil
}

// secretMatches accepts both bcrypt hashes and legacy plaintext records.
func secretMatches(stored, supplied string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
