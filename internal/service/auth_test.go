package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateFirstContactProvisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	device, err := f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	require.NoError(t, err)
	assert.Equal(t, model.DeviceOnline, device.Status)
	assert.Equal(t, model.DefaultFriendlyName, device.FriendlyName)

	stored, err := f.store.GetDeviceByPairingCode(ctx, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, device.ID, stored.ID)
	assert.Equal(t, "s1", stored.Secret)
}

func TestAuthenticateKnownDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	require.NoError(t, err)

	again, err := f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestAuthenticateWrongSecretChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	require.NoError(t, err)
	before, err := f.store.GetDeviceByPairingCode(ctx, "ABC-123")
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "nope"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	after, err := f.store.GetDeviceByPairingCode(ctx, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, f.hub.IsConnected(before.ID))
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{name: "nothing", creds: Credentials{}},
		{name: "no secret", creds: Credentials{PairingCode: "ABC-123"}},
		{name: "no code", creds: Credentials{Secret: "s1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.auth.Authenticate(context.Background(), tt.creds)
			assert.ErrorIs(t, err, model.ErrMissingCredentials)

			_, err = f.store.GetDeviceByPairingCode(context.Background(), tt.creds.PairingCode)
			assert.ErrorIs(t, err, model.ErrDeviceNotFound)
		})
	}
}

func TestAuthenticateConcurrentFirstContact(t *testing.T) {
	f := newFixture(t)

	const racers = 16
	ids := make([]uuid.UUID, racers)
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.auth.Authenticate(context.Background(), Credentials{PairingCode: "NEW-001", Secret: "s1"})
			errs[i] = err
			if d != nil {
				ids[i] = d.ID
			}
		}()
	}
	wg.Wait()

	for i := range racers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every racer must see the same record")
	}
}

func TestAuthenticateHashedSecrets(t *testing.T) {
	f := newFixture(t)
	f.auth.hashSecrets = true
	ctx := context.Background()

	_, err := f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	require.NoError(t, err)

	stored, err := f.store.GetDeviceByPairingCode(ctx, "ABC-123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Secret, "$2"))
	assert.NotContains(t, stored.Secret, "s1")

	_, err = f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s1"})
	assert.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, Credentials{PairingCode: "ABC-123", Secret: "s2"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestProvisionThenConnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	provisioned, err := f.auth.Provision(ctx, Credentials{PairingCode: "PRE-001", Secret: "s1"})
	require.NoError(t, err)
	assert.Equal(t, model.DeviceSetupPending, provisioned.Status)

	device, err := f.auth.Authenticate(ctx, Credentials{PairingCode: "PRE-001", Secret: "s1"})
	require.NoError(t, err)
	assert.Equal(t, provisioned.ID, device.ID)

	_, err = f.auth.Provision(ctx, Credentials{PairingCode: "PRE-001", Secret: "other"})
	assert.ErrorIs(t, err, model.ErrDuplicatePairingCode)

	_, err = f.auth.Provision(ctx, Credentials{PairingCode: "PRE-002"})
	assert.ErrorIs(t, err, model.ErrMissingCredentials)
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches("s1", "s1"))
	assert.False(t, secretMatches("s1", "s10"))
	assert.False(t, secretMatches("s1", ""))
}
