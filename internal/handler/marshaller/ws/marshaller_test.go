package wsmarshaller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hadlocna/PaperDrop/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalOutbound(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &model.Message{
		ID:          uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7"),
		Content:     json.RawMessage(`"hello"`),
		ContentType: model.ContentText,
		SenderName:  "Ada",
		CreatedAt:   created,
	}

	tests := []struct {
		name string
		env  model.Envelope
		want string
	}{
		{
			name: "claimed",
			env:  model.NewClaimedEnvelope("Ada"),
			want: `{"type":"claimed","owner_name":"Ada"}`,
		},
		{
			name: "test print",
			env:  model.NewTestPrintEnvelope("req-1"),
			want: `{"type":"test_print","request_id":"req-1"}`,
		},
		{
			name: "new message",
			env:  model.NewNewMessageEnvelope(msg),
			want: `{"type":"new_message","message":{"id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","content":"hello","contentType":"text","createdAt":"2025-03-01T12:00:00Z"}}`,
		},
		{
			name: "print job",
			env:  model.NewPrintJobEnvelope(msg),
			want: `{"type":"print_job","message_id":"7c9e6679-7425-40de-944b-e07fc1f90ae7","content_type":"text","content":"hello","sender_name":"Ada"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.env)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestMarshalNil(t *testing.T) {
	_, err := Marshal(nil)
	assert.Error(t, err)
}

func TestParseInbound(t *testing.T) {
	t.Run("print status", func(t *testing.T) {
		env, err := ParseInbound([]byte(`{"type":"print_status","message_id":"m1","status":"error","error":"paper jam"}`))
		require.NoError(t, err)

		ps, ok := env.(*model.PrintStatusEnvelope)
		require.True(t, ok)
		assert.Equal(t, "m1", ps.MessageID)
		assert.Equal(t, "error", ps.Status)
		require.NotNil(t, ps.Error)
		assert.Equal(t, "paper jam", *ps.Error)
	})

	t.Run("device hello", func(t *testing.T) {
		env, err := ParseInbound([]byte(`{"type":"device_hello","device_code":"ABC-123","firmware_version":"1.2.0","local_ip":"10.0.0.7"}`))
		require.NoError(t, err)

		hello, ok := env.(*model.DeviceHelloEnvelope)
		require.True(t, ok)
		assert.Equal(t, "1.2.0", hello.FirmwareVersion)
	})

	t.Run("pong", func(t *testing.T) {
		env, err := ParseInbound([]byte(`{"type":"pong"}`))
		require.NoError(t, err)
		assert.Equal(t, model.EnvelopePong, env.GetType())
	})
}

func TestParseInboundRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{name: "not json", frame: `not json`, want: model.ErrMalformedPayload},
		{name: "no type", frame: `{"message_id":"m1"}`, want: model.ErrMalformedPayload},
		{name: "wrong field type", frame: `{"type":"print_status","message_id":42,"status":"printed"}`, want: model.ErrMalformedPayload},
		{name: "missing status", frame: `{"type":"print_status","message_id":"m1"}`, want: model.ErrMalformedPayload},
		{name: "unknown type", frame: `{"type":"reboot"}`, want: model.ErrUnknownInboundType},
		{name: "outbound type echoed back", frame: `{"type":"print_job"}`, want: model.ErrUnknownInboundType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInbound([]byte(tt.frame))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
