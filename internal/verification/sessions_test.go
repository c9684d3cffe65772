package verification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/proximity"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/sentinel"
)

func TestSessionRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewSessionRegistry()

	_, err := reg.Reference(ctx, "cs101")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	pressure := 1013.2
	ref := proximity.Reference{
		Location:     &proximity.Coordinates{Lat: 28.6139, Lon: 77.2090},
		RadiusMeters: 50,
		Pressure:     &pressure,
	}
	require.NoError(t, reg.Set("cs101", ref))

	got, err := reg.Reference(ctx, "cs101")
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	reg.Delete("cs101")
	_, err = reg.Reference(ctx, "cs101")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSessionRegistryRejectsInvalidReference(t *testing.T) {
	reg := NewSessionRegistry()
	low := 120.0

	tests := []struct {
		name      string
		sessionID string
		ref       proximity.Reference
	}{
		{name: "empty session", ref: proximity.Reference{}},
		{name: "latitude out of range", sessionID: "s", ref: proximity.Reference{Location: &proximity.Coordinates{Lat: 91}}},
		{name: "negative radius", sessionID: "s", ref: proximity.Reference{RadiusMeters: -1}},
		{name: "implausible pressure", sessionID: "s", ref: proximity.Reference{Pressure: &low}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Set(tt.sessionID, tt.ref)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}
