package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/biometric"
	"rollcall/internal/otp"
	"rollcall/internal/platform/config"
	"rollcall/internal/verification"
)

func TestDefaultPolicyMatchesDomainDefaults(t *testing.T) {
	p := config.DefaultPolicy()

	assert.Equal(t, verification.DefaultConfig(), verificationConfig(p))
	assert.Equal(t, otp.DefaultConfig(), otpConfig(p))
	assert.Equal(t, biometric.DefaultEnrollmentConfig(), enrollmentConfig(p))
}

func TestPolicyOverridesReachDomainConfig(t *testing.T) {
	p, err := config.ParsePolicy([]byte(`
otp:
  length: 6
  ttl: 2m
matcher:
  strict: 0.8
  normal: 0.65
  soft: 0.55
  duplicate_threshold: 0.95
  adaptive:
    enabled: true
proximity:
  geofence_radius_meters: 120
  tx_power: -65
  path_loss_exponent: 3
strikes:
  threshold: 5
verification:
  request_timeout: 2s
  require_liveness: true
`))
	require.NoError(t, err)

	vc := verificationConfig(p)
	assert.Equal(t, 2*time.Second, vc.RequestTimeout)
	assert.True(t, vc.RequireLiveness)
	assert.Equal(t, biometric.Thresholds{Strict: 0.8, Normal: 0.65, Soft: 0.55}, vc.Matcher)
	assert.True(t, vc.Adaptive.Enabled)
	assert.Equal(t, 0.08, vc.Adaptive.MaxAdjustment)
	assert.Equal(t, 120.0, vc.Proximity.GeofenceRadiusMeters)
	assert.Equal(t, -65.0, vc.Proximity.PathLoss.TxPower)
	assert.Equal(t, 3.0, vc.Proximity.PathLoss.Exponent)

	oc := otpConfig(p)
	assert.Equal(t, 6, oc.Length)
	assert.Equal(t, 2*time.Minute, oc.TTL)
	assert.Equal(t, 2, oc.MaxResends)

	assert.Equal(t, 0.95, enrollmentConfig(p).DuplicateThreshold)
}
