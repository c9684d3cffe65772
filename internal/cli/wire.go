package cli

import (
	"rollcall/internal/biometric"
	"rollcall/internal/otp"
	"rollcall/internal/platform/config"
	"rollcall/internal/proximity"
	"rollcall/internal/verification"
)

// The functions below translate the YAML policy into the config types each
// domain package owns, so those packages never import the config layer.

func verificationConfig(p *config.Policy) verification.Config {
	return verification.Config{
		RequestTimeout:  p.Verification.RequestTimeout,
		NearMissFloor:   p.Verification.NearMissFloor,
		RequireLiveness: p.Verification.RequireLiveness,
		Matcher: biometric.Thresholds{
			Strict: p.Matcher.Strict,
			Normal: p.Matcher.Normal,
			Soft:   p.Matcher.Soft,
		},
		Adaptive:  adaptivePolicy(p.Matcher.Adaptive),
		Proximity: proximityThresholds(p.Proximity),
	}
}

func adaptivePolicy(a config.AdaptivePolicy) biometric.AdaptivePolicy {
	return biometric.AdaptivePolicy{
		Enabled:         a.Enabled,
		OffHoursPenalty: a.OffHoursPenalty,
		RetryPenalty:    a.RetryPenalty,
		MaxAdjustment:   a.MaxAdjustment,
		DayStartHour:    a.DayStartHour,
		DayEndHour:      a.DayEndHour,
		RetryAfter:      a.RetryAfter,
	}
}

func proximityThresholds(p config.ProximityPolicy) proximity.Thresholds {
	return proximity.Thresholds{
		GeofenceRadiusMeters: p.GeofenceRadiusMeters,
		RSSIThreshold:        p.RSSIThreshold,
		PathLoss:             proximity.PathLoss{TxPower: p.TxPower, Exponent: p.PathLossExponent},
		PressureThreshold:    p.PressureThreshold,
		FloorHeightMeters:    p.FloorHeightMeters,
		MotionThreshold:      p.MotionThreshold,
		MotionMinPairs:       p.MotionMinPairs,
		MotionTolerance:      p.MotionTolerance,
	}
}

func otpConfig(p *config.Policy) otp.Config {
	return otp.Config{
		Length:          p.OTP.Length,
		TTL:             p.OTP.TTL,
		MaxResends:      p.OTP.MaxResends,
		BatchRetryLimit: p.OTP.BatchRetryLimit,
	}
}

func enrollmentConfig(p *config.Policy) biometric.EnrollmentConfig {
	return biometric.EnrollmentConfig{
		MinShots:           p.Enrollment.MinShots,
		DuplicateThreshold: p.Matcher.DuplicateThreshold,
		ConsistencyAverage: p.Enrollment.ConsistencyAverage,
		ConsistencyMinimum: p.Enrollment.ConsistencyMinimum,
	}
}
