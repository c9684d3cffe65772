package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds every tunable threshold of the verification engine. It is
// loaded from YAML on top of DefaultPolicy, so a file only needs the fields it
// overrides.
type Policy struct {
	OTP          OTPPolicy          `yaml:"otp"`
	Matcher      MatcherPolicy      `yaml:"matcher"`
	Enrollment   EnrollmentPolicy   `yaml:"enrollment"`
	Proximity    ProximityPolicy    `yaml:"proximity"`
	Strikes      StrikePolicy       `yaml:"strikes"`
	Verification VerificationPolicy `yaml:"verification"`
}

type OTPPolicy struct {
	Length          int           `yaml:"length"`
	TTL             time.Duration `yaml:"ttl"`
	MaxResends      int           `yaml:"max_resends"`
	BatchRetryLimit int           `yaml:"batch_retry_limit"`
}

type MatcherPolicy struct {
	Strict             float64        `yaml:"strict"`
	Normal             float64        `yaml:"normal"`
	Soft               float64        `yaml:"soft"`
	DuplicateThreshold float64        `yaml:"duplicate_threshold"`
	Adaptive           AdaptivePolicy `yaml:"adaptive"`
}

// AdaptivePolicy lowers the normal threshold under contextual modifiers.
type AdaptivePolicy struct {
	Enabled         bool    `yaml:"enabled"`
	OffHoursPenalty float64 `yaml:"off_hours_penalty"`
	RetryPenalty    float64 `yaml:"retry_penalty"`
	MaxAdjustment   float64 `yaml:"max_adjustment"`
	DayStartHour    int     `yaml:"day_start_hour"`
	DayEndHour      int     `yaml:"day_end_hour"`
	RetryAfter      int     `yaml:"retry_after"`
}

type EnrollmentPolicy struct {
	MinShots           int     `yaml:"min_shots"`
	ConsistencyAverage float64 `yaml:"consistency_average"`
	ConsistencyMinimum float64 `yaml:"consistency_minimum"`
}

type ProximityPolicy struct {
	GeofenceRadiusMeters float64       `yaml:"geofence_radius_meters"`
	RSSIThreshold        float64       `yaml:"rssi_threshold"`
	TxPower              float64       `yaml:"tx_power"`
	PathLossExponent     float64       `yaml:"path_loss_exponent"`
	PressureThreshold    float64       `yaml:"pressure_threshold"`
	FloorHeightMeters    float64       `yaml:"floor_height_meters"`
	MotionThreshold      float64       `yaml:"motion_threshold"`
	MotionMinPairs       int           `yaml:"motion_min_pairs"`
	MotionTolerance      time.Duration `yaml:"motion_tolerance"`
}

type StrikePolicy struct {
	Threshold int `yaml:"threshold"`
}

type VerificationPolicy struct {
	NearMissFloor   float64       `yaml:"near_miss_floor"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	RequireLiveness bool          `yaml:"require_liveness"`
}

// DefaultPolicy returns the built-in thresholds.
func DefaultPolicy() *Policy {
	return &Policy{
		OTP: OTPPolicy{
			Length:          4,
			TTL:             60 * time.Second,
			MaxResends:      2,
			BatchRetryLimit: 100,
		},
		Matcher: MatcherPolicy{
			Strict:             0.70,
			Normal:             0.60,
			Soft:               0.50,
			DuplicateThreshold: 0.90,
			Adaptive: AdaptivePolicy{
				Enabled:         false,
				OffHoursPenalty: 0.05,
				RetryPenalty:    0.03,
				MaxAdjustment:   0.08,
				DayStartHour:    7,
				DayEndHour:      19,
				RetryAfter:      2,
			},
		},
		Enrollment: EnrollmentPolicy{
			MinShots:           3,
			ConsistencyAverage: 0.7,
			ConsistencyMinimum: 0.5,
		},
		Proximity: ProximityPolicy{
			GeofenceRadiusMeters: 50,
			RSSIThreshold:        -70,
			TxPower:              -59,
			PathLossExponent:     2,
			PressureThreshold:    0.5,
			FloorHeightMeters:    3.5,
			MotionThreshold:      0.7,
			MotionMinPairs:       10,
			MotionTolerance:      20 * time.Millisecond,
		},
		Strikes: StrikePolicy{Threshold: 3},
		Verification: VerificationPolicy{
			NearMissFloor:  0.25,
			RequestTimeout: 5 * time.Second,
		},
	}
}

// LoadPolicy reads a YAML policy file. An empty path or missing file returns
// defaults; invalid YAML or out-of-range values return an error.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML over the defaults and validates the result.
func ParsePolicy(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects policies the engine cannot honor.
func (p *Policy) Validate() error {
	var errs []error
	if p.OTP.Length < 1 || p.OTP.Length > 10 {
		errs = append(errs, fmt.Errorf("otp.length must be between 1 and 10, got %d", p.OTP.Length))
	}
	if p.OTP.TTL <= 0 {
		errs = append(errs, errors.New("otp.ttl must be positive"))
	}
	if p.OTP.MaxResends < 0 {
		errs = append(errs, errors.New("otp.max_resends must not be negative"))
	}
	m := p.Matcher
	if !(m.Soft <= m.Normal && m.Normal <= m.Strict) {
		errs = append(errs, errors.New("matcher thresholds must satisfy soft <= normal <= strict"))
	}
	if m.Adaptive.MaxAdjustment < 0 || m.Adaptive.MaxAdjustment > 0.08 {
		errs = append(errs, errors.New("matcher.adaptive.max_adjustment must be within [0, 0.08]"))
	}
	if p.Enrollment.MinShots < 1 {
		errs = append(errs, errors.New("enrollment.min_shots must be at least 1"))
	}
	if p.Strikes.Threshold < 1 {
		errs = append(errs, errors.New("strikes.threshold must be at least 1"))
	}
	if p.Proximity.MotionMinPairs < 2 {
		errs = append(errs, errors.New("proximity.motion_min_pairs must be at least 2"))
	}
	if p.Verification.RequestTimeout <= 0 {
		errs = append(errs, errors.New("verification.request_timeout must be positive"))
	}
	return errors.Join(errs...)
}
