package handler

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"rollcall/internal/biometric"
	"rollcall/internal/proximity"
	"rollcall/internal/verification"
	dErrors "rollcall/pkg/domain-errors"
)

const (
	maxCodeLength   = 16
	maxFrames       = 120
	maxMotionPoints = 10000

	// Frame dimensions are checked from the image header before any pixel
	// buffer is allocated.
	maxFrameSide   = 1280
	maxFramePixels = 16_000_000
)

// VerifyRequest is the HTTP request body for POST /sessions/{sessionID}/verify.
type VerifyRequest struct {
	IdentityID string                   `json:"identity_id"`
	Code       string                   `json:"code"`
	Sample     biometric.Sample         `json:"sample"`
	Readings   proximity.Readings       `json:"readings"`
	Frames     []FrameRequest           `json:"frames,omitempty"`
	Motion     []proximity.MotionSample `json:"motion,omitempty"`

	// populated by Validate
	frames []proximity.Frame
}

// FrameRequest carries one base64 encoded PNG or JPEG capture.
type FrameRequest struct {
	TimestampMs float64 `json:"timestamp_ms"`
	Image       string  `json:"image"`
}

// Validate implements httputil.Validatable.
func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	// Size validation (fail fast)
	if len(r.Code) > maxCodeLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "code must be at most %d characters", maxCodeLength)
	}
	if len(r.Frames) > maxFrames {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d frames are accepted", maxFrames)
	}
	if len(r.Motion) > maxMotionPoints {
		return dErrors.Newf(dErrors.CodeInvalidInput, "at most %d motion samples are accepted", maxMotionPoints)
	}

	r.IdentityID = strings.TrimSpace(r.IdentityID)
	if r.IdentityID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identity_id is required")
	}
	r.Code = strings.TrimSpace(r.Code)

	frames, err := decodeFrames(r.Frames)
	if err != nil {
		return err
	}
	r.frames = frames
	return nil
}

// ToDomain builds the verification request for a session.
func (r *VerifyRequest) ToDomain(sessionID string) verification.Request {
	return verification.Request{
		SessionID:  sessionID,
		IdentityID: r.IdentityID,
		Code:       r.Code,
		Sample:     r.Sample,
		Readings:   r.Readings,
		Frames:     r.frames,
		Motion:     r.Motion,
	}
}

func decodeFrames(in []FrameRequest) ([]proximity.Frame, error) {
	if len(in) == 0 {
		return nil, nil
	}
	raws := make([][]byte, len(in))
	total := 0
	for i, f := range in {
		raw, err := base64.StdEncoding.DecodeString(f.Image)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "frame %d is not valid base64", i)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "frame %d is not a PNG or JPEG image", i)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxFrameSide || cfg.Height > maxFrameSide {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "frame %d is %dx%d, at most %dx%d is accepted",
				i, cfg.Width, cfg.Height, maxFrameSide, maxFrameSide)
		}
		total += cfg.Width * cfg.Height
		if total > maxFramePixels {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "frames exceed %d pixels in total", maxFramePixels)
		}
		raws[i] = raw
	}

	frames := make([]proximity.Frame, len(in))
	for i, raw := range raws {
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "frame %d is not a PNG or JPEG image", i)
		}
		frames[i] = proximity.Frame{TimestampMs: in[i].TimestampMs, Image: img}
	}
	return frames, nil
}
