package biometric

import (
	"context"
	"fmt"
)

// PrecomputedExtractor accepts embeddings computed on the capture device and
// relays capture-side failure statuses. Raw images are reported as invalid
// because pixel-level extraction is delegated to a separate model service.
type PrecomputedExtractor struct {
	dimension int
}

var _ Extractor = (*PrecomputedExtractor)(nil)

func NewPrecomputedExtractor(dimension int) *PrecomputedExtractor {
	return &PrecomputedExtractor{dimension: dimension}
}

func (p *PrecomputedExtractor) Extract(_ context.Context, s Sample) (Extraction, error) {
	switch ExtractionStatus(s.Status) {
	case ExtractionNoFace:
		return Extraction{Status: ExtractionNoFace, Reason: "no face detected in sample"}, nil
	case ExtractionInvalidImage:
		return Extraction{Status: ExtractionInvalidImage, Reason: "capture reported an invalid image"}, nil
	}

	if len(s.Embedding) == 0 {
		if len(s.Image) > 0 {
			return Extraction{Status: ExtractionInvalidImage, Reason: "raw images are not accepted without an extraction service"}, nil
		}
		return Extraction{Status: ExtractionInvalidImage, Reason: "sample is empty"}, nil
	}
	if len(s.Embedding) != p.dimension {
		return Extraction{
			Status: ExtractionInvalidImage,
			Reason: fmt.Sprintf("embedding dimension %d, want %d", len(s.Embedding), p.dimension),
		}, nil
	}
	v, err := Normalize(s.Embedding)
	if err != nil {
		return Extraction{Status: ExtractionInvalidImage, Reason: err.Error()}, nil
	}
	return Extraction{Status: ExtractionOK, Vector: v}, nil
}
