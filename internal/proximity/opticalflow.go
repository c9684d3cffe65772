package proximity

import (
	"context"
	"image"
	"image/color"
	"math"
	"sort"

	dErrors "rollcall/pkg/domain-errors"
)

// OpticalFlow estimates camera motion between consecutive frames. Each point
// is the mean feature displacement in pixels for one frame pair, stamped at
// the pair's midpoint.
type OpticalFlow interface {
	Magnitudes(ctx context.Context, frames []Frame) ([]Point, error)
}

// SparseTracker detects Shi-Tomasi corners in each frame and follows them
// into the next frame by block matching.
type SparseTracker struct {
	MaxCorners   int
	QualityLevel float64
	MinDistance  int
	BlockSize    int
	PatchRadius  int
	SearchRadius int
}

func NewSparseTracker() *SparseTracker {
	return &SparseTracker{
		MaxCorners:   100,
		QualityLevel: 0.3,
		MinDistance:  7,
		BlockSize:    7,
		PatchRadius:  7,
		SearchRadius: 8,
	}
}

func (t *SparseTracker) Magnitudes(ctx context.Context, frames []Frame) ([]Point, error) {
	if len(frames) < 2 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least two frames are required")
	}
	grays := make([]*image.Gray, len(frames))
	for i, f := range frames {
		if f.Image == nil {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "frame %d has no image", i)
		}
		grays[i] = toGray(f.Image)
	}

	out := make([]Point, 0, len(frames)-1)
	for i := 0; i+1 < len(frames); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := (frames[i].TimestampMs + frames[i+1].TimestampMs) / 2
		out = append(out, Point{AtMs: at, Value: t.meanDisplacement(grays[i], grays[i+1])})
	}
	return out, nil
}

func (t *SparseTracker) meanDisplacement(prev, next *image.Gray) float64 {
	var sum float64
	var tracked int
	for _, p := range t.corners(prev) {
		dx, dy, ok := t.track(prev, next, p)
		if !ok {
			continue
		}
		sum += math.Hypot(float64(dx), float64(dy))
		tracked++
	}
	if tracked == 0 {
		return 0
	}
	return sum / float64(tracked)
}

type corner struct {
	x, y  int
	score float64
}

// corners returns up to MaxCorners points, relative to the image origin,
// ranked by the minimum eigenvalue of the local structure tensor. Only points
// far enough from the border to be tracked are considered.
func (t *SparseTracker) corners(g *image.Gray) []image.Point {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return nil
	}

	// Integral images of Ix², Iy² and IxIy, one row and column of padding.
	stride := w + 1
	sxx := make([]float64, stride*(h+1))
	syy := make([]float64, stride*(h+1))
	sxy := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rxx, ryy, rxy float64
		for x := 0; x < w; x++ {
			var ix, iy float64
			if x > 0 && x < w-1 && y > 0 && y < h-1 {
				ix = (pixel(g, x+1, y) - pixel(g, x-1, y)) / 2
				iy = (pixel(g, x, y+1) - pixel(g, x, y-1)) / 2
			}
			rxx += ix * ix
			ryy += iy * iy
			rxy += ix * iy
			i := (y+1)*stride + x + 1
			sxx[i] = sxx[i-stride] + rxx
			syy[i] = syy[i-stride] + ryy
			sxy[i] = sxy[i-stride] + rxy
		}
	}
	box := func(s []float64, x0, y0, x1, y1 int) float64 {
		return s[y1*stride+x1] - s[y0*stride+x1] - s[y1*stride+x0] + s[y0*stride+x0]
	}

	half := t.BlockSize / 2
	margin := max(half+1, t.PatchRadius+t.SearchRadius)
	var candidates []corner
	var best float64
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			x0, y0, x1, y1 := x-half, y-half, x+half+1, y+half+1
			a := box(sxx, x0, y0, x1, y1)
			c := box(syy, x0, y0, x1, y1)
			bb := box(sxy, x0, y0, x1, y1)
			lambda := (a+c)/2 - math.Sqrt((a-c)*(a-c)/4+bb*bb)
			if lambda <= 0 {
				continue
			}
			candidates = append(candidates, corner{x: x, y: y, score: lambda})
			best = math.Max(best, lambda)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	cut := best * t.QualityLevel
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	minDist2 := t.MinDistance * t.MinDistance
	picked := make([]image.Point, 0, t.MaxCorners)
	for _, c := range candidates {
		if c.score < cut || len(picked) == t.MaxCorners {
			break
		}
		tooClose := false
		for _, p := range picked {
			dx, dy := p.X-c.x, p.Y-c.y
			if dx*dx+dy*dy < minDist2 {
				tooClose = true
				break
			}
		}
		if !tooClose {
			picked = append(picked, image.Point{X: c.x, Y: c.y})
		}
	}
	return picked
}

// track finds the displacement of the patch around p that minimizes the sum
// of absolute differences in next.
func (t *SparseTracker) track(prev, next *image.Gray, p image.Point) (dx, dy int, ok bool) {
	r := t.PatchRadius
	w, h := next.Bounds().Dx(), next.Bounds().Dy()
	bestSAD := math.Inf(1)
	for oy := -t.SearchRadius; oy <= t.SearchRadius; oy++ {
		for ox := -t.SearchRadius; ox <= t.SearchRadius; ox++ {
			q := image.Point{X: p.X + ox, Y: p.Y + oy}
			if q.X-r < 0 || q.Y-r < 0 || q.X+r >= w || q.Y+r >= h {
				continue
			}
			var sad float64
			for y := -r; y <= r; y++ {
				for x := -r; x <= r; x++ {
					sad += math.Abs(pixel(prev, p.X+x, p.Y+y) - pixel(next, q.X+x, q.Y+y))
				}
			}
			if sad < bestSAD || (sad == bestSAD && ox*ox+oy*oy < dx*dx+dy*dy) {
				bestSAD, dx, dy, ok = sad, ox, oy, true
			}
		}
	}
	return dx, dy, ok
}

// pixel reads (x, y) relative to the image origin. Pix of a sub-image starts
// at its Min point.
func pixel(g *image.Gray, x, y int) float64 {
	return float64(g.Pix[y*g.Stride+x])
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return g
}
