// Package normalize rescales voxel intensities into the 8-bit visualization range.
package normalize

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"petviz/internal/models"
)

// ZScoreClip is the number of standard deviations kept on either side of the
// mean by the z-score method. Values further out saturate at 0 or 255.
const ZScoreClip = 3.0

// Method selects how intensities are mapped into [0, 255].
type Method int

const (
	// Passthrough returns the input volume untouched. It is the fallback for
	// any method name that is not recognised.
	Passthrough Method = iota

	// MinMax linearly maps the observed [min, max] range onto [0, 255].
	MinMax

	// ZScore maps mean ± 3 population standard deviations onto [0, 255].
	ZScore
)

// Names of the recognised methods as they appear in requests
const (
	MinMaxName = "min_max"
	ZScoreName = "z_score"
)

// ParseMethod maps a request string to a Method. Unknown names resolve to
// Passthrough and ok is false so callers can log the fallback.
func ParseMethod(name string) (m Method, ok bool) {
	switch name {
	case MinMaxName:
		return MinMax, true
	case ZScoreName:
		return ZScore, true
	default:
		return Passthrough, false
	}
}

// MethodNames lists the recognised method names.
func MethodNames() []string {
	return []string{MinMaxName, ZScoreName}
}

func (m Method) String() string {
	switch m {
	case MinMax:
		return MinMaxName
	case ZScore:
		return ZScoreName
	default:
		return "passthrough"
	}
}

// Result holds the outcome of Normalize. Exactly one of Volume8 and Float is
// set: Volume8 for MinMax and ZScore, Float for Passthrough.
type Result struct {
	Method  Method
	Volume8 *models.Volume8
	Float   *models.Volume
}

// Narrowed reports whether the result holds 8-bit data.
func (r *Result) Narrowed() bool {
	return r.Volume8 != nil
}

// Dims returns the shape of whichever volume the result holds.
func (r *Result) Dims() []int {
	if r.Volume8 != nil {
		return r.Volume8.Dims
	}
	return r.Float.Dims
}

// Normalize applies method to vol. It never fails and never modifies vol.
func Normalize(vol *models.Volume, method Method) *Result {
	switch method {
	case MinMax:
		return &Result{Method: method, Volume8: &models.Volume8{Data: MinMaxScale(vol.Data), Dims: copyDims(vol.Dims)}}
	case ZScore:
		return &Result{Method: method, Volume8: &models.Volume8{Data: ZScoreScale(vol.Data), Dims: copyDims(vol.Dims)}}
	default:
		return &Result{Method: Passthrough, Float: vol}
	}
}

// MinMaxScale maps data linearly so that its minimum becomes 0 and its maximum
// 255, truncating toward zero. A constant input yields all zeros.
func MinMaxScale(data []float64) []uint8 {
	out := make([]uint8, len(data))
	finite := finiteSamples(data)
	if len(finite) == 0 {
		return out
	}

	lo, hi := floats.Min(finite), floats.Max(finite)
	span := hi - lo
	if span == 0 || math.IsInf(span, 0) {
		return out
	}

	for i, v := range data {
		if !isFinite(v) {
			continue
		}
		out[i] = toUint8((v - lo) / span * 255)
	}
	return out
}

// ZScoreScale standardizes data with the population standard deviation, clips
// to ±ZScoreClip and maps the window onto [0, 255], truncating toward zero.
// A zero standard deviation yields all zeros.
func ZScoreScale(data []float64) []uint8 {
	out := make([]uint8, len(data))
	finite := finiteSamples(data)
	if len(finite) == 0 {
		return out
	}

	mean, std := stat.PopMeanStdDev(finite, nil)
	if std == 0 || !isFinite(std) || !isFinite(mean) {
		return out
	}

	for i, v := range data {
		if !isFinite(v) {
			continue
		}
		z := (v - mean) / std
		z = math.Max(-ZScoreClip, math.Min(ZScoreClip, z))
		out[i] = toUint8((z + ZScoreClip) / (2 * ZScoreClip) * 255)
	}
	return out
}

// finiteSamples returns data itself when every value is finite, otherwise a
// copy without the NaN and infinite entries.
func finiteSamples(data []float64) []float64 {
	for i, v := range data {
		if isFinite(v) {
			continue
		}
		out := make([]float64, i, len(data))
		copy(out, data[:i])
		for _, w := range data[i:] {
			if isFinite(w) {
				out = append(out, w)
			}
		}
		return out
	}
	return data
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func toUint8(v float64) uint8 {
	v = math.Trunc(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func copyDims(dims []int) []int {
	return append([]int(nil), dims...)
}
