package nifti

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// HeaderAffine derives the voxel-to-world matrix from h, preferring the sform,
// then the qform, then a pixdim-only base affine centred on the volume.
func HeaderAffine(h *Header) *mat.Dense {
	switch {
	case h.SformCode > XformUnknown:
		return sformAffine(h)
	case h.QformCode > XformUnknown:
		return qformAffine(h)
	default:
		return baseAffine(h)
	}
}

func sformAffine(h *Header) *mat.Dense {
	aff := mat.NewDense(4, 4, nil)
	for j := 0; j < 4; j++ {
		aff.Set(0, j, float64(h.SrowX[j]))
		aff.Set(1, j, float64(h.SrowY[j]))
		aff.Set(2, j, float64(h.SrowZ[j]))
	}
	aff.Set(3, 3, 1)
	return aff
}

// qformAffine follows nifti1_io.c, nifti_quatern_to_mat44.
func qformAffine(h *Header) *mat.Dense {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)

	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// Not a unit quaternion: renormalize and treat as a 180 degree rotation.
		a = 1 / math.Sqrt(b*b+c*c+d*d)
		b *= a
		c *= a
		d *= a
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	xd := positiveOrOne(float64(h.Pixdim[1]))
	yd := positiveOrOne(float64(h.Pixdim[2]))
	zd := positiveOrOne(float64(h.Pixdim[3]))
	if h.Pixdim[0] < 0 {
		zd = -zd
	}

	return mat.NewDense(4, 4, []float64{
		(a*a + b*b - c*c - d*d) * xd, 2 * (b*c - a*d) * yd, 2 * (b*d + a*c) * zd, float64(h.QoffsetX),
		2 * (b*c + a*d) * xd, (a*a + c*c - b*b - d*d) * yd, 2 * (c*d - a*b) * zd, float64(h.QoffsetY),
		2 * (b*d - a*c) * xd, 2 * (c*d + a*b) * yd, (a*a + d*d - c*c - b*b) * zd, float64(h.QoffsetZ),
		0, 0, 0, 1,
	})
}

// baseAffine is the fallback used when neither transform code is set: voxel
// sizes on the diagonal with x flipped, and the volume centre at the origin.
func baseAffine(h *Header) *mat.Dense {
	zooms := [3]float64{}
	centre := [3]float64{}
	for i := 0; i < 3; i++ {
		zooms[i] = float64(h.Pixdim[i+1])
		if zooms[i] == 0 {
			zooms[i] = 1
		}
		n := 1
		if i < h.NumDims() {
			n = int(h.Dim[i+1])
		}
		centre[i] = float64(n-1) / 2
	}
	zooms[0] = -zooms[0]

	return mat.NewDense(4, 4, []float64{
		zooms[0], 0, 0, -centre[0] * zooms[0],
		0, zooms[1], 0, -centre[1] * zooms[1],
		0, 0, zooms[2], -centre[2] * zooms[2],
		0, 0, 0, 1,
	})
}

// setSform stores the first three rows of aff in the srow fields. The sform
// code is set to aligned-anatomical when it was unset.
func setSform(h *Header, aff mat.Matrix) {
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(aff.At(0, j))
		h.SrowY[j] = float32(aff.At(1, j))
		h.SrowZ[j] = float32(aff.At(2, j))
	}
	if h.SformCode == XformUnknown {
		h.SformCode = XformAlignedAnat
	}
}

// IdentityAffine returns a 4x4 identity matrix.
func IdentityAffine() *mat.Dense {
	aff := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		aff.Set(i, i, 1)
	}
	return aff
}

func positiveOrOne(v float64) float64 {
	if v > 0 {
		return v
	}
	return 1
}
