package models

// Volume represents a decoded scan as real-valued intensities
type Volume struct {
	// Data holds the voxel intensities in storage order (x varies fastest,
	// then y, z, and any higher dimensions)
	Data []float64

	// Dims is the size of each dimension, 1 to 7 entries
	Dims []int
}

// Volume8 is the 8-bit visualization counterpart of a Volume
type Volume8 struct {
	// Data holds the rescaled intensities in the same order as the source volume
	Data []uint8

	// Dims is copied from the source volume
	Dims []int
}

// NewVolume8 allocates a zeroed 8-bit volume with the given dimensions.
func NewVolume8(dims []int) *Volume8 {
	return &Volume8{
		Data: make([]uint8, NumVoxels(dims)),
		Dims: append([]int(nil), dims...),
	}
}

// Len returns the number of voxels held by the volume
func (v *Volume) Len() int {
	return len(v.Data)
}

// Len returns the number of voxels held by the volume
func (v *Volume8) Len() int {
	return len(v.Data)
}

// Width, Height and Depth report the first three dimensions, treating missing
// dimensions as 1.
func (v *Volume8) Width() int  { return dimOrOne(v.Dims, 0) }
func (v *Volume8) Height() int { return dimOrOne(v.Dims, 1) }
func (v *Volume8) Depth() int  { return dimOrOne(v.Dims, 2) }

// NumVoxels returns the product of dims. An empty dims slice describes no voxels.
func NumVoxels(dims []int) int {
	if len(dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// SameShape reports whether a and b describe identical dimensions.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dimOrOne(dims []int, i int) int {
	if i < len(dims) && dims[i] > 0 {
		return dims[i]
	}
	return 1
}
