package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"petviz/internal/models"
)

// Viewer extracts 2D previews from a normalized 8-bit volume. Volumes with
// more than three dimensions are viewed through their first frame.
type Viewer struct {
	// volume holds the normalized voxel data
	volume *models.Volume8

	// dimensions of the volume
	width  int
	height int
	depth  int

	// size is the longest edge of saved previews in pixels
	size int
}

// NewViewer creates a viewer that saves previews scaled to size pixels on
// their longest edge
func NewViewer(volume *models.Volume8, size int) *Viewer {
	return &Viewer{
		volume: volume,
		width:  volume.Width(),
		height: volume.Height(),
		depth:  volume.Depth(),
		size:   size,
	}
}

// ExtractSlice extracts a 2D slice along the specified axis. The image is
// flipped vertically so that increasing y (or z) points up, the usual display
// orientation for RAS-oriented scans.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray

	switch axis {
	case "x", "X":
		// Sagittal: y across, z up
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}

		img = image.NewGray(image.Rect(0, 0, v.height, v.depth))
		for z := 0; z < v.depth; z++ {
			for y := 0; y < v.height; y++ {
				img.Pix[z*img.Stride+y] = v.at(position, y, z)
			}
		}

	case "y", "Y":
		// Coronal: x across, z up
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}

		img = image.NewGray(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.Pix[z*img.Stride+x] = v.at(x, position, z)
			}
		}

	case "z", "Z":
		// Axial: x across, y up
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}

		img = image.NewGray(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.Pix[y*img.Stride+x] = v.at(x, y, position)
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return imaging.FlipV(img), nil
}

// SaveSlice resizes an extracted slice to the preview size and saves it. The
// format follows the file extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	b := img.Bounds()
	var resized image.Image
	if b.Dx() >= b.Dy() {
		resized = imaging.Resize(img, v.size, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, v.size, imaging.Lanczos)
	}
	return imaging.Save(resized, filename)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	maxPos, err := v.axisLength(axis)
	if err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveOrthogonal saves the central sagittal, coronal and axial slices as
// <prefix>_x.png, <prefix>_y.png and <prefix>_z.png and returns the paths.
func (v *Viewer) SaveOrthogonal(outputDir, prefix string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for _, axis := range []string{"x", "y", "z"} {
		n, err := v.axisLength(axis)
		if err != nil {
			return nil, err
		}

		img, err := v.ExtractSlice(axis, n/2)
		if err != nil {
			return nil, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", prefix, axis))
		if err := v.SaveSlice(img, filename); err != nil {
			return nil, fmt.Errorf("failed to save %s preview: %w", axis, err)
		}
		paths = append(paths, filename)
	}

	return paths, nil
}

func (v *Viewer) axisLength(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return v.width, nil
	case "y", "Y":
		return v.height, nil
	case "z", "Z":
		return v.depth, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

func (v *Viewer) at(x, y, z int) uint8 {
	idx := z*v.width*v.height + y*v.width + x
	if idx < len(v.volume.Data) {
		return v.volume.Data[idx]
	}
	return 0
}
