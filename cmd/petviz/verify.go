package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	hnifti "github.com/henghuang/nifti"

	"petviz/internal/models"
	"petviz/pkg/nifti"
	"petviz/pkg/pipeline"
)

// SafelyNiftiParse consumes panics emitted by the nifti library and turns
// them into errors.
func SafelyNiftiParse(filename string, rdata bool) (parsedData hnifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsedData.LoadImage(filename, rdata)

	return
}

// SafelyNiftiHeaderParse consumes panics emitted by the nifti library and
// turns them into errors.
func SafelyNiftiHeaderParse(filename string) (parsedData hnifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsedData.LoadHeader(filename)

	return
}

// errBigEndian reports an output the reference reader can't parse. It only
// reads little-endian files.
var errBigEndian = errors.New("reference reader only supports little-endian files")

// verifyOutput reads the file at path with henghuang/nifti and checks that
// its dimensions, voxel sizes and values agree with our own decoder.
func verifyOutput(path string, result *pipeline.Result) error {
	vol, meta, err := nifti.Decode(result.Output)
	if err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}
	if meta.ByteOrder == binary.BigEndian {
		return errBigEndian
	}

	img, err := SafelyNiftiParse(path, true)
	if err != nil {
		return fmt.Errorf("reference reader failed on %s: %w", path, err)
	}
	hdr, err := SafelyNiftiHeaderParse(path)
	if err != nil {
		return fmt.Errorf("reference reader failed on header of %s: %w", path, err)
	}

	// The reference reader addresses at most four dimensions
	if len(vol.Dims) > 4 {
		return fmt.Errorf("can't verify a %d-dimensional volume", len(vol.Dims))
	}

	refDims := img.GetDims()
	var dims [4]int
	for i := range dims {
		dims[i] = 1
		if i < len(vol.Dims) {
			dims[i] = vol.Dims[i]
		}
		ref := 1
		if i < len(refDims) && int(refDims[i]) > 0 {
			ref = int(refDims[i])
		}
		if ref != dims[i] {
			return fmt.Errorf("dimension %d: reference reader sees %d, petviz %d", i, ref, dims[i])
		}
	}

	for i := 1; i <= 3 && i <= len(vol.Dims); i++ {
		if float64(hdr.Pixdim[i]) != float64(meta.Header.Pixdim[i]) {
			return fmt.Errorf("pixdim[%d]: reference reader sees %v, petviz %v", i, hdr.Pixdim[i], meta.Header.Pixdim[i])
		}
	}

	mismatches := 0
	for t := 0; t < dims[3]; t++ {
		for z := 0; z < dims[2]; z++ {
			for y := 0; y < dims[1]; y++ {
				for x := 0; x < dims[0]; x++ {
					want := vol.Data[index(dims, x, y, z, t)]
					got := float64(img.GetAt(x, y, z, t))
					if math.Abs(got-want) > 1e-6*math.Max(1, math.Abs(want)) {
						mismatches++
					}
				}
			}
		}
	}
	if mismatches > 0 {
		return fmt.Errorf("%d of %d voxels differ between readers", mismatches, models.NumVoxels(vol.Dims))
	}

	return nil
}

func index(dims [4]int, x, y, z, t int) int {
	return ((t*dims[2]+z)*dims[1]+y)*dims[0] + x
}
