package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/mat"

	"petviz/internal/models"
)

// nifti2HeaderSize is sizeof_hdr for NIfTI-2, recognised only to reject it
// with a clear error.
const nifti2HeaderSize = 540

// Metadata carries everything about a volume except its voxel values.
type Metadata struct {
	// Header is the header as read from the source file
	Header Header

	// ByteOrder is the byte order of the source file, reused when encoding
	ByteOrder binary.ByteOrder

	// Extension holds the raw bytes between the header and the voxel data:
	// the 4-byte extender followed by any extension blocks
	Extension []byte

	// Affine is the 4x4 voxel-to-world matrix. It is derived from the header
	// on decode and written back as the sform when it changes.
	Affine *mat.Dense
}

// Decode parses a NIfTI-1 volume, gzip-compressed or not. Voxel values are
// converted to float64 with scl_slope/scl_inter already applied.
func Decode(data []byte) (*models.Volume, *Metadata, error) {
	raw, err := inflate(data)
	if err != nil {
		return nil, nil, err
	}

	meta, err := decodeHeader(raw)
	if err != nil {
		return nil, nil, err
	}

	vol, err := decodeVoxels(raw, meta)
	if err != nil {
		return nil, nil, err
	}

	return vol, meta, nil
}

// DecodeHeader parses only the header and extension bytes.
func DecodeHeader(data []byte) (*Metadata, error) {
	raw, err := inflate(data)
	if err != nil {
		return nil, err
	}
	return decodeHeader(raw)
}

// IsGzip reports whether data starts with the gzip magic bytes.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func inflate(data []byte) ([]byte, error) {
	if !IsGzip(data) {
		return data, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: can't open gzip stream: %v", ErrMalformed, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: can't read gzip stream: %v", ErrMalformed, err)
	}
	return out, nil
}

// detectByteOrder uses sizeof_hdr, which must read as 348 in the file's own
// byte order.
func detectByteOrder(raw []byte) (binary.ByteOrder, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: %d bytes is too short for a header", ErrMalformed, len(raw))
	}

	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch int32(order.Uint32(raw[:4])) {
		case HeaderSize:
			return order, nil
		case nifti2HeaderSize:
			return nil, fmt.Errorf("%w: NIfTI-2 headers are not supported", ErrUnsupported)
		}
	}
	return nil, fmt.Errorf("%w: header size field is not %d", ErrMalformed, HeaderSize)
}

func decodeHeader(raw []byte) (*Metadata, error) {
	order, err := detectByteOrder(raw)
	if err != nil {
		return nil, err
	}
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("%w: header truncated at %d bytes", ErrMalformed, len(raw))
	}

	var h Header
	if err := binary.Read(bytes.NewReader(raw[:HeaderSize]), order, &h); err != nil {
		return nil, fmt.Errorf("%w: can't read header: %v", ErrMalformed, err)
	}

	if err := validateHeader(&h); err != nil {
		return nil, err
	}

	offset := voxOffset(&h)
	if offset > len(raw) {
		return nil, fmt.Errorf("%w: vox_offset %d is beyond the end of the data (%d bytes)", ErrMalformed, offset, len(raw))
	}

	ext := make([]byte, offset-HeaderSize)
	copy(ext, raw[HeaderSize:offset])

	meta := &Metadata{
		Header:    h,
		ByteOrder: order,
		Extension: ext,
	}
	meta.Affine = HeaderAffine(&h)
	return meta, nil
}

// See nifti1_io.c, nifti_hdr_looks_good
func validateHeader(h *Header) error {
	switch {
	case h.Magic == magicPair:
		return fmt.Errorf("%w: header/image file pairs (ni1) are not supported", ErrUnsupported)
	case !h.IsSingleFile():
		return fmt.Errorf("%w: bad magic %q", ErrMalformed, h.Magic[:])
	case h.NumDims() < 1 || h.NumDims() > 7:
		return fmt.Errorf("%w: dim[0] = %d is not in [1, 7]", ErrMalformed, h.Dim[0])
	}

	for i := 1; i <= h.NumDims(); i++ {
		if h.Dim[i] <= 0 {
			return fmt.Errorf("%w: dim[%d] = %d must be positive", ErrMalformed, i, h.Dim[i])
		}
	}

	nbyper := bytesPerVoxel(h.Datatype)
	if nbyper == 0 {
		return fmt.Errorf("%w: datatype %s", ErrUnsupported, DatatypeName(h.Datatype))
	}
	if h.Bitpix != 0 && int(h.Bitpix) != nbyper*8 {
		return fmt.Errorf("%w: bitpix %d does not match datatype %s", ErrMalformed, h.Bitpix, DatatypeName(h.Datatype))
	}
	return nil
}

// voxOffset returns where the voxel data starts. Offsets smaller than the
// header plus extender are treated as MinVoxOffset.
func voxOffset(h *Header) int {
	off := int(h.VoxOffset)
	if off < MinVoxOffset || math.IsNaN(float64(h.VoxOffset)) {
		return MinVoxOffset
	}
	return off
}

func decodeVoxels(raw []byte, meta *Metadata) (*models.Volume, error) {
	h := &meta.Header
	dims := h.Dims()
	nbyper := bytesPerVoxel(h.Datatype)
	start := voxOffset(h)

	// Every voxel needs at least one byte, so a product beyond the payload
	// size is truncated data and is rejected before it can overflow.
	nvox := 1
	for _, d := range dims {
		nvox *= d
		if nvox > len(raw) {
			return nil, fmt.Errorf("%w: dims %v need more data than the %d bytes present", ErrMalformed, dims, len(raw))
		}
	}

	end := start + nvox*nbyper
	if end > len(raw) {
		return nil, fmt.Errorf("%w: expected %d bytes of voxel data, found %d", ErrMalformed, nvox*nbyper, len(raw)-start)
	}

	data := make([]float64, nvox)
	readVoxels(data, raw[start:end], h.Datatype, meta.ByteOrder)

	if slope, inter, ok := scaling(h); ok {
		for i, v := range data {
			data[i] = slope*v + inter
		}
	}

	return &models.Volume{Data: data, Dims: dims}, nil
}

// scaling returns the scl_slope/scl_inter pair when it should be applied: a
// zero or non-finite slope means the stored values are used as is.
func scaling(h *Header) (slope, inter float64, ok bool) {
	slope, inter = float64(h.SclSlope), float64(h.SclInter)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 1, 0, false
	}
	if math.IsNaN(inter) || math.IsInf(inter, 0) {
		inter = 0
	}
	if slope == 1 && inter == 0 {
		return 1, 0, false
	}
	return slope, inter, true
}

func readVoxels(dst []float64, src []byte, datatype int16, order binary.ByteOrder) {
	switch datatype {
	case DTUint8:
		for i := range dst {
			dst[i] = float64(src[i])
		}
	case DTInt8:
		for i := range dst {
			dst[i] = float64(int8(src[i]))
		}
	case DTInt16:
		for i := range dst {
			dst[i] = float64(int16(order.Uint16(src[2*i:])))
		}
	case DTUint16:
		for i := range dst {
			dst[i] = float64(order.Uint16(src[2*i:]))
		}
	case DTInt32:
		for i := range dst {
			dst[i] = float64(int32(order.Uint32(src[4*i:])))
		}
	case DTUint32:
		for i := range dst {
			dst[i] = float64(order.Uint32(src[4*i:]))
		}
	case DTFloat32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(order.Uint32(src[4*i:])))
		}
	case DTInt64:
		for i := range dst {
			dst[i] = float64(int64(order.Uint64(src[8*i:])))
		}
	case DTUint64:
		for i := range dst {
			dst[i] = float64(order.Uint64(src[8*i:]))
		}
	case DTFloat64:
		for i := range dst {
			dst[i] = math.Float64frombits(order.Uint64(src[8*i:]))
		}
	}
}
