package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/mat"

	"petviz/internal/models"
)

// Encoder writes gzip-compressed single-file NIfTI-1 volumes. The output is a
// deterministic function of the inputs: the gzip header carries no file name
// and a zero modification time.
type Encoder struct {
	// Level is a compress/gzip compression level
	Level int
}

// NewEncoder creates an encoder using the given gzip compression level.
func NewEncoder(level int) *Encoder {
	return &Encoder{Level: level}
}

// EncodeUint8 encodes vol with the default compression level.
func EncodeUint8(vol *models.Volume8, meta *Metadata) ([]byte, error) {
	return NewEncoder(gzip.DefaultCompression).EncodeUint8(vol, meta)
}

// EncodeFloat64 encodes vol with the default compression level.
func EncodeFloat64(vol *models.Volume, meta *Metadata) ([]byte, error) {
	return NewEncoder(gzip.DefaultCompression).EncodeFloat64(vol, meta)
}

// EncodeUint8 writes vol as a UINT8 volume carrying meta's header, extensions
// and affine.
func (e *Encoder) EncodeUint8(vol *models.Volume8, meta *Metadata) ([]byte, error) {
	return e.encode(meta, vol.Dims, DTUint8, vol.Data)
}

// EncodeFloat64 writes vol as a FLOAT64 volume carrying meta's header,
// extensions and affine.
func (e *Encoder) EncodeFloat64(vol *models.Volume, meta *Metadata) ([]byte, error) {
	order := byteOrder(meta)
	payload := make([]byte, 8*len(vol.Data))
	for i, v := range vol.Data {
		order.PutUint64(payload[8*i:], math.Float64bits(v))
	}
	return e.encode(meta, vol.Dims, DTFloat64, payload)
}

func (e *Encoder) encode(meta *Metadata, dims []int, datatype int16, payload []byte) ([]byte, error) {
	h := meta.Header
	if !models.SameShape(dims, h.Dims()) {
		return nil, fmt.Errorf("%w: array dims %v, header dims %v", ErrShape, dims, h.Dims())
	}
	nbyper := bytesPerVoxel(datatype)
	if len(payload) != models.NumVoxels(dims)*nbyper {
		return nil, fmt.Errorf("%w: %d bytes of voxel data for dims %v", ErrShape, len(payload), dims)
	}

	ext := meta.Extension
	if len(ext) < MinVoxOffset-HeaderSize {
		ext = make([]byte, MinVoxOffset-HeaderSize)
	}

	h.SizeOfHdr = HeaderSize
	h.Magic = magicSingle
	h.Datatype = datatype
	h.Bitpix = int16(8 * nbyper)
	h.VoxOffset = float32(HeaderSize + len(ext))

	// Scaling was applied on decode, so the written values are final.
	h.SclSlope = 1
	h.SclInter = 0

	if meta.Affine != nil && !mat.Equal(meta.Affine, HeaderAffine(&h)) {
		setSform(&h, meta.Affine)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, e.Level)
	if err != nil {
		return nil, fmt.Errorf("can't create gzip writer: %w", err)
	}
	if err := binary.Write(zw, byteOrder(meta), &h); err != nil {
		return nil, fmt.Errorf("can't write header: %w", err)
	}
	if _, err := zw.Write(ext); err != nil {
		return nil, fmt.Errorf("can't write extensions: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("can't write voxel data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("can't finish gzip stream: %w", err)
	}

	return buf.Bytes(), nil
}

// NewMetadata builds metadata for a fresh volume: unit voxel sizes, an
// identity sform and no extensions.
func NewMetadata(dims []int) *Metadata {
	var h Header
	h.SizeOfHdr = HeaderSize
	h.Magic = magicSingle
	h.SetDims(dims)
	for i := range h.Pixdim {
		h.Pixdim[i] = 1
	}
	h.SclSlope = 1
	h.XYZTUnits = 2 // NIFTI_UNITS_MM
	h.VoxOffset = MinVoxOffset
	setSform(&h, IdentityAffine())

	return &Metadata{
		Header:    h,
		ByteOrder: binary.LittleEndian,
		Extension: make([]byte, MinVoxOffset-HeaderSize),
		Affine:    HeaderAffine(&h),
	}
}

// Describe renders a one-line summary of the metadata
func (m *Metadata) Describe() string {
	return m.Header.Describe()
}

func byteOrder(meta *Metadata) binary.ByteOrder {
	if meta.ByteOrder == nil {
		return binary.LittleEndian
	}
	return meta.ByteOrder
}
