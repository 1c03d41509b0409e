// Package pipeline turns an uploaded NIfTI volume into its normalized 8-bit
// counterpart: decode, normalize, encode. It works on byte buffers only and
// leaves transport and file handling to its callers.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"petviz/internal/logger"
	"petviz/internal/models"
	"petviz/pkg/nifti"
	"petviz/pkg/normalize"
	"petviz/pkg/visualization"
)

const component = "pipeline"

// Accepted file name suffixes
const (
	SuffixNifti   = ".nii"
	SuffixNiftiGz = ".nii.gz"
)

// Params holds the processing parameters.
type Params struct {
	// CompressionLevel is the gzip level of the written volume
	CompressionLevel int

	// Percentiles adds the median and 1st/99th percentiles of the input to
	// the metrics. It costs a sort of the whole volume.
	Percentiles bool

	// SavePreviews writes orthogonal PNG slices of every normalized volume
	SavePreviews bool

	// PreviewDir is the directory previews are written to
	PreviewDir string

	// PreviewSize is the longest edge of a preview in pixels
	PreviewSize int
}

// DefaultParams returns parameters with default compression and no previews
func DefaultParams() *Params {
	return &Params{
		CompressionLevel: gzip.DefaultCompression,
		PreviewDir:       "previews",
		PreviewSize:      256,
	}
}

// Result is the outcome of a successful Process call.
type Result struct {
	// Method is the normalization that was applied
	Method normalize.Method

	// FileName is the suggested name of the output, <stem>_<method>.nii.gz
	FileName string

	// Output is the gzip-compressed NIfTI-1 file
	Output []byte

	// Metadata describes the input volume
	Metadata *nifti.Metadata

	// Volume8 is the normalized volume, nil for Passthrough
	Volume8 *models.Volume8

	// Metrics holds the measurements of this run
	Metrics Metrics

	// Previews lists the PNG files written, if any
	Previews []string
}

// Processor runs volumes through decode, normalize and encode. It keeps no
// per-request state and is safe for concurrent use.
type Processor struct {
	params  *Params
	encoder *nifti.Encoder
	log     logger.Logger
}

// NewProcessor creates a processor. A nil params uses DefaultParams and a nil
// log discards all output.
func NewProcessor(params *Params, log logger.Logger) *Processor {
	if params == nil {
		params = DefaultParams()
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Processor{
		params:  params,
		encoder: nifti.NewEncoder(params.CompressionLevel),
		log:     log,
	}
}

// ValidateFileName checks that name ends in .nii or .nii.gz. The comparison
// is case-sensitive.
func ValidateFileName(name string) error {
	if strings.HasSuffix(name, SuffixNifti) || strings.HasSuffix(name, SuffixNiftiGz) {
		return nil
	}
	return &Error{
		Kind: UnsupportedFileName,
		Err:  fmt.Errorf("%q must end in %s or %s", name, SuffixNifti, SuffixNiftiGz),
	}
}

// Stem returns the base name of filename without its NIfTI suffix.
func Stem(filename string) string {
	base := filepath.Base(filename)
	for _, suffix := range []string{SuffixNiftiGz, SuffixNifti} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

// OutputName returns the name of the processed file for filename.
func OutputName(filename string, method normalize.Method) string {
	return fmt.Sprintf("%s_%s%s", Stem(filename), method, SuffixNiftiGz)
}

// ProcessNamed resolves methodName and runs Process. Unrecognised names fall
// back to Passthrough with a warning.
func (p *Processor) ProcessNamed(filename string, data []byte, methodName string) (*Result, error) {
	method, ok := normalize.ParseMethod(methodName)
	if !ok {
		p.log.Warning(component, "unrecognised normalization, passing volume through", map[string]interface{}{
			"file":      filename,
			"requested": methodName,
			"supported": normalize.MethodNames(),
		})
	}
	return p.Process(filename, data, method)
}

// Process decodes data, applies method and encodes the result. On failure
// the returned error is an *Error and no output is produced.
func (p *Processor) Process(filename string, data []byte, method normalize.Method) (*Result, error) {
	start := time.Now()

	if err := ValidateFileName(filename); err != nil {
		p.log.Error(component, err, map[string]interface{}{"file": filename})
		return nil, err
	}

	vol, meta, err := nifti.Decode(data)
	if err != nil {
		kind := DecodeFailure
		if errors.Is(err, nifti.ErrUnsupported) {
			kind = InvalidFormat
		}
		perr := &Error{Kind: kind, Err: err}
		p.log.Error(component, perr, map[string]interface{}{
			"file": filename,
			"size": humanize.Bytes(uint64(len(data))),
		})
		return nil, perr
	}

	p.log.Debug(component, "decoded volume", map[string]interface{}{
		"file":   filename,
		"size":   humanize.Bytes(uint64(len(data))),
		"header": meta.Describe(),
	})

	norm := normalize.Normalize(vol, method)

	var out []byte
	if norm.Narrowed() {
		out, err = p.encoder.EncodeUint8(norm.Volume8, meta)
	} else {
		out, err = p.encoder.EncodeFloat64(norm.Float, meta)
	}
	if err != nil {
		perr := &Error{Kind: EncodeFailure, Err: err}
		p.log.Error(component, perr, map[string]interface{}{"file": filename, "method": method.String()})
		return nil, perr
	}

	result := &Result{
		Method:   norm.Method,
		FileName: OutputName(filename, norm.Method),
		Output:   out,
		Metadata: meta,
		Volume8:  norm.Volume8,
	}

	result.Metrics = Metrics{
		Voxels:      vol.Len(),
		NonFinite:   countNonFinite(vol.Data),
		InputBytes:  len(data),
		OutputBytes: len(out),
		Input:       Summarize(vol.Data, p.params.Percentiles),
	}
	if norm.Narrowed() {
		result.Metrics.Output = SummarizeUint8(norm.Volume8.Data)
	} else {
		result.Metrics.Output = result.Metrics.Input
	}

	if p.params.SavePreviews {
		result.Previews = p.savePreviews(filename, norm)
	}

	result.Metrics.Duration = time.Since(start)

	p.log.Info(component, "processed volume", map[string]interface{}{
		"file":     filename,
		"method":   norm.Method.String(),
		"voxels":   result.Metrics.Voxels,
		"in":       humanize.Bytes(uint64(len(data))),
		"out":      humanize.Bytes(uint64(len(out))),
		"duration": result.Metrics.Duration,
	})

	return result, nil
}

// savePreviews writes orthogonal slices of the normalized volume. Failures
// are logged and do not fail the run.
func (p *Processor) savePreviews(filename string, norm *normalize.Result) []string {
	if !norm.Narrowed() {
		p.log.Debug(component, "no previews for passthrough output", map[string]interface{}{"file": filename})
		return nil
	}

	viewer := visualization.NewViewer(norm.Volume8, p.params.PreviewSize)
	paths, err := viewer.SaveOrthogonal(p.params.PreviewDir, Stem(filename)+"_"+norm.Method.String())
	if err != nil {
		p.log.Warning(component, fmt.Sprintf("failed to save previews: %v", err), map[string]interface{}{"file": filename})
		return nil
	}
	return paths
}
