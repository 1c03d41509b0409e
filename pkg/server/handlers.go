package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"petviz/pkg/normalize"
	"petviz/pkg/pipeline"
)

// Form fields of POST /process-volume
const (
	FieldFile          = "file"
	FieldNormalization = "normalization"
)

// maxFormMemory is how much of a multipart form is held in memory before
// file parts spill to temporary files
const maxFormMemory = 32 << 20

type handler struct {
	*Server
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (h *handler) Index(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "PET Visualization Backend is running"})
}

func (h *handler) Methods(w http.ResponseWriter, r *http.Request) {
	output := struct {
		Methods  []string `json:"methods"`
		Fallback string   `json:"fallback"`
	}{
		normalize.MethodNames(),
		normalize.Passthrough.String(),
	}

	h.writeJSON(w, http.StatusOK, output)
}

func (h *handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, "Not Found")
}

func (h *handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}

// ProcessVolume normalizes an uploaded volume and returns the result as a
// gzip-compressed NIfTI file.
func (h *handler) ProcessVolume(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.uploadError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(FieldFile)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("missing form field: %s", FieldFile))
		return
	}
	defer file.Close()

	if _, ok := r.MultipartForm.Value[FieldNormalization]; !ok {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("missing form field: %s", FieldNormalization))
		return
	}
	methodName := r.FormValue(FieldNormalization)

	// Reject before reading the upload
	if err := pipeline.ValidateFileName(header.Filename); err != nil {
		h.log.Warning(component, "rejected upload", map[string]interface{}{"file": header.Filename})
		h.writeError(w, http.StatusBadRequest, "Invalid file format")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.uploadError(w, err)
		return
	}

	result, err := h.processor.ProcessNamed(header.Filename, data, methodName)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	m := result.Metrics
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Output)))
	w.Header().Set(HeaderMethod, result.Method.String())
	w.Header().Set(HeaderVoxels, strconv.Itoa(m.Voxels))
	w.Header().Set(HeaderInputMin, formatFloat(m.Input.Min))
	w.Header().Set(HeaderInputMax, formatFloat(m.Input.Max))
	w.Header().Set(HeaderInputMean, formatFloat(m.Input.Mean))
	w.Header().Set(HeaderInputStd, formatFloat(m.Input.StdDev))
	w.Header().Set(HeaderDurationMs, strconv.FormatInt(m.Duration.Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(result.Output); err != nil {
		h.log.Error(component, fmt.Errorf("failed to write response: %w", err), map[string]interface{}{"file": header.Filename})
	}
}

// uploadError reports a failure to read the request body
func (h *handler) uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %s", humanize.Bytes(uint64(h.maxUpload))))
		return
	}
	h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
}

// statusFor maps a pipeline error to an HTTP status code
func statusFor(err error) int {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError
	}
	switch perr.Kind {
	case pipeline.UnsupportedFileName, pipeline.InvalidFormat:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error(component, fmt.Errorf("failed to encode response: %w", err), nil)
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, errorResponse{Detail: detail})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
