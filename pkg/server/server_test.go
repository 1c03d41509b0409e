package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"petviz/internal/models"
	"petviz/pkg/config"
	"petviz/pkg/nifti"
	"petviz/pkg/pipeline"
)

func newTestServer() *Server {
	return New(config.DefaultConfig(), pipeline.NewProcessor(nil, nil), nil)
}

// uploadRequest builds a multipart POST to /process-volume. Empty field
// values are left out of the form.
func uploadRequest(t *testing.T, filename string, content []byte, method string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile(FieldFile, filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		part.Write(content)
	}
	if method != "" {
		if err := mw.WriteField(FieldNormalization, method); err != nil {
			t.Fatalf("Failed to write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/process-volume", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func testVolume(t *testing.T) []byte {
	t.Helper()
	dims := []int{2, 2, 2}
	data := []float64{0, 50, 100, 150, 200, 250, 300, 350}
	out, err := nifti.EncodeFloat64(&models.Volume{Data: data, Dims: dims}, nifti.NewMetadata(dims))
	if err != nil {
		t.Fatalf("Failed to encode test volume: %v", err)
	}
	return out
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Detail
}

func TestIndex(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if resp["message"] != "PET Visualization Backend is running" {
		t.Errorf("Unexpected message %q", resp["message"])
	}
}

func TestMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/methods", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Methods  []string `json:"methods"`
		Fallback string   `json:"fallback"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(resp.Methods) != 2 || resp.Methods[0] != "min_max" || resp.Methods[1] != "z_score" {
		t.Errorf("Unexpected methods %v", resp.Methods)
	}
	if resp.Fallback != "passthrough" {
		t.Errorf("Expected fallback passthrough, got %s", resp.Fallback)
	}
}

func TestProcessVolume(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, uploadRequest(t, "test_input.nii.gz", testVolume(t), "min_max"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Expected octet-stream, got %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "test_input_min_max.nii.gz") {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	if got := rec.Header().Get(HeaderVoxels); got != "8" {
		t.Errorf("Expected 8 voxels, got %s", got)
	}
	if got := rec.Header().Get(HeaderInputMax); got != "350" {
		t.Errorf("Expected input max 350, got %s", got)
	}

	vol, _, err := nifti.Decode(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	expected := []float64{0, 36, 72, 109, 145, 182, 218, 255}
	for i, v := range expected {
		if vol.Data[i] != v {
			t.Errorf("Voxel %d: expected %v, got %v", i, v, vol.Data[i])
		}
	}
}

func TestProcessVolumeUnknownMethod(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, uploadRequest(t, "scan.nii.gz", testVolume(t), "equalize"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(HeaderMethod); got != "passthrough" {
		t.Errorf("Expected passthrough, got %s", got)
	}

	vol, _, err := nifti.Decode(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if vol.Data[7] != 350 {
		t.Errorf("Expected unmodified voxel 350, got %v", vol.Data[7])
	}
}

func TestProcessVolumeErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		method   string
		status   int
		detail   string
	}{
		{"bad suffix", "scan.png", []byte("png"), "min_max", http.StatusBadRequest, "Invalid file format"},
		{"garbage", "scan.nii", []byte("not a volume"), "min_max", http.StatusInternalServerError, ""},
		{"missing file", "", nil, "min_max", http.StatusBadRequest, "missing form field: file"},
		{"missing method", "scan.nii", []byte("x"), "", http.StatusBadRequest, "missing form field: normalization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestServer().Handler().ServeHTTP(rec, uploadRequest(t, tt.filename, tt.content, tt.method))

			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			detail := decodeDetail(t, rec)
			if tt.detail != "" && detail != tt.detail {
				t.Errorf("Expected detail %q, got %q", tt.detail, detail)
			}
			if detail == "" {
				t.Error("Expected a non-empty detail")
			}
		})
	}
}

func TestProcessVolumeTooLarge(t *testing.T) {
	s := newTestServer()
	s.maxUpload = 1024

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "big.nii", make([]byte, 64*1024), "min_max"))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected status 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/process-volume", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer().Handler()

	t.Run("Allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/process-volume", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("Expected origin to be allowed, got %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Expected credentials to be allowed, got %q", got)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.example.com")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Expected no CORS header for a foreign origin, got %q", got)
		}
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind   pipeline.Kind
		status int
	}{
		{pipeline.UnsupportedFileName, http.StatusBadRequest},
		{pipeline.InvalidFormat, http.StatusBadRequest},
		{pipeline.DecodeFailure, http.StatusInternalServerError},
		{pipeline.EncodeFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := &pipeline.Error{Kind: tt.kind, Err: nifti.ErrMalformed}
		if got := statusFor(err); got != tt.status {
			t.Errorf("%s: expected status %d, got %d", tt.kind, tt.status, got)
		}
	}
}
