package main

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"petviz/internal/models"
	"petviz/pkg/nifti"
	"petviz/pkg/pipeline"
)

func TestVerifySkipsBigEndianOutput(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "petviz-verify-*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dims := []int{2, 2, 2}
	meta := nifti.NewMetadata(dims)
	meta.ByteOrder = binary.BigEndian
	out, err := nifti.EncodeUint8(models.NewVolume8(dims), meta)
	if err != nil {
		t.Fatalf("Failed to encode output: %v", err)
	}

	path := filepath.Join(tmpDir, "scan_min_max.nii.gz")
	if err := os.WriteFile(path, out, 0644); err != nil {
		t.Fatalf("Failed to write output: %v", err)
	}

	err = verifyOutput(path, &pipeline.Result{Output: out})
	if !errors.Is(err, errBigEndian) {
		t.Errorf("Expected errBigEndian, got %v", err)
	}
}

func TestIndexOrder(t *testing.T) {
	dims := [4]int{4, 3, 2, 1}

	if got := index(dims, 1, 0, 0, 0); got != 1 {
		t.Errorf("Expected x to be fastest, got %d", got)
	}
	if got := index(dims, 0, 1, 0, 0); got != 4 {
		t.Errorf("Expected y stride 4, got %d", got)
	}
	if got := index(dims, 3, 2, 1, 0); got != 23 {
		t.Errorf("Expected last voxel at 23, got %d", got)
	}
}
