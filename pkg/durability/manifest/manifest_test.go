package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{
		DatabaseID:        uuid.New(),
		CodecID:           1,
		ActiveSegment:     3,
		SnapshotWatermark: 42,
		SnapshotID:        uuid.New(),
		HasSnapshot:       true,
	}
	if err := Save(dir, m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: %+v != %+v", got, m)
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{DatabaseID: uuid.New(), ActiveSegment: 1}
	if err := Save(dir, m); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[10] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected checksum error on corrupted manifest")
	}
}
