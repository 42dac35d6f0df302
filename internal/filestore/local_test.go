package filestore

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestLocalFileStore(t *testing.T) {
	s, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	key := "abcdef0123456789"
	if err := s.Save(strings.NewReader("image bytes"), key); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	r, err := s.Get(key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(data, []byte("image bytes")) {
		t.Errorf("got %q", data)
	}

	// Saving the same key again is a no-op; the first content stays.
	if err := s.Save(strings.NewReader("different"), key); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	r, err = s.Get(key)
	if err != nil {
		t.Fatalf("get after second save failed: %v", err)
	}
	data, _ = io.ReadAll(r)
	_ = r.Close()
	if string(data) != "image bytes" {
		t.Errorf("existing entry overwritten: %q", data)
	}

	if _, err := s.Get("missing-key"); err == nil {
		t.Error("expected error for missing key")
	}
}
