// dataset.go - Local training-set writer: one folder per class label

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_labeler/internal/processor"
	"github.com/google/uuid"
)

// DatasetStore writes labeled images under <root>/raw/<clean_label>/.
type DatasetStore struct {
	root  string
	now   func() time.Time
	newID func() string
}

// SavedImage describes an image written to the dataset.
type SavedImage struct {
	Class    string `json:"class"`
	FileName string `json:"file_name"`
	RelPath  string `json:"saved_relpath"` // <class>/<file>
	FullPath string `json:"-"`
}

// ObjectKey is the object-store key mirroring the local layout.
func (s SavedImage) ObjectKey() string {
	return ObjectKey(s.Class, s.FileName)
}

// ObjectKey builds raw/<clean_label>/<file>.
func ObjectKey(label, fileName string) string {
	return "raw/" + processor.CleanLabel(label) + "/" + fileName
}

// NewDatasetStore creates a writer rooted at dir.
func NewDatasetStore(dir string) *DatasetStore {
	return &DatasetStore{
		root:  dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Root returns the dataset root directory.
func (d *DatasetStore) Root() string {
	return d.root
}

// FileName returns <YYYYMMDD_HHMMSS>_<8 hex>.jpg for the current time.
func (d *DatasetStore) FileName() string {
	id := strings.ReplaceAll(d.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s.jpg", d.now().Format("20060102_150405"), id)
}

// Save writes an already-encoded JPEG into the class folder for label.
func (d *DatasetStore) Save(label string, jpeg []byte) (SavedImage, error) {
	class := processor.CleanLabel(label)
	classDir := filepath.Join(d.root, "raw", class)
	if err := os.MkdirAll(classDir, 0o755); err != nil {
		return SavedImage{}, fmt.Errorf("failed to create class folder: %w", err)
	}

	name := d.FileName()
	fullPath := filepath.Join(classDir, name)
	if err := os.WriteFile(fullPath, jpeg, 0o644); err != nil {
		return SavedImage{}, fmt.Errorf("failed to write dataset image: %w", err)
	}

	return SavedImage{
		Class:    class,
		FileName: name,
		RelPath:  class + "/" + name,
		FullPath: fullPath,
	}, nil
}

// Move relocates a saved image into the folder of a corrected label.
func (d *DatasetStore) Move(relPath, newLabel string) (SavedImage, error) {
	src := filepath.Join(d.root, "raw", filepath.FromSlash(relPath))
	name := filepath.Base(src)
	class := processor.CleanLabel(newLabel)

	classDir := filepath.Join(d.root, "raw", class)
	if err := os.MkdirAll(classDir, 0o755); err != nil {
		return SavedImage{}, fmt.Errorf("failed to create class folder: %w", err)
	}

	dst := filepath.Join(classDir, name)
	if err := os.Rename(src, dst); err != nil {
		return SavedImage{}, fmt.Errorf("failed to move dataset image: %w", err)
	}

	return SavedImage{Class: class, FileName: name, RelPath: class + "/" + name, FullPath: dst}, nil
}
