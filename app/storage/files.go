package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zetic/zpt/pkg/entities"
)

const (
	inputDir  = "input"
	outputDir = "output"
)

// Files is an append-only archive of input and output images under a
// root folder, named by message id. Nothing in here is ever read back;
// it exists for debugging only.
type Files struct {
	root string
}

func NewFiles(root string) (*Files, error) {
	for _, dir := range []string{inputDir, outputDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}

	return &Files{root: root}, nil
}

func (f *Files) SaveInput(messageID string, img *entities.ImageAsset) error {
	return f.save(inputDir, messageID, img)
}

func (f *Files) SaveOutput(messageID string, img *entities.ImageAsset) error {
	return f.save(outputDir, messageID, img)
}

func (f *Files) save(dir, messageID string, img *entities.ImageAsset) error {
	name := messageID + entities.ExtensionForMIME(img.MIME)

	err := os.WriteFile(filepath.Join(f.root, dir, name), img.Data, 0o644)
	if err != nil {
		return fmt.Errorf("writing %s image: %w", dir, err)
	}

	return nil
}
