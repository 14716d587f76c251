// Package converter produces the derived files for an uploaded GLB model.
//
// Both outputs are fixed placeholders: the STL does not reflect the input
// geometry and the preview is a blank image. They only prove that the
// pipeline can read the source and write its artifacts.
package converter

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

const glbMIME = "model/gltf-binary"

// ErrEmptySource is returned when the uploaded file has no content
var ErrEmptySource = errors.New("GLB file is empty")

// Placeholder writes deterministic stand-in outputs
type Placeholder struct {
	logger *slog.Logger
}

func NewPlaceholder(logger *slog.Logger) *Placeholder {
	return &Placeholder{logger: logger.With("component", "converter")}
}

func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptySource
	}
	return data, nil
}

// ConvertGLBToSTL writes an ASCII STL placeholder for glbPath to stlPath.
// A source that does not look like binary glTF is logged but still converted.
func (p *Placeholder) ConvertGLBToSTL(glbPath, stlPath string) error {
	data, err := readSource(glbPath)
	if err != nil {
		return err
	}

	if mtype := mimetype.Detect(data); !mtype.Is(glbMIME) {
		p.logger.Warn("source may not be a valid GLB file", "path", glbPath, "detected", mtype.String())
	}

	name := strings.TrimSuffix(filepath.Base(glbPath), filepath.Ext(glbPath))
	stl := PlaceholderSTL(name)
	if err := os.WriteFile(stlPath, stl, 0644); err != nil {
		return fmt.Errorf("failed to write STL file: %w", err)
	}

	p.logger.Info("converted model", "source", glbPath, "output", stlPath,
		"source_bytes", len(data), "output_bytes", len(stl))
	return nil
}

// GeneratePreviewImage writes a 1x1 transparent PNG for glbPath to imagePath
func (p *Placeholder) GeneratePreviewImage(glbPath, imagePath string) error {
	if _, err := readSource(glbPath); err != nil {
		return err
	}

	png, err := PlaceholderPNG()
	if err != nil {
		return err
	}
	if err := os.WriteFile(imagePath, png, 0644); err != nil {
		return fmt.Errorf("failed to write preview image: %w", err)
	}

	p.logger.Info("generated preview image", "source", glbPath, "output", imagePath)
	return nil
}

// PlaceholderSTL returns a two-facet ASCII STL square named name
func PlaceholderSTL(name string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "solid %s\n", name)
	for _, facet := range [][3]string{
		{"0 0 0", "1 0 0", "0 1 0"},
		{"1 0 0", "1 1 0", "0 1 0"},
	} {
		b.WriteString("  facet normal 0 0 1\n")
		b.WriteString("    outer loop\n")
		for _, vertex := range facet {
			fmt.Fprintf(&b, "      vertex %s\n", vertex)
		}
		b.WriteString("    endloop\n")
		b.WriteString("  endfacet\n")
	}
	fmt.Fprintf(&b, "endsolid %s\n", name)
	return b.Bytes()
}

// PlaceholderPNG encodes a 1x1 fully transparent image
func PlaceholderPNG() ([]byte, error) {
	img := imaging.New(1, 1, color.NRGBA{})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode preview image: %w", err)
	}
	return buf.Bytes(), nil
}

// EnsureDir creates dir and any missing parents
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
