package annotate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ironsheep/scene-tools-mcp/internal/logging"
)

//go:embed annotations.schema.json
var annotationsSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func annotationsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("annotations.schema.json", annotationsSchemaJSON)
	})
	return schema, schemaErr
}

// Entry is one object annotation.
type Entry struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	BBox             [4]int `json:"bbox"`
	Segmentation     []int  `json:"segmentation"`
	SegmentationFill []int  `json:"segmentation_fill"`
}

// Document is the annotation file for one rendered image.
type Document struct {
	Filename    string  `json:"filename"`
	Annotations []Entry `json:"annotations"`
}

// Metadata is the companion file describing the scene an image came from.
type Metadata struct {
	Filename        string                 `json:"filename"`
	RunID           string                 `json:"run_id,omitempty"`
	AnnotationCount int                    `json:"annotation_count"`
	Objects         []ObjectMetadata       `json:"objects"`
	Scene           map[string]interface{} `json:"scene,omitempty"`
}

// ObjectMetadata names one annotated object and the pixels it covers.
type ObjectMetadata struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Pixels int    `json:"pixels"`
}

// Writer accumulates annotations for one rendered image.
type Writer struct {
	filename string
	runID    string
	scene    map[string]interface{}
	entries  []Entry
}

// NewWriter starts the annotations for the image named filename. scene is
// copied verbatim into the metadata document and may be nil.
func NewWriter(filename, runID string, scene map[string]interface{}) *Writer {
	return &Writer{filename: filename, runID: runID, scene: scene}
}

// Add records m under name. Ids are assigned in insertion order.
func (w *Writer) Add(name, typ string, m *Mask) Entry {
	e := Entry{
		ID:               len(w.entries),
		Name:             name,
		Type:             typ,
		BBox:             m.BBox,
		Segmentation:     m.Segmentation(),
		SegmentationFill: m.SegmentationFill(),
	}
	w.entries = append(w.entries, e)
	return e
}

// Entries returns the annotations added so far.
func (w *Writer) Entries() []Entry {
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Document assembles the annotation document and validates it.
func (w *Writer) Document() (*Document, error) {
	doc := &Document{Filename: w.filename, Annotations: w.Entries()}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Metadata assembles the metadata document.
func (w *Writer) Metadata() *Metadata {
	meta := &Metadata{
		Filename:        w.filename,
		RunID:           w.runID,
		AnnotationCount: len(w.entries),
		Objects:         make([]ObjectMetadata, len(w.entries)),
		Scene:           w.scene,
	}
	for i, e := range w.entries {
		meta.Objects[i] = ObjectMetadata{ID: e.ID, Name: e.Name, Type: e.Type, Pixels: len(e.SegmentationFill) / 2}
	}
	return meta
}

// Write validates and writes both documents.
func (w *Writer) Write(annotationsPath, metadataPath string) error {
	doc, err := w.Document()
	if err != nil {
		return err
	}
	if err := writeJSON(annotationsPath, doc); err != nil {
		return err
	}
	if err := writeJSON(metadataPath, w.Metadata()); err != nil {
		return err
	}
	logging.Logger().Info("wrote annotations", "image", w.filename, "entries", len(w.entries), "path", annotationsPath)
	return nil
}

// WriteDir writes <outDir>/annotations/<base>-annotations.json and
// <outDir>/metadata/<base>-metadata.json, where base is the image filename
// up to its first dot. It returns both paths.
func (w *Writer) WriteDir(outDir string) (annotationsPath, metadataPath string, err error) {
	base := filepath.Base(w.filename)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	annotationsPath = filepath.Join(outDir, "annotations", base+"-annotations.json")
	metadataPath = filepath.Join(outDir, "metadata", base+"-metadata.json")
	for _, dir := range []string{filepath.Dir(annotationsPath), filepath.Dir(metadataPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := w.Write(annotationsPath, metadataPath); err != nil {
		return "", "", err
	}
	return annotationsPath, metadataPath, nil
}

// Validate checks doc against the annotation schema.
func Validate(doc *Document) error {
	s, err := annotationsSchema()
	if err != nil {
		return fmt.Errorf("failed to compile annotation schema: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode annotations: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to decode annotations: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("invalid annotation document: %w", err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
