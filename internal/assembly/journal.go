package assembly

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/ironsheep/scene-tools-mcp/internal/placement"
)

// Record is the final transform of one instance.
type Record struct {
	InstanceID  string     `json:"instance_id"`
	Translation [3]float64 `json:"translation"`
	Rotation    [3]float64 `json:"rotation"`
	Scale       [3]float64 `json:"scale"`
}

// Journal writes instance transforms as zstd-compressed JSON lines.
type Journal struct {
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
	n   int
}

// CreateJournal truncates or creates the journal at path.
func CreateJournal(path string) (*Journal, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Journal{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

// Write appends the transform of inst.
func (j *Journal) Write(inst *placement.Instance) error {
	b, err := json.Marshal(Record{
		InstanceID:  inst.ID,
		Translation: inst.Translation,
		Rotation:    inst.Rotation,
		Scale:       inst.Scale,
	})
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	j.n++
	return nil
}

// Len returns the number of records written.
func (j *Journal) Len() int { return j.n }

// Close flushes the stream and closes the file.
func (j *Journal) Close() error {
	flushErr := j.w.Flush()
	encErr := j.enc.Close()
	fileErr := j.f.Close()
	for _, err := range []error{flushErr, encErr, fileErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadJournal decodes every record of the journal at path.
func ReadJournal(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeJournal(f)
}

// DecodeJournal decodes a zstd JSON-lines stream of records.
func DecodeJournal(r io.Reader) ([]Record, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Record
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
