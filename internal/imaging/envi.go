package imaging

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ENVIHeader is the subset of an ENVI .hdr file needed to read a cube.
type ENVIHeader struct {
	Samples      int
	Lines        int
	Bands        int
	DataType     int
	Interleave   string
	ByteOrder    binary.ByteOrder
	HeaderOffset int64
	BandNames    []string
}

// ENVI data type codes.
const (
	enviUint8   = 1
	enviInt16   = 2
	enviInt32   = 3
	enviFloat32 = 4
	enviFloat64 = 5
	enviUint16  = 12
	enviUint32  = 13
)

func (h *ENVIHeader) sampleSize() (int, error) {
	switch h.DataType {
	case enviUint8:
		return 1, nil
	case enviInt16, enviUint16:
		return 2, nil
	case enviInt32, enviUint32, enviFloat32:
		return 4, nil
	case enviFloat64:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported ENVI data type %d", h.DataType)
	}
}

// ParseENVIHeader reads an ENVI header. Values in braces may span lines.
func ParseENVIHeader(r io.Reader) (*ENVIHeader, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "ENVI" {
		return nil, errors.New("not an ENVI header")
	}

	fields := make(map[string]string)
	var key string
	var val strings.Builder
	open := false
	for sc.Scan() {
		line := sc.Text()
		if open {
			val.WriteString(" ")
			val.WriteString(strings.TrimSpace(line))
			if strings.Contains(line, "}") {
				fields[key] = val.String()
				open = false
			}
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "{") && !strings.Contains(v, "}") {
			val.Reset()
			val.WriteString(v)
			open = true
			continue
		}
		fields[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if open {
		return nil, fmt.Errorf("unterminated value for %q", key)
	}

	h := &ENVIHeader{Interleave: "bsq", ByteOrder: binary.LittleEndian}
	ints := []struct {
		name     string
		dst      *int
		required bool
	}{
		{"samples", &h.Samples, true},
		{"lines", &h.Lines, true},
		{"bands", &h.Bands, true},
		{"data type", &h.DataType, true},
	}
	for _, f := range ints {
		s, ok := fields[f.name]
		if !ok {
			if f.required {
				return nil, fmt.Errorf("header is missing %q", f.name)
			}
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("header field %q: %w", f.name, err)
		}
		*f.dst = n
	}
	if h.Samples <= 0 || h.Lines <= 0 || h.Bands <= 0 {
		return nil, fmt.Errorf("invalid cube size %dx%dx%d", h.Samples, h.Lines, h.Bands)
	}
	if _, err := h.sampleSize(); err != nil {
		return nil, err
	}

	if s, ok := fields["header offset"]; ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("header field %q: %w", "header offset", err)
		}
		h.HeaderOffset = n
	}
	if s, ok := fields["byte order"]; ok && s == "1" {
		h.ByteOrder = binary.BigEndian
	}
	if s, ok := fields["interleave"]; ok {
		h.Interleave = strings.ToLower(s)
	}
	switch h.Interleave {
	case "bsq", "bil", "bip":
	default:
		return nil, fmt.Errorf("unsupported interleave %q", h.Interleave)
	}

	if s, ok := fields["band names"]; ok {
		h.BandNames = splitList(s)
	}
	for len(h.BandNames) < h.Bands {
		h.BandNames = append(h.BandNames, fmt.Sprintf("Band %d", len(h.BandNames)+1))
	}
	return h, nil
}

// splitList turns "{a, b, c}" into its trimmed elements.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ReadENVI loads every band of the cube described by headerPath. The data
// file is the header path without its ".hdr" suffix.
func ReadENVI(headerPath string) ([]*Band, error) {
	hf, err := os.Open(headerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open header: %w", err)
	}
	defer hf.Close()

	h, err := ParseENVIHeader(hf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", headerPath, err)
	}

	dataPath := strings.TrimSuffix(headerPath, ".hdr")
	if dataPath == headerPath {
		return nil, fmt.Errorf("header %s has no .hdr suffix", headerPath)
	}
	df, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cube data: %w", err)
	}
	defer df.Close()

	if _, err := df.Seek(h.HeaderOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek cube data: %w", err)
	}
	return DecodeENVI(bufio.NewReader(df), h)
}

// DecodeENVI reads a cube laid out as h describes from r.
func DecodeENVI(r io.Reader, h *ENVIHeader) ([]*Band, error) {
	size, err := h.sampleSize()
	if err != nil {
		return nil, err
	}

	bands := make([]*Band, h.Bands)
	for i := range bands {
		bands[i] = NewBand(h.BandNames[i], h.Samples, h.Lines)
	}

	total := h.Samples * h.Lines * h.Bands
	buf := make([]byte, size)
	for n := 0; n < total; n++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("cube data truncated at sample %d of %d: %w", n, total, err)
		}
		band, x, y := h.locate(n)
		bands[band].Pix[y*h.Samples+x] = h.decode(buf)
	}
	return bands, nil
}

// locate maps the n-th sample in file order to (band, x, y).
func (h *ENVIHeader) locate(n int) (band, x, y int) {
	switch h.Interleave {
	case "bil":
		x = n % h.Samples
		band = (n / h.Samples) % h.Bands
		y = n / (h.Samples * h.Bands)
	case "bip":
		band = n % h.Bands
		x = (n / h.Bands) % h.Samples
		y = n / (h.Bands * h.Samples)
	default:
		x = n % h.Samples
		y = (n / h.Samples) % h.Lines
		band = n / (h.Samples * h.Lines)
	}
	return band, x, y
}

func (h *ENVIHeader) decode(b []byte) float64 {
	bo := h.ByteOrder
	switch h.DataType {
	case enviUint8:
		return float64(b[0])
	case enviInt16:
		return float64(int16(bo.Uint16(b)))
	case enviUint16:
		return float64(bo.Uint16(b))
	case enviInt32:
		return float64(int32(bo.Uint32(b)))
	case enviUint32:
		return float64(bo.Uint32(b))
	case enviFloat32:
		return float64(math.Float32frombits(bo.Uint32(b)))
	default:
		return math.Float64frombits(bo.Uint64(b))
	}
}
