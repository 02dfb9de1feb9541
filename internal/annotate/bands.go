package annotate

import (
	"errors"
	"strings"

	"github.com/ironsheep/scene-tools-mcp/internal/imaging"
	"github.com/ironsheep/scene-tools-mcp/internal/logging"
)

// abundanceMarker identifies the truth bands that carry one object each.
const abundanceMarker = "Abundance"

// ObjectName parses a truth band name such as
// "Abundance of 'Tree_3' (fraction)" into the object name ("Tree_3") and its
// type ("Tree"). ok is false for bands that do not describe an object.
func ObjectName(band string) (name, typ string, ok bool) {
	if !strings.Contains(band, abundanceMarker) {
		return "", "", false
	}
	parts := strings.Split(band, "'")
	if len(parts) < 3 || parts[1] == "" {
		return "", "", false
	}
	name = parts[1]
	typ, _, _ = strings.Cut(name, "_")
	return name, typ, true
}

// AnnotateBands extracts a mask from every abundance band and adds it to w.
//
// Bands whose region is empty or has no area are logged and skipped. Any
// other extraction error stops the pass and is returned. The return value is
// the number of entries added.
func AnnotateBands(w *Writer, bands []*imaging.Band, threshold float64) (int, error) {
	log := logging.Logger()
	added := 0

	for _, b := range bands {
		name, typ, ok := ObjectName(b.Name)
		if !ok {
			continue
		}

		m, err := Extract(b, threshold)
		if errors.Is(err, ErrEmptyRegion) || errors.Is(err, ErrDegenerateHull) {
			log.Warn("skipping object", "object", name, "error", err)
			continue
		}
		if err != nil {
			return added, err
		}

		if n := Components(b, threshold); n > 1 {
			log.Warn("object band has disconnected regions; hulling all of them", "object", name, "regions", n)
		}

		w.Add(name, typ, m)
		added++
	}
	return added, nil
}
