package terrain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/scene-tools-mcp/internal/logging"
)

// Runner runs an external program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Dir is the working directory; empty means the current one.
	Dir string

	// Env replaces the environment when non-nil.
	Env []string
}

// Run executes name with args. A failed start or non-zero exit is returned
// as *ExternalToolError carrying the captured stderr.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if r.Env != nil {
		cmd.Env = r.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &ExternalToolError{
			Command:  append([]string{name}, args...),
			ExitCode: code,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}

// GeodeticOrigin anchors the scene's local ENU frame.
type GeodeticOrigin struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Altitude  float64 `yaml:"altitude"`
}

// ToolService is a Service backed by the scene2hdf and scene_tool programs.
type ToolService struct {
	runner  Runner
	workDir string

	// Origin is written into the scene description at compile time.
	Origin GeodeticOrigin

	// Compiler and SceneTool name the programs to run.
	Compiler  string
	SceneTool string
}

// NewToolService returns a ToolService that writes scene descriptions into
// workDir and runs programs through runner.
func NewToolService(runner Runner, workDir string) *ToolService {
	return &ToolService{
		runner:    runner,
		workDir:   workDir,
		Compiler:  "scene2hdf",
		SceneTool: "scene_tool",
	}
}

// sceneFile is the minimal scene description handed to the compiler: one
// static instance of the base geometry at the origin.
type sceneFile struct {
	Name     string         `yaml:"name"`
	Origin   GeodeticOrigin `yaml:"origin"`
	Geometry []sceneObject  `yaml:"geometry"`
}

type sceneObject struct {
	Name     string `yaml:"name"`
	Base     string `yaml:"base_geometry"`
	Instance string `yaml:"instance"`
}

// Compile writes a scene description for baseGeometryPath, compiles it and
// reads the terrain summary once so later queries need a single program run.
func (s *ToolService) Compile(ctx context.Context, baseGeometryPath string) (Handle, error) {
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("failed to create work dir: %w", err)
	}

	scene := sceneFile{
		Name:   "Elevation",
		Origin: s.Origin,
		Geometry: []sceneObject{
			{Name: "terrain", Base: baseGeometryPath, Instance: "static"},
		},
	}
	data, err := yaml.Marshal(scene)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to encode scene: %w", err)
	}
	scenePath := filepath.Join(s.workDir, "elevation.scene")
	if err := os.WriteFile(scenePath, data, 0o644); err != nil {
		return Handle{}, fmt.Errorf("failed to write scene: %w", err)
	}

	if _, err := s.run(ctx, s.Compiler, scenePath); err != nil {
		return Handle{}, err
	}
	hdf := scenePath + ".hdf"

	maxZ, err := s.summary(ctx, hdf)
	if err != nil {
		return Handle{}, err
	}
	logging.Logger().Info("compiled terrain", "base", baseGeometryPath, "hdf", hdf, "max_z", maxZ)
	return Handle{Path: hdf, MaxElevation: maxZ}, nil
}

type summaryEntry struct {
	BoxMin []float64 `json:"boxMin"`
	BoxMax []float64 `json:"boxMax"`
}

func (s *ToolService) summary(ctx context.Context, hdf string) (float64, error) {
	args := []string{"summary", hdf}
	out, err := s.run(ctx, s.SceneTool, args...)
	if err != nil {
		return 0, err
	}

	var entries map[string]summaryEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return 0, s.malformed(args, fmt.Errorf("decode summary: %w", err))
	}
	entry, ok := entries[hdf]
	if !ok && len(entries) == 1 {
		for _, e := range entries {
			entry, ok = e, true
		}
	}
	if !ok || len(entry.BoxMax) < 3 {
		return 0, s.malformed(args, errors.New("summary has no bounding box"))
	}
	return entry.BoxMax[2], nil
}

type rayHit struct {
	HitPosition []float64 `json:"hitPosition"`
	HitNormal   []float64 `json:"hitNormal"`
}

// Query casts one downward ray at (x, y).
func (s *ToolService) Query(ctx context.Context, h Handle, x, y float64) (HeightQueryResult, error) {
	args := []string{
		"raycast",
		"--origin", formatFloat(x), formatFloat(y), strconv.Itoa(int(h.RayOrigin())),
		"--direction", "0", "0", "-1",
		h.Path,
	}
	out, err := s.run(ctx, s.SceneTool, args...)
	if err != nil {
		return HeightQueryResult{}, err
	}

	var hits []rayHit
	if err := json.Unmarshal(out, &hits); err != nil {
		return HeightQueryResult{}, s.malformed(args, fmt.Errorf("decode raycast: %w", err))
	}
	if len(hits) == 0 {
		return HeightQueryResult{}, fmt.Errorf("query (%g, %g): %w", x, y, ErrNoIntersection)
	}

	hit := hits[0]
	if len(hit.HitPosition) < 3 || len(hit.HitNormal) < 3 {
		return HeightQueryResult{}, s.malformed(args, errors.New("raycast hit is missing coordinates"))
	}
	normal, ok := unitNormal(vec3(hit.HitNormal))
	if !ok {
		return HeightQueryResult{}, s.malformed(args, errors.New("raycast hit has a zero normal"))
	}

	logging.Logger().Debug("terrain query", "x", x, "y", y, "z", hit.HitPosition[2])
	return HeightQueryResult{Elevation: hit.HitPosition[2], Normal: normal}, nil
}

// QueryBatch queries each point in order. The summary is already cached on h,
// so every point costs one program run.
func (s *ToolService) QueryBatch(ctx context.Context, h Handle, points []orb.Point) ([]BatchResult, error) {
	return queryEach(ctx, points, func(x, y float64) (HeightQueryResult, error) {
		return s.Query(ctx, h, x, y)
	})
}

func (s *ToolService) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := s.runner.Run(ctx, name, args...)
	if err == nil {
		return out, nil
	}
	var toolErr *ExternalToolError
	if errors.As(err, &toolErr) {
		return nil, err
	}
	return nil, &ExternalToolError{Command: append([]string{name}, args...), ExitCode: -1, Err: err}
}

func (s *ToolService) malformed(args []string, err error) error {
	return &ExternalToolError{Command: append([]string{s.SceneTool}, args...), ExitCode: -1, Err: err}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
