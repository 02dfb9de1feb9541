package placement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/paulmach/orb"

	"github.com/ironsheep/scene-tools-mcp/internal/logging"
	"github.com/ironsheep/scene-tools-mcp/internal/slope"
	"github.com/ironsheep/scene-tools-mcp/internal/terrain"
)

// ConformError lists the instances whose terrain query missed. Every other
// instance in the call was draped.
type ConformError struct {
	Failed []string
	Errs   []error
}

func (e *ConformError) Error() string {
	return fmt.Sprintf("%d instance(s) off terrain: %s", len(e.Failed), strings.Join(e.Failed, ", "))
}

func (e *ConformError) Unwrap() []error { return e.Errs }

// ConformToTerrain drapes every Static instance onto the terrain.
//
// The elevation at each instance's (x, y) is added to its z. Calling it twice
// on the same instance adds the elevation twice. When matchSlope is set, or
// the instance itself asks for it, pitch and roll are replaced by the
// terrain normal's alignment while yaw is kept.
//
// Clustered instances are left untouched. A miss for one instance is
// collected into a *ConformError (which matches terrain.ErrNoIntersection
// under errors.Is); any other terrain failure is returned at once.
func ConformToTerrain(ctx context.Context, instances []*Instance, svc terrain.Service, h terrain.Handle, matchSlope bool) error {
	targets := make([]*Instance, 0, len(instances))
	points := make([]orb.Point, 0, len(instances))
	for _, inst := range instances {
		if inst.Kind != Static {
			continue
		}
		targets = append(targets, inst)
		points = append(points, orb.Point{inst.Translation[0], inst.Translation[1]})
	}
	if len(targets) == 0 {
		return nil
	}

	results, err := svc.QueryBatch(ctx, h, points)
	if err != nil {
		return fmt.Errorf("conform to terrain: %w", err)
	}

	var missed *ConformError
	for i, inst := range targets {
		r := results[i]
		if r.Err != nil {
			if !errors.Is(r.Err, terrain.ErrNoIntersection) {
				return fmt.Errorf("conform %s: %w", inst.ID, r.Err)
			}
			if missed == nil {
				missed = &ConformError{}
			}
			missed.Failed = append(missed.Failed, inst.ID)
			missed.Errs = append(missed.Errs, fmt.Errorf("%s: %w", inst.ID, r.Err))
			logging.Logger().Warn("instance off terrain", "id", inst.ID, "x", points[i][0], "y", points[i][1])
			continue
		}

		inst.Translation[2] += r.Result.Elevation
		if matchSlope || inst.MatchSlope {
			if err := alignToNormal(inst, r.Result.Normal); err != nil {
				return err
			}
		}
		logging.Logger().Debug("draped instance", "id", inst.ID, "z", inst.Translation[2], "rotation", inst.Rotation)
	}

	if missed != nil {
		return missed
	}
	return nil
}

func alignToNormal(inst *Instance, normal mgl64.Vec3) error {
	correction, err := slope.AlignNormalToAxis(normal, slope.Up, slope.Degrees)
	if err != nil {
		return fmt.Errorf("align %s: %w", inst.ID, err)
	}
	inst.Rotation = slope.MergePitchRoll(inst.Rotation, correction)
	return nil
}
