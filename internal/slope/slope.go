package slope

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Units selects the angle unit of an Euler triple.
type Units int

const (
	Radians Units = iota
	Degrees
)

func (u Units) String() string {
	switch u {
	case Radians:
		return "radians"
	case Degrees:
		return "degrees"
	default:
		return fmt.Sprintf("Units(%d)", int(u))
	}
}

// Euler is an intrinsic X-Y-Z rotation triple.
type Euler [3]float64

// Up is the default reference axis.
var Up = mgl64.Vec3{0, 0, 1}

// ErrZeroVector is returned when a normal or reference axis has no length.
var ErrZeroVector = errors.New("zero-length vector")

// parallelTolerance bounds |r x t| / (|r||t|) below which the two vectors are
// treated as parallel or antiparallel.
const parallelTolerance = 1e-12

// gimbalTolerance is how close |sin(pitch)| may get to 1 before roll is
// folded into the first angle.
const gimbalTolerance = 1e-12

// AlignNormalToAxis returns the rotation that carries reference onto target.
//
// The rotation axis is reference x target and the angle is the clamped arc
// cosine of their normalised dot product. Parallel inputs give the zero
// rotation; antiparallel inputs give a half turn about FallbackAxis(reference).
func AlignNormalToAxis(target, reference mgl64.Vec3, units Units) (Euler, error) {
	tl, rl := target.Len(), reference.Len()
	if tl == 0 || rl == 0 || math.IsNaN(tl) || math.IsNaN(rl) {
		return Euler{}, fmt.Errorf("align normal %v to %v: %w", target, reference, ErrZeroVector)
	}

	cosAngle := mgl64.Clamp(reference.Dot(target)/(rl*tl), -1, 1)
	axis := reference.Cross(target)

	var q mgl64.Quat
	switch {
	case axis.Len() <= parallelTolerance*rl*tl && cosAngle > 0:
		return Euler{}, nil
	case axis.Len() <= parallelTolerance*rl*tl:
		q = mgl64.QuatRotate(math.Pi, FallbackAxis(reference))
	default:
		q = mgl64.QuatRotate(math.Acos(cosAngle), axis.Normalize())
	}

	e := quatToEuler(q)
	if units == Degrees {
		for i := range e {
			e[i] = mgl64.RadToDeg(e[i])
		}
	}
	return e, nil
}

// FallbackAxis is the unit axis used for the half turn between antiparallel
// vectors: world X with its component along reference removed, or world Y
// when reference is parallel to X.
func FallbackAxis(reference mgl64.Vec3) mgl64.Vec3 {
	r := reference.Normalize()
	for _, world := range []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}} {
		ortho := world.Sub(r.Mul(world.Dot(r)))
		if ortho.Len() > 1e-6 {
			return ortho.Normalize()
		}
	}
	// unreachable for a non-zero reference
	return mgl64.Vec3{0, 0, 1}
}

// MergePitchRoll combines an alignment correction with an existing rotation:
// the first two components come from correction, yaw from prior.
func MergePitchRoll(prior, correction Euler) Euler {
	return Euler{correction[0], correction[1], prior[2]}
}

// Quat converts e back to a quaternion.
func (e Euler) Quat(units Units) mgl64.Quat {
	a, b, c := e[0], e[1], e[2]
	if units == Degrees {
		a, b, c = mgl64.DegToRad(a), mgl64.DegToRad(b), mgl64.DegToRad(c)
	}
	return mgl64.AnglesToQuat(a, b, c, mgl64.XYZ)
}

// quatToEuler extracts intrinsic X-Y-Z angles in radians from a unit
// quaternion.
func quatToEuler(q mgl64.Quat) Euler {
	m := q.Normalize().Mat4()

	sinB := mgl64.Clamp(m.At(0, 2), -1, 1)
	b := math.Asin(sinB)
	if math.Abs(sinB) >= 1-gimbalTolerance {
		return Euler{math.Atan2(m.At(2, 1), m.At(1, 1)), b, 0}
	}
	a := math.Atan2(-m.At(1, 2), m.At(2, 2))
	c := math.Atan2(-m.At(0, 1), m.At(0, 0))
	return Euler{a, b, c}
}
