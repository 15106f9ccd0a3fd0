package physics

// Interpolation mirrors the rigid-body smoothing mode of the host engine.
type Interpolation uint8

const (
	InterpolateNone Interpolation = iota
	Interpolate
	Extrapolate
)

// Body is the rigid-body handle of a networked object. Only the owning peer
// mutates it.
type Body interface {
	Position() Vec3
	SetPosition(p Vec3)
	Velocity() Vec3
	SetVelocity(v Vec3)
	AngularVelocity() Vec3
	SetAngularVelocity(v Vec3)

	Gravity() bool
	SetGravity(enabled bool)
	Kinematic() bool
	SetKinematic(kinematic bool)
	Interpolation() Interpolation
	SetInterpolation(mode Interpolation)
	// Frozen bodies ignore forces; spawn-locked objects are frozen.
	Frozen() bool
	SetFrozen(frozen bool)
}

// Interactor is a hand or controller that can hold an object.
type Interactor interface {
	Position() Vec3
}

// Point is an Interactor at a fixed, movable position.
type Point struct {
	At Vec3
}

func (p *Point) Position() Vec3 { return p.At }

var _ Body = (*SimBody)(nil)

// SimBody is a plain in-memory Body driven by World.
type SimBody struct {
	position        Vec3
	velocity        Vec3
	angularVelocity Vec3
	gravity         bool
	kinematic       bool
	interpolation   Interpolation
	frozen          bool
	Radius          float64
}

func NewSimBody(at Vec3, radius float64) *SimBody {
	return &SimBody{
		position:      at,
		gravity:       true,
		interpolation: Interpolate,
		Radius:        radius,
	}
}

func (b *SimBody) Position() Vec3                      { return b.position }
func (b *SimBody) SetPosition(p Vec3)                  { b.position = p }
func (b *SimBody) Velocity() Vec3                      { return b.velocity }
func (b *SimBody) SetVelocity(v Vec3)                  { b.velocity = v }
func (b *SimBody) AngularVelocity() Vec3               { return b.angularVelocity }
func (b *SimBody) SetAngularVelocity(v Vec3)           { b.angularVelocity = v }
func (b *SimBody) Gravity() bool                       { return b.gravity }
func (b *SimBody) SetGravity(enabled bool)             { b.gravity = enabled }
func (b *SimBody) Kinematic() bool                     { return b.kinematic }
func (b *SimBody) SetKinematic(kinematic bool)         { b.kinematic = kinematic }
func (b *SimBody) Interpolation() Interpolation        { return b.interpolation }
func (b *SimBody) SetInterpolation(mode Interpolation) { b.interpolation = mode }
func (b *SimBody) Frozen() bool                        { return b.frozen }
func (b *SimBody) SetFrozen(frozen bool)               { b.frozen = frozen }
