package physics

// Effects plays the cosmetic feedback of an object: audio, trails, haptics.
type Effects interface {
	Bounce(speed float64)
	Throw(strong bool)
	StopTrails()
}

// NopEffects discards every effect; used by headless peers.
type NopEffects struct{}

func (NopEffects) Bounce(float64) {}
func (NopEffects) Throw(bool)     {}
func (NopEffects) StopTrails()    {}

// CollisionRules evaluates game rules for collisions of an owned, simulated
// object. Grabs reset the rule state of the current throw.
type CollisionRules interface {
	HandleCollision(tag string)
	ResetBounces()
	ResetColor()
}

// Collision tags understood by the rules.
const (
	TagCourt       = "Court"
	TagBoundingBox = "BoundingBox"
	TagRespawn     = "Respawn"
	TagBall        = "Ball"
)

// Collision is one contact reported by the physics engine.
type Collision struct {
	Tag   string
	Other *Interactable
}
