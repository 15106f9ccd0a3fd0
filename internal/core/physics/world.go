package physics

import (
	"math"
	"time"
)

// WorldConfig describes the court used by headless peers.
type WorldConfig struct {
	Gravity     float64
	FloorY      float64
	Restitution float64
	BoundsMin   Vec3
	BoundsMax   Vec3
	// Impacts slower than this do not count as a bounce.
	MinBounceSpeed float64
}

func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Gravity:        -9.81,
		FloorY:         0,
		Restitution:    0.75,
		BoundsMin:      Vec3{X: -80, Y: -5, Z: -40},
		BoundsMax:      Vec3{X: 80, Y: 60, Z: 40},
		MinBounceSpeed: 0.5,
	}
}

type extent interface {
	Extent() float64
}

// Extent is the collision radius of the body.
func (b *SimBody) Extent() float64 { return b.Radius }

type contactKey struct {
	a, b *Interactable
}

// World is a minimal court simulation: gravity, a bouncing floor tagged
// Court and an out-of-bounds volume tagged BoundingBox. Each peer integrates
// only the objects it owns; contacts are reported to every object.
type World struct {
	cfg      WorldConfig
	objects  []*Interactable
	contacts map[contactKey]struct{}
	outside  map[*Interactable]struct{}
}

func NewWorld(cfg WorldConfig) *World {
	return &World{
		cfg:      cfg,
		contacts: make(map[contactKey]struct{}),
		outside:  make(map[*Interactable]struct{}),
	}
}

func (w *World) Add(i *Interactable) {
	w.objects = append(w.objects, i)
}

func (w *World) Remove(i *Interactable) {
	for idx, obj := range w.objects {
		if obj == i {
			w.objects = append(w.objects[:idx], w.objects[idx+1:]...)
			break
		}
	}
	delete(w.outside, i)
	for key := range w.contacts {
		if key.a == i || key.b == i {
			delete(w.contacts, key)
		}
	}
}

// Step integrates owned objects over dt and dispatches the resulting contacts.
func (w *World) Step(dt time.Duration) {
	seconds := dt.Seconds()
	type hit struct {
		obj *Interactable
		c   Collision
	}
	var hits []hit

	for _, obj := range w.objects {
		if !obj.IsOwner() {
			continue
		}
		body := obj.Body()
		if body.Kinematic() || body.Frozen() || obj.IsHeld() {
			continue
		}

		v := body.Velocity()
		if body.Gravity() {
			v.Y += w.cfg.Gravity * seconds
		}
		p := body.Position().Add(v.Scale(seconds))

		floor := w.cfg.FloorY + radius(body)
		if p.Y <= floor && v.Y < 0 {
			impact := -v.Y
			p.Y = floor
			v.Y = impact * w.cfg.Restitution
			if v.Y < w.cfg.MinBounceSpeed {
				v.Y = 0
			}
			if impact >= w.cfg.MinBounceSpeed {
				hits = append(hits, hit{obj, Collision{Tag: TagCourt}})
			}
		}
		body.SetPosition(p)
		body.SetVelocity(v)

		if w.inBounds(p) {
			delete(w.outside, obj)
		} else if _, already := w.outside[obj]; !already {
			w.outside[obj] = struct{}{}
			hits = append(hits, hit{obj, Collision{Tag: TagBoundingBox}})
		}
	}

	for ai := 0; ai < len(w.objects); ai++ {
		for bi := ai + 1; bi < len(w.objects); bi++ {
			a, b := w.objects[ai], w.objects[bi]
			key := contactKey{a, b}
			touching := a.Position().Sub(b.Position()).Len() <= radius(a.Body())+radius(b.Body())
			_, before := w.contacts[key]
			switch {
			case touching && !before:
				w.contacts[key] = struct{}{}
				hits = append(hits, hit{a, Collision{Tag: TagBall, Other: b}}, hit{b, Collision{Tag: TagBall, Other: a}})
			case !touching && before:
				delete(w.contacts, key)
			}
		}
	}

	for _, h := range hits {
		h.obj.OnCollision(h.c)
	}
}

func (w *World) inBounds(p Vec3) bool {
	lo, hi := w.cfg.BoundsMin, w.cfg.BoundsMax
	return p.X >= lo.X && p.X <= hi.X &&
		p.Y >= lo.Y && p.Y <= hi.Y &&
		p.Z >= lo.Z && p.Z <= hi.Z
}

func radius(b Body) float64 {
	if e, ok := b.(extent); ok {
		return math.Max(e.Extent(), 0)
	}
	return 0
}
