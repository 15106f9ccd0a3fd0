// Package team holds the player colours shared by scoring, physics and prefs.
package team

import "fmt"

// Color identifies a side of the court. Blue is the host side by default,
// Red the client side.
type Color uint8

const (
	Blue Color = iota
	Red
	None
)

// Count is the number of playable sides.
const Count = 2

func (c Color) String() string {
	switch c {
	case Blue:
		return "blue"
	case Red:
		return "red"
	default:
		return "none"
	}
}

// Opponent returns the other playable side; None has no opponent.
func (c Color) Opponent() Color {
	switch c {
	case Blue:
		return Red
	case Red:
		return Blue
	default:
		return None
	}
}

// Valid reports whether c is a playable side.
func (c Color) Valid() bool {
	return c == Blue || c == Red
}

// Parse accepts the names produced by String and their capitalised forms.
func Parse(s string) (Color, error) {
	switch s {
	case "blue", "Blue":
		return Blue, nil
	case "red", "Red":
		return Red, nil
	case "none", "None", "":
		return None, nil
	default:
		return None, fmt.Errorf("unknown team color %q", s)
	}
}

// HalfOf reports whose half of the court the x coordinate lies in.
// Blue defends x <= 0, Red defends x > 0.
func HalfOf(x float64) Color {
	if x > 0 {
		return Red
	}
	return Blue
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
