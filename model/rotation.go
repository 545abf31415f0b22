package model

import (
	"fmt"
	"strings"
)

// Rotation is a multiple of 90 degrees applied to every captured frame.
type Rotation int

const (
	RotationNone Rotation = iota
	RotationCCW90
	Rotation180
	RotationCW90
)

var rotationNames = map[Rotation]string{
	RotationNone:  "none",
	RotationCCW90: "ccw90",
	Rotation180:   "180",
	RotationCW90:  "cw90",
}

func (r Rotation) String() string {
	if name, ok := rotationNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rotation(%d)", int(r))
}

func (r Rotation) Valid() bool {
	_, ok := rotationNames[r]
	return ok
}

// RotationFromQuarterTurns maps the number of anticlockwise quarter turns
// (0..3) to a rotation.
func RotationFromQuarterTurns(turns int) (Rotation, error) {
	r := Rotation(turns)
	if !r.Valid() {
		return RotationNone, fmt.Errorf("invalid rotation %d: expected 0..3 anticlockwise quarter turns", turns)
	}
	return r, nil
}

// ParseRotation accepts the names used in config files as well as the
// quarter turn count.
func ParseRotation(s string) (Rotation, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "none", "0":
		return RotationNone, nil
	case "ccw90", "1":
		return RotationCCW90, nil
	case "180", "2":
		return Rotation180, nil
	case "cw90", "3":
		return RotationCW90, nil
	}
	return RotationNone, fmt.Errorf("invalid rotation %q", s)
}

func (r Rotation) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid rotation %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Rotation) UnmarshalText(text []byte) error {
	parsed, err := ParseRotation(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
