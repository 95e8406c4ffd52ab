// Defines Track, the immutable per-generation track representation: the road
// mask, the ordered checkpoint gates, the start pose, and the .track format
// shared with the external editor.

package sim

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
)

// rayStepPx is the marching step for raycasts. Small enough that a ray
// cannot skip over a road/offroad boundary the mask can represent.
const rayStepPx = 2.0

// Track is the road mask representation of a circuit. The mask is row-major,
// true = offroad (fatal), false = road. A Track is immutable once built; all
// queries are pure functions, so one Track is safely shared by every car and
// every worker in a generation.
type Track struct {
	Width      int
	Height     int
	StartX     float64
	StartY     float64
	StartAngle float64
	Gates      []Gate

	offroad []bool // len Width*Height, row-major
}

// NewTrack creates an all-offroad track of the given dimensions.
func NewTrack(width, height int) *Track {
	return &Track{
		Width:   width,
		Height:  height,
		StartX:  100,
		StartY:  400,
		offroad: makeOffroadMask(width, height),
	}
}

func makeOffroadMask(w, h int) []bool {
	m := make([]bool, w*h)
	for i := range m {
		m[i] = true
	}
	return m
}

// SetRoad marks a single cell as road. Used by tests and by the track file
// decoder; live simulation never mutates the mask.
func (t *Track) SetRoad(x, y int) {
	if x >= 0 && x < t.Width && y >= 0 && y < t.Height {
		t.offroad[y*t.Width+x] = false
	}
}

// OnRoad reports whether the point lies on road. Out of bounds counts as
// offroad.
func (t *Track) OnRoad(x, y float64) bool {
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= t.Width || iy < 0 || iy >= t.Height {
		return false
	}
	return !t.offroad[iy*t.Width+ix]
}

// Raycast marches from (x, y) along angle and returns the distance to the
// first offroad point, or maxLen if the ray stays on road. Deterministic for
// identical inputs.
func (t *Track) Raycast(x, y, angle, maxLen float64) float64 {
	if maxLen <= 0 {
		return 0
	}
	cosA := math.Cos(angle)
	sinA := math.Sin(angle)
	steps := int(maxLen / rayStepPx)
	for s := 1; s <= steps; s++ {
		dist := float64(s) * rayStepPx
		if !t.OnRoad(x+cosA*dist, y+sinA*dist) {
			return dist
		}
	}
	return maxLen
}

// GateCrossed tests the movement segment against the gate at expectedIndex
// only.
func (t *Track) GateCrossed(prevX, prevY, curX, curY float64, expectedIndex int) bool {
	if expectedIndex < 0 || expectedIndex >= len(t.Gates) {
		return false
	}
	return t.Gates[expectedIndex].Crossed(prevX, prevY, curX, curY)
}

// trackFile is the on-disk .track schema produced by the external editor.
type trackFile struct {
	Version     int        `json:"version"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	RoadMaskB64 string     `json:"road_mask_base64"`
	Start       trackStart `json:"start"`
	Gates       []Gate     `json:"checkpoints"`
}

type trackStart struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// TrackFromJSON builds a Track from .track file bytes.
func TrackFromJSON(data []byte) (*Track, error) {
	var tf trackFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse track file: %w", err)
	}
	if tf.Width <= 0 || tf.Height <= 0 {
		return nil, fmt.Errorf("track has invalid dimensions %dx%d", tf.Width, tf.Height)
	}

	t := NewTrack(tf.Width, tf.Height)
	t.StartX = tf.Start.X
	t.StartY = tf.Start.Y
	t.StartAngle = tf.Start.Angle
	t.Gates = tf.Gates

	if tf.RoadMaskB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(tf.RoadMaskB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode road mask: %w", err)
		}
		if err := t.decodeMaskPNG(raw); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// LoadTrack reads and parses a .track file.
func LoadTrack(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track file %q: %w", path, err)
	}
	return TrackFromJSON(data)
}

// ToJSON serializes the track back to .track file bytes.
func (t *Track) ToJSON() ([]byte, error) {
	b64, err := t.encodeMaskPNG()
	if err != nil {
		return nil, err
	}
	tf := trackFile{
		Version:     1,
		Width:       t.Width,
		Height:      t.Height,
		RoadMaskB64: b64,
		Start:       trackStart{X: t.StartX, Y: t.StartY, Angle: t.StartAngle},
		Gates:       t.Gates,
	}
	return json.Marshal(tf)
}

// Save writes the track to a .track file.
func (t *Track) Save(path string) error {
	data, err := t.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write track file %q: %w", path, err)
	}
	return nil
}

// decodeMaskPNG classifies the editor's mask image. Road pixels are gray
// (#808080), offroad pixels green (#4CAF50); a pixel is offroad when its
// green channel clearly dominates red.
func (t *Track) decodeMaskPNG(raw []byte) error {
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode road mask PNG: %w", err)
	}
	b := img.Bounds()
	for y := 0; y < t.Height && y < b.Dy(); y++ {
		for x := 0; x < t.Width && x < b.Dx(); x++ {
			r, g, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			r8 := int(r >> 8)
			g8 := int(g >> 8)
			t.offroad[y*t.Width+x] = g8 > r8+20
		}
	}
	return nil
}

func (t *Track) encodeMaskPNG() (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))
	road := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	grass := color.RGBA{R: 76, G: 175, B: 80, A: 255}
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			if t.offroad[y*t.Width+x] {
				img.SetRGBA(x, y, grass)
			} else {
				img.SetRGBA(x, y, road)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode road mask PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
