// Package viewer implements the interactive inspection viewer: a pure
// navigation state machine plus a session that lazily loads and compares
// the image pair under the cursor.
package viewer

import "fmt"

// Mode selects which image of the current pair is displayed.
type Mode int

const (
	ModeSource Mode = iota
	ModeReference
	ModeDifference
)

func (m Mode) String() string {
	switch m {
	case ModeSource:
		return "source"
	case ModeReference:
		return "reference"
	case ModeDifference:
		return "difference"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Event is a discrete input delivered to the state machine.
type Event int

const (
	EventNone Event = iota
	EventPrevStudent
	EventNextStudent
	EventPrevImage
	EventNextImage
	EventModeSource
	EventModeReference
	EventModeDifference
	EventZoomIn
	EventZoomOut
	EventOpen
	EventRefresh
	EventQuit
)

// Effect tells the session what a transition requires.
type Effect int

const (
	EffectNone Effect = iota
	// EffectRedraw re-renders the current pair without reloading it.
	EffectRedraw
	// EffectReload resolves, decodes and compares the current pair again.
	EffectReload
	// EffectOpen reveals the current submission in the OS file browser.
	EffectOpen
	// EffectQuit ends the loop.
	EffectQuit
)

// Bounds are the limits a State is clamped to.
type Bounds struct {
	Students int
	Images   int
	MaxZoom  int
}

// State is the viewer cursor. The zero value is the first image of the
// first student in source mode; Zoom 0 is treated as 1.
type State struct {
	StudentIndex int
	RefIndex     int
	Mode         Mode
	Zoom         int
}

// Normalize clamps the indices into b and the zoom into [1, b.MaxZoom].
func (s State) Normalize(b Bounds) State {
	s.StudentIndex = clamp(s.StudentIndex, 0, b.Students-1)
	s.RefIndex = clamp(s.RefIndex, 0, b.Images-1)
	if s.Zoom < 1 {
		s.Zoom = 1
	}
	if b.MaxZoom >= 1 && s.Zoom > b.MaxZoom {
		s.Zoom = b.MaxZoom
	}
	return s
}

// Apply returns the state after ev and the effect the caller must perform.
func (s State) Apply(ev Event, b Bounds) (State, Effect) {
	s = s.Normalize(b)
	switch ev {
	case EventPrevStudent:
		s.StudentIndex = max(s.StudentIndex-1, 0)
		return s, EffectReload
	case EventNextStudent:
		s.StudentIndex = min(s.StudentIndex+1, b.Students-1)
		return s, EffectReload
	case EventPrevImage:
		s.RefIndex--
		if s.RefIndex < 0 {
			if s.StudentIndex > 0 {
				s.StudentIndex--
				s.RefIndex = b.Images - 1
			} else {
				s.RefIndex = 0
			}
		}
		return s, EffectReload
	case EventNextImage:
		s.RefIndex++
		if s.RefIndex >= b.Images {
			if s.StudentIndex < b.Students-1 {
				s.StudentIndex++
				s.RefIndex = 0
			} else {
				s.RefIndex = b.Images - 1
			}
		}
		return s, EffectReload
	case EventModeSource:
		s.Mode = ModeSource
		return s, EffectRedraw
	case EventModeReference:
		s.Mode = ModeReference
		return s, EffectRedraw
	case EventModeDifference:
		s.Mode = ModeDifference
		return s, EffectRedraw
	case EventZoomIn:
		if b.MaxZoom < 1 || s.Zoom*2 <= b.MaxZoom {
			s.Zoom *= 2
		}
		return s, EffectRedraw
	case EventZoomOut:
		s.Zoom = max(s.Zoom/2, 1)
		return s, EffectRedraw
	case EventOpen:
		return s, EffectOpen
	case EventRefresh:
		return s, EffectReload
	case EventQuit:
		return s, EffectQuit
	default:
		return s, EffectNone
	}
}

// KeyEvent maps a key name to its event. Keys follow the original
// keyboard layout: n/m students, ,/. images, 1/2/3 modes, +/- zoom,
// o open, Escape quit.
func KeyEvent(key string) (Event, bool) {
	switch key {
	case "n":
		return EventPrevStudent, true
	case "m":
		return EventNextStudent, true
	case ",":
		return EventPrevImage, true
	case ".":
		return EventNextImage, true
	case "1":
		return EventModeSource, true
	case "2":
		return EventModeReference, true
	case "3":
		return EventModeDifference, true
	case "+", "=":
		return EventZoomIn, true
	case "-":
		return EventZoomOut, true
	case "o":
		return EventOpen, true
	case "r":
		return EventRefresh, true
	case "Escape", "Esc", "q":
		return EventQuit, true
	default:
		return EventNone, false
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
