package keypad

import (
	"fmt"
	"log/slog"

	"github.com/UnknownOlympus/strider/internal/controller"
	"github.com/gdamore/tcell/v2"
)

// Screen is the part of tcell.Screen the keypad draws on.
type Screen interface {
	PollEvent() tcell.Event
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (int, int)
	Clear()
	Show()
}

// KeySender delivers key codes to the walker.
type KeySender interface {
	SendKey(keyCode int) error
}

const help = "arrows/WASD walk, Q E Y C diagonals, space toggles autopilot, Esc quits"

// Pad renders the walker state and forwards key presses.
type Pad struct {
	screen Screen
	sender KeySender
	log    *slog.Logger

	state controller.State
	alert string
}

// NewPad creates a keypad drawing on screen.
func NewPad(screen Screen, sender KeySender, log *slog.Logger) *Pad {
	return &Pad{screen: screen, sender: sender, log: log}
}

// Run polls terminal events and redraws on every state update until the user quits or the
// walker connection ends.
func (p *Pad) Run(states <-chan controller.State, alerts <-chan string, done <-chan error) error {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := p.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	p.render()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if key, isKey := ev.(*tcell.EventKey); isKey {
				if !p.HandleKey(key.Key(), key.Rune()) {
					return nil
				}
			}
			p.render()
		case state := <-states:
			p.state = state
			p.render()
		case alert := <-alerts:
			p.alert = alert
			p.render()
		case err := <-done:
			return err
		}
	}
}

// HandleKey forwards a key press. It returns false when the key ends the session.
func (p *Pad) HandleKey(key tcell.Key, r rune) bool {
	if Quit(key) {
		return false
	}

	code, ok := KeyCode(key, r)
	if !ok {
		return true
	}
	if err := p.sender.SendKey(code); err != nil {
		p.log.Error("Failed to send key", "key_code", code, "error", err)
		p.alert = err.Error()
	}

	return true
}

// Lines returns the text shown on screen.
func (p *Pad) Lines() []string {
	position := "location unknown"
	if p.state.Position != nil {
		position = fmt.Sprintf("%.6f, %.6f (%s)",
			p.state.Position.Latitude, p.state.Position.Longitude, p.state.Source)
	}

	autopilot := "paused"
	if p.state.Autopilot {
		autopilot = "running"
	}

	lines := []string{
		"strider keypad",
		"position:  " + position,
		fmt.Sprintf("last move: %s #%d", p.state.LastMove.Direction, p.state.LastMove.Revision),
		fmt.Sprintf("speed:     x%.2f  %.1f km/h", p.state.SpeedLimit, p.state.Stats.Speed),
		fmt.Sprintf("distance:  %.1f m", p.state.Stats.TotalDistance),
		fmt.Sprintf("waypoints: %d  autopilot: %s", len(p.state.Waypoints), autopilot),
		"",
		help,
	}
	if p.alert != "" {
		lines = append(lines, "", "! "+p.alert)
	}

	return lines
}

func (p *Pad) render() {
	p.screen.Clear()
	width, height := p.screen.Size()
	for y, line := range p.Lines() {
		if y >= height {
			break
		}
		x := 0
		for _, r := range line {
			if x >= width {
				break
			}
			p.screen.SetContent(x, y, r, nil, tcell.StyleDefault)
			x++
		}
	}
	p.screen.Show()
}
