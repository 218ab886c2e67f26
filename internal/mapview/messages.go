package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/UnknownOlympus/strider/internal/controller"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/UnknownOlympus/strider/internal/waypoint"
)

// Inbound message types.
const (
	TypeKey               = "key"
	TypeMove              = "move"
	TypeTap               = "tap"
	TypeToggleWaypoints   = "toggle_waypoints"
	TypeStartRoute        = "start_route"
	TypeSearch            = "search"
	TypeSelectDestination = "select_destination"
	TypeDeviceFix         = "device_fix"
	TypeDeviceError       = "device_error"
	TypePlace             = "place"
	TypeLocate            = "locate"
	TypeSpeed             = "speed"
	TypeToggleDrag        = "toggle_drag"
	TypeAutopilotToggle   = "autopilot_toggle"
	TypeResetTrack        = "reset_track"
	TypeRefresh           = "refresh"
)

// Outbound message types.
const (
	TypeState       = "state"
	TypeAlert       = "alert"
	TypeDestination = "destination"
)

// Alert levels.
const (
	AlertWarning = "warning"
	AlertError   = "error"
)

var errUnknownType = errors.New("unknown message type")

// Controller is what the hub drives on behalf of its clients.
type Controller interface {
	Move(ctx context.Context, direction models.Direction) (models.Coordinates, error)
	Key(ctx context.Context, keyCode int) error
	Tap(ctx context.Context, position models.Coordinates, markerID string) (waypoint.TapOutcome, error)
	ToggleWaypointMode(ctx context.Context) (bool, error)
	StartRoute(ctx context.Context) error
	SelectDestination(ctx context.Context, destination models.Coordinates) error
	Search(ctx context.Context, query string) (models.Coordinates, error)
	DeviceFix(ctx context.Context, position models.Coordinates) error
	DeviceError(ctx context.Context, reason string)
	Place(ctx context.Context, position models.Coordinates) error
	Locate(ctx context.Context)
	SetSpeedLimit(ctx context.Context, limit float64) error
	ToggleDrag(ctx context.Context) (bool, error)
	ToggleAutopilot(ctx context.Context) (bool, error)
	ResetTrack(ctx context.Context) error
	Refresh(ctx context.Context) error
	State(ctx context.Context) (controller.State, error)
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// KeyMessage carries a browser keyCode.
type KeyMessage struct {
	KeyCode int `json:"key_code"`
}

type moveMessage struct {
	Direction models.Direction `json:"direction"`
}

type tapMessage struct {
	models.Coordinates
	MarkerID string `json:"marker_id,omitempty"`
}

type searchMessage struct {
	Query string `json:"query"`
}

type deviceErrorMessage struct {
	Message string `json:"message"`
}

type speedMessage struct {
	Limit float64 `json:"limit"`
}

// AlertMessage is a user-facing notification.
type AlertMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type destinationMessage struct {
	models.Coordinates
	ClearSearch bool `json:"clear_search"`
}

// handle applies one client message. Toggles and moves are answered by the state broadcast the
// controller publishes; only failures are reported back here.
func (h *Hub) handle(ctx context.Context, c *Client, msg Message) error {
	switch msg.Type {
	case TypeKey:
		var data KeyMessage
		if err := decode(msg, &data); err != nil {
			return err
		}
		return h.ctrl.Key(ctx, data.KeyCode)

	case TypeMove:
		var data moveMessage
		if err := decode(msg, &data); err != nil {
			return err
		}
		_, err := h.ctrl.Move(ctx, models.ParseDirection(string(data.Direction)))
		return err

	case TypeTap:
		var data tapMessage
		if err := decode(msg, &data); err != nil {
			return err
		}
		_, err := h.ctrl.Tap(ctx, data.Coordinates, data.MarkerID)
		return err

	case TypeSelectDestination, TypeDeviceFix, TypePlace:
		var data models.Coordinates
		if err := decode(msg, &data); err != nil {
			return err
		}
		switch msg.Type {
		case TypeSelectDestination:
			return h.ctrl.SelectDestination(ctx, data)
		case TypeDeviceFix:
			return h.ctrl.DeviceFix(ctx, data)
		default:
			return h.ctrl.Place(ctx, data)
		}

	case TypeSearch:
		var data searchMessage
		if err := decode(msg, &data); err != nil {
			return err
		}
		// Lookups take a while; keep reading this client's keys meanwhile.
		go func() {
			if _, err := h.ctrl.Search(ctx, data.Query); err != nil {
				c.reportError(ctx, msg.Type, err)
			}
		}()
		return nil

	case TypeDeviceError:
		var data deviceErrorMessage
		if err := decode(msg, &data); err != nil {
			return err
		}
		h.ctrl.DeviceError(ctx, data.Message)
		return nil

	case TypeSpeed:
		var data speedMessage
		if err := decode(msg, &data); err != nil {
			return err
		}
		return h.ctrl.SetSpeedLimit(ctx, data.Limit)

	case TypeToggleWaypoints:
		_, err := h.ctrl.ToggleWaypointMode(ctx)
		return err
	case TypeStartRoute:
		return h.ctrl.StartRoute(ctx)
	case TypeLocate:
		h.ctrl.Locate(ctx)
		return nil
	case TypeToggleDrag:
		_, err := h.ctrl.ToggleDrag(ctx)
		return err
	case TypeAutopilotToggle:
		_, err := h.ctrl.ToggleAutopilot(ctx)
		return err
	case TypeResetTrack:
		return h.ctrl.ResetTrack(ctx)
	case TypeRefresh:
		return h.ctrl.Refresh(ctx)

	default:
		return fmt.Errorf("%w: %q", errUnknownType, msg.Type)
	}
}

func decode(msg Message, v any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("message %q has no data", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("failed to decode %q message: %w", msg.Type, err)
	}
	return nil
}
