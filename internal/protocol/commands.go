package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Inbound command types.
const (
	TypeStartLatestData         = "start_latest_data"
	TypeStopLatestData          = "stop_latest_data"
	TypeGetTemperatureHistory   = "get_temperature_history"
	TypeStartTemperatureHistory = "start_temperature_history"
	TypeStopTemperatureHistory  = "stop_temperature_history"
	TypeStartPzemHistory        = "start_pzem_history"
	TypeStopPzemHistory         = "stop_pzem_history"
	TypeGetPzemHistoryOnce      = "get_pzem_history_once"
	TypeGetPzemHistory          = "get_pzem_history"
	TypePing                    = "ping"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object with a type.
	ErrMalformed = errors.New("protocol: malformed message")
	// ErrUnknownCommand matches any UnknownCommandError.
	ErrUnknownCommand = errors.New("protocol: unknown command")
)

// UnknownCommandError carries the type the client sent.
type UnknownCommandError struct {
	Type string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown message type: %s", e.Type)
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// Command is one decoded client request. The set of implementations is closed.
type Command interface {
	CommandType() string
}

type StartLatestData struct{}

type StopLatestData struct{}

// GetTemperatureHistory (re)starts the history stream. An empty Filter selects the
// configured default window.
type GetTemperatureHistory struct {
	Filter string
}

type StopTemperatureHistory struct{}

// StartPzemHistory begins periodic resends of the last Limit power samples.
type StartPzemHistory struct {
	Limit int
}

type StopPzemHistory struct{}

// GetPzemHistoryOnce requests a single snapshot of the last Limit power samples.
type GetPzemHistoryOnce struct {
	Limit int
}

type Ping struct{}

func (StartLatestData) CommandType() string        { return TypeStartLatestData }
func (StopLatestData) CommandType() string         { return TypeStopLatestData }
func (GetTemperatureHistory) CommandType() string  { return TypeGetTemperatureHistory }
func (StopTemperatureHistory) CommandType() string { return TypeStopTemperatureHistory }
func (StartPzemHistory) CommandType() string       { return TypeStartPzemHistory }
func (StopPzemHistory) CommandType() string        { return TypeStopPzemHistory }
func (GetPzemHistoryOnce) CommandType() string     { return TypeGetPzemHistoryOnce }
func (Ping) CommandType() string                   { return TypePing }

// AvailableCommands is advertised to clients on connect.
var AvailableCommands = []string{
	TypeStartLatestData,
	TypeStopLatestData,
	TypeGetTemperatureHistory,
	TypeStopTemperatureHistory,
	TypeStartPzemHistory,
	TypeStopPzemHistory,
	TypeGetPzemHistoryOnce,
	TypePing,
}

type rawCommand struct {
	Type       string          `json:"type"`
	Filter     string          `json:"filter"`
	TimeFilter string          `json:"timeFilter"`
	Limit      json.RawMessage `json:"limit"`
}

// DecodeCommand parses one inbound text frame.
func DecodeCommand(data []byte) (Command, error) {
	var raw rawCommand
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	typ := strings.TrimSpace(raw.Type)
	if typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch typ {
	case TypeStartLatestData:
		return StartLatestData{}, nil
	case TypeStopLatestData:
		return StopLatestData{}, nil
	case TypeGetTemperatureHistory, TypeStartTemperatureHistory:
		filter := raw.Filter
		if filter == "" {
			filter = raw.TimeFilter
		}
		return GetTemperatureHistory{Filter: strings.TrimSpace(filter)}, nil
	case TypeStopTemperatureHistory:
		return StopTemperatureHistory{}, nil
	case TypeStartPzemHistory:
		return StartPzemHistory{Limit: parseLimit(raw.Limit)}, nil
	case TypeStopPzemHistory:
		return StopPzemHistory{}, nil
	case TypeGetPzemHistoryOnce, TypeGetPzemHistory:
		return GetPzemHistoryOnce{Limit: parseLimit(raw.Limit)}, nil
	case TypePing:
		return Ping{}, nil
	default:
		return nil, &UnknownCommandError{Type: typ}
	}
}

// parseLimit accepts a JSON number or numeric string; anything else means "default".
func parseLimit(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		n = parsed
	}
	if n < 1 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
