package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"pantau/internal/logging"
	"pantau/internal/models"
	"pantau/internal/protocol"
)

// Dispatcher routes inbound protocol frames to stream actions on one client.
type Dispatcher struct {
	registry *Registry
	streams  *Streams
	logger   zerolog.Logger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(registry *Registry, streams *Streams, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		streams:  streams,
		logger:   logging.Component(logger, "dispatcher"),
	}
}

// OnConnect registers a client and acknowledges it with its id.
func (d *Dispatcher) OnConnect() *Client {
	client := d.registry.Register()
	client.Send(protocol.NewConnectionEstablished(client.ID))
	return client
}

// OnClose stops every stream of the client and forgets it. Safe to call twice.
func (d *Dispatcher) OnClose(clientID string) {
	d.registry.Unregister(clientID)
}

// OnMessage handles one inbound text frame. Failures are reported to the client
// as error events and never close the connection.
func (d *Dispatcher) OnMessage(client *Client, raw []byte) {
	cmd, err := protocol.DecodeCommand(raw)
	if err != nil {
		var unknown *protocol.UnknownCommandError
		if errors.As(err, &unknown) {
			d.logger.Debug().Str("client_id", client.ID).Str("type", unknown.Type).Msg("unknown command")
			client.Send(protocol.NewError(fmt.Sprintf("Unknown message type: %s", unknown.Type), unknown.Type))
			return
		}
		d.logger.Debug().Err(err).Str("client_id", client.ID).Msg("malformed frame")
		client.Send(protocol.NewError("Invalid message format", ""))
		return
	}

	switch c := cmd.(type) {
	case protocol.Ping:
		client.Send(protocol.NewPong())

	case protocol.StartLatestData:
		spec := d.streams.LatestSpec()
		d.start(client, spec)

	case protocol.StopLatestData:
		d.stop(client, StreamLatest)

	case protocol.GetTemperatureHistory:
		window := d.streams.ResolveWindow(c.Filter)
		if c.Filter != "" && c.Filter != window.Key {
			d.logger.Debug().Str("client_id", client.ID).Str("filter", c.Filter).Str("window", window.Key).Msg("unknown filter, using default window")
		}
		spec := d.streams.HistorySpec(window)
		d.start(client, spec)

	case protocol.StopTemperatureHistory:
		d.stop(client, StreamTemperatureHistory)

	case protocol.StartPzemHistory:
		spec := d.streams.PzemHistorySpec(d.streams.ClampLimit(c.Limit))
		d.start(client, spec)

	case protocol.StopPzemHistory:
		d.stop(client, StreamPzemHistory)

	case protocol.GetPzemHistoryOnce:
		limit := d.streams.ClampLimit(c.Limit)
		client.Go(func(ctx context.Context) {
			samples, err := d.streams.Snapshot(ctx, models.MetricPower, limit)
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Error().Err(err).Str("client_id", client.ID).Str("stream", string(StreamPzemHistory)).Msg("one-shot snapshot failed")
				}
				return
			}
			client.Send(protocol.NewPzemHistory(samples))
		})

	default:
		client.Send(protocol.NewError(fmt.Sprintf("Unhandled message type: %s", cmd.CommandType()), cmd.CommandType()))
	}
}

// start retires any running stream of the same kind before announcing the new
// one, so no frame of the old stream follows stream_started.
func (d *Dispatcher) start(client *Client, spec StreamSpec) {
	client.StopStream(spec.Kind)
	client.Send(protocol.NewStreamStarted(string(spec.Kind), spec.Interval))
	client.StartStream(spec)
}

func (d *Dispatcher) stop(client *Client, kind StreamKind) {
	client.StopStream(kind)
	client.Send(protocol.NewStreamStopped(string(kind)))
}
