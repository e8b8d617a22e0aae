package otpgate

import (
	"io"
	"log"

	"github.com/MrEthical07/otpgate/internal/audit"
)

// AuditEvent is one audit record. It never carries codes, tokens or password material.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events on a channel; handy in tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LogSink writes one key=value line per event to a *log.Logger.
type LogSink = audit.LogSink

// MultiSink fans an event out to several sinks in order.
type MultiSink = audit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewLogSink(logger *log.Logger) *LogSink {
	return audit.NewLogSink(logger)
}
