package llm

import (
	"bytes"
	"errors"
	"io"

	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/isaacphi/toolturn/internal/events"
)

var doneMarker = []byte("[DONE]")

// Decoder turns raw chunks into Thinking, Content, ToolFragment and Done
// events. Exactly one DoneEvent is produced per source; afterwards Next
// returns io.EOF.
type Decoder struct {
	src     ChunkSource
	vendor  Vendor
	pending []events.Event
	done    bool
}

func NewDecoder(src ChunkSource, vendor Vendor) *Decoder {
	if vendor == "" {
		vendor = VendorOpenAI
	}
	return &Decoder{src: src, vendor: vendor}
}

// Next returns the next event. Undecodable chunks yield a *domain.ProtocolError
// and error payloads from the service a *domain.TransportError.
func (d *Decoder) Next() (events.Event, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.done {
			return nil, io.EOF
		}

		data, err := d.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Some endpoints close the stream without the marker.
				d.done = true
				return DoneEvent{}, nil
			}
			return nil, &domain.TransportError{Err: err}
		}

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, doneMarker) {
			d.done = true
			return DoneEvent{}, nil
		}

		evs, err := d.decode(data)
		if err != nil {
			return nil, err
		}
		d.pending = append(d.pending, evs...)
	}
}

// Close releases the underlying source.
func (d *Decoder) Close() error {
	return d.src.Close()
}

func (d *Decoder) decode(data []byte) ([]events.Event, error) {
	chunk, err := decodeChunk(data)
	if err != nil {
		return nil, &domain.ProtocolError{Chunk: string(data), Err: err}
	}
	if werr := chunk.serviceError(); werr != nil {
		return nil, &domain.TransportError{Err: errors.New(werr.Message)}
	}

	msg := d.vendor.extract(chunk)
	if msg == nil {
		return nil, nil
	}
	return messageEvents(msg), nil
}

// messageEvents applies the per-chunk priority: tool calls, then reasoning,
// then answer text.
func messageEvents(msg *wireMessage) []events.Event {
	if len(msg.ToolCalls) > 0 {
		evs := make([]events.Event, 0, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			evs = append(evs, ToolFragmentEvent{Fragment: domain.FunctionCallFragment{
				Index:          idx,
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsChunk: tc.Function.Arguments,
			}})
		}
		return evs
	}

	reasoning := msg.ReasoningContent
	if reasoning == "" {
		reasoning = msg.Thinking
	}
	if reasoning != "" {
		return []events.Event{ThinkingEvent{Text: reasoning}}
	}
	if msg.Content != "" {
		return []events.Event{ContentEvent{Text: msg.Content}}
	}
	return nil
}
