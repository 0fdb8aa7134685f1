package invoker

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Stream is an engine.Invoker that writes each call as a CALL message
// instead of performing it. It backs dry runs and piping calls into other
// tools.
type Stream struct {
	enc      *Encoder
	entityID string
	logger   zerolog.Logger
}

// NewStream creates a stream invoker for entityID writing to w.
func NewStream(w io.Writer, entityID string, logger zerolog.Logger) *Stream {
	return NewStreamWithEncoder(NewEncoder(w), entityID, logger)
}

// NewStreamWithEncoder creates a stream invoker sharing enc with other
// invokers, so that several actors can write to the same stream.
func NewStreamWithEncoder(enc *Encoder, entityID string, logger zerolog.Logger) *Stream {
	return &Stream{
		enc:      enc,
		entityID: entityID,
		logger:   logger.With().Str("component", "stream-invoker").Str("entity_id", entityID).Logger(),
	}
}

// Invoke writes the call to the stream.
func (s *Stream) Invoke(ctx context.Context, service string, params map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := s.enc.EncodeCall(&CallMessage{
		EntityID: s.entityID,
		Service:  service,
		Data:     params,
	})
	if err != nil {
		return fmt.Errorf("failed to write call %s: %w", service, err)
	}

	s.logger.Debug().
		Str("message_id", id).
		Str("service", service).
		Msg("Wrote service call")

	return nil
}
