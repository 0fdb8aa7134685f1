package invoker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Encoder writes newline-delimited JSON messages to an io.Writer.
// It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates a new stream encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w: bufio.NewWriter(w),
	}
}

// Encode writes a message to the output stream and returns its id.
func (e *Encoder) Encode(msgType MessageType, data interface{}) (string, error) {
	if err := msgType.Validate(); err != nil {
		return "", err
	}

	var dataBytes []byte
	if data != nil {
		var err error
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(msgBytes); err != nil {
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return "", fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush: %w", err)
	}

	return msg.ID, nil
}

// EncodeCall sends a CALL message.
func (e *Encoder) EncodeCall(call *CallMessage) (string, error) {
	if err := call.Validate(); err != nil {
		return "", fmt.Errorf("invalid call: %w", err)
	}
	return e.Encode(MessageTypeCall, call)
}

// EncodeState sends a STATE message.
func (e *Encoder) EncodeState(state *StateMessage) (string, error) {
	if err := state.Validate(); err != nil {
		return "", fmt.Errorf("invalid state: %w", err)
	}
	return e.Encode(MessageTypeState, state)
}

// Decoder reads newline-delimited JSON messages from an io.Reader.
type Decoder struct {
	r *bufio.Scanner
}

// NewDecoder creates a new stream decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)
	return &Decoder{
		r: scanner,
	}
}

// Decode reads the next message. Blank lines are skipped; io.EOF is
// returned at the end of the stream.
func (d *Decoder) Decode() (*Message, error) {
	for {
		if !d.r.Scan() {
			if err := d.r.Err(); err != nil {
				return nil, fmt.Errorf("scan error: %w", err)
			}
			return nil, io.EOF
		}

		line := bytes.TrimSpace(d.r.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		if err := msg.Type.Validate(); err != nil {
			return nil, fmt.Errorf("invalid message: %w", err)
		}
		return &msg, nil
	}
}

// DecodeState decodes the next message, which must be a STATE message.
// Numbers in the attributes are kept as json.Number.
func (d *Decoder) DecodeState() (*StateMessage, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, err
	}
	if msg.Type != MessageTypeState {
		return nil, fmt.Errorf("expected STATE message, got %s", msg.Type)
	}

	var state StateMessage
	if err := decodeData(msg.Data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state: %w", err)
	}
	return &state, nil
}

// DecodeCall decodes the next message, which must be a CALL message.
func (d *Decoder) DecodeCall() (*CallMessage, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, err
	}
	if msg.Type != MessageTypeCall {
		return nil, fmt.Errorf("expected CALL message, got %s", msg.Type)
	}

	var call CallMessage
	if err := decodeData(msg.Data, &call); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call: %w", err)
	}
	if err := call.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call: %w", err)
	}
	return &call, nil
}

func decodeData(data json.RawMessage, target interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}
