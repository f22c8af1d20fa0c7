// Package ipc implements the control socket protocol between the
// fingermond daemon and its clients.
//
// Messages are length-prefixed frames on a Unix socket: a fixed 16-byte
// big-endian header followed by a JSON payload. Clients issue
// request/response pairs; a subscription switches the connection into a
// push stream of statistics snapshots.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"fingermon/internal/stats"
	"fingermon/internal/store"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x464d4950 // "FMIP"
)

// MessageType identifies an IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing        MessageType = 0x0001
	MsgPong        MessageType = 0x0002
	MsgError       MessageType = 0x0003
	MsgShutdown    MessageType = 0x0004
	MsgShutdownAck MessageType = 0x0005

	// Status (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Statistics (0x02xx)
	MsgStatsRequest    MessageType = 0x0200
	MsgStatsResponse   MessageType = 0x0201
	MsgHistoryRequest  MessageType = 0x0202
	MsgHistoryResponse MessageType = 0x0203

	// Streaming (0x03xx)
	MsgSubscribe    MessageType = 0x0300
	MsgSubscribeAck MessageType = 0x0301
	MsgUnsubscribe  MessageType = 0x0302
	MsgSnapshot     MessageType = 0x0303
)

// Header is the fixed-size frame header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// HeaderSize is the encoded header length in bytes.
const HeaderSize = 16

// MaxPayloadSize bounds a single frame's payload.
const MaxPayloadSize = 16 * 1024 * 1024

// Message is one framed message.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage builds a message of the given type.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write encodes the header to w.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader decodes a header from r, rejecting foreign or
// future-version frames.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write encodes the full message to w.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage decodes one complete message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayloadSize {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request/response payloads.

// ErrorResponse reports a failed operation.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrInternalError  = 3
	ErrUnavailable    = 4
)

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version        string    `json:"version"`
	StartedAt      time.Time `json:"started_at"`
	Uptime         string    `json:"uptime"`
	ListenerActive bool      `json:"listener_active"`
	EventsDropped  uint64    `json:"events_dropped"`
	StatePath      string    `json:"state_path"`
	LastCheckpoint time.Time `json:"last_checkpoint,omitempty"`
	Healthy        bool      `json:"healthy"`
	HealthDetail   string    `json:"health_detail,omitempty"`
}

// StatsResponse carries a full statistics snapshot.
type StatsResponse struct {
	Snapshot stats.Snapshot `json:"snapshot"`
}

// HistoryRequest asks for recent daily totals.
type HistoryRequest struct {
	Days int `json:"days"`
}

// HistoryResponse carries daily history rows, newest first.
type HistoryResponse struct {
	Days   []store.DayRecord `json:"days"`
	Totals store.DayRecord   `json:"totals"`
}

// SubscribeRequest opens a snapshot stream. IntervalEvents is how many
// applied events elapse between pushes; zero means every event.
type SubscribeRequest struct {
	IntervalEvents uint64 `json:"interval_events"`
}

// Encode marshals a payload to JSON.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals a JSON payload.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage builds an error reply.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse builds a reply carrying v.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
