package contracts

import (
	"time"
)

// Header keys stamped onto outbound wire messages.
const (
	// HeaderRetryCount records how many prior attempts a wire message has
	// seen: 0 on the first attempt, attempt-1 afterwards.
	HeaderRetryCount = "x-retry-count"
)

// Envelope is the immutable package built once per logical send: the
// serialized body plus identifying metadata. It is safe to share read-only
// across every physical attempt of its logical send.
type Envelope struct {
	MessageID     string
	CorrelationID string
	ContentType   string
	Timestamp     time.Time
	Headers       map[string]interface{}
	Body          []byte
}

// WireMessage is the transport representation of a single physical attempt.
// A fresh WireMessage is built from the same Envelope for every attempt; each
// one owns exactly one send and must be released once its outcome is known.
type WireMessage struct {
	Exchange      string
	RoutingKey    string
	MessageID     string
	CorrelationID string
	ContentType   string
	Timestamp     time.Time
	Headers       map[string]interface{}
	Body          []byte
}

// RetryCount returns the recorded prior-attempt count, or 0 when the header
// is missing or malformed.
func (m *WireMessage) RetryCount() int {
	if m.Headers == nil {
		return 0
	}
	if n, ok := m.Headers[HeaderRetryCount].(int); ok {
		return n
	}
	return 0
}

// Reset clears the message for reuse. The headers map is retained and
// emptied so pooled messages do not reallocate it.
func (m *WireMessage) Reset() {
	m.Exchange = ""
	m.RoutingKey = ""
	m.MessageID = ""
	m.CorrelationID = ""
	m.ContentType = ""
	m.Timestamp = time.Time{}
	m.Body = nil
	for k := range m.Headers {
		delete(m.Headers, k)
	}
}
