package duplex

import "encoding/json"

// request is one framed command from a client. Frames are newline-delimited
// JSON objects; the id correlates the single response the server sends back.
type request struct {
	ID      uint64          `json:"id"`
	Cmd     uint8           `json:"cmd"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// response is the single reply to a request. Payload holds either the
// handler's success fields or an ErrorPayload.
type response struct {
	ID      uint64          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload is the wire shape for every failure crossing the transport.
type ErrorPayload struct {
	Error string `json:"error"`
}
