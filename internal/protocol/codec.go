package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxLineBytes is the default limit on a single request line. Lines beyond
// it are rejected with MessageTooLarge and the connection is closed.
const MaxLineBytes = 64 * 1024

// ErrBadRequest is returned for malformed JSON or schema violations.
var ErrBadRequest = errors.New("bad request")

// validRequestTypes is the closed set of accepted request types.
var validRequestTypes = map[string]struct{}{
	TypeCreateSession: {},
	TypeJoinSession:   {},
	TypeLeaveSession:  {},
	TypeStartTimecode: {},
	TypeStopTimecode:  {},
	TypeResetTimecode: {},
}

// DecodeRequest parses one request line. The line must be a single JSON
// object with a string `type` from the closed request set; a trailing CR is
// tolerated. Field type mismatches and unknown types are ErrBadRequest.
func DecodeRequest(line []byte) (Request, error) {
	line = bytes.TrimSuffix(bytes.TrimSpace(line), []byte("\r"))
	if len(line) == 0 || line[0] != '{' {
		return Request{}, fmt.Errorf("%w: expected a JSON object", ErrBadRequest)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if req.Type == "" {
		return Request{}, fmt.Errorf("%w: missing type", ErrBadRequest)
	}
	if _, ok := validRequestTypes[req.Type]; !ok {
		return Request{}, fmt.Errorf("%w: unknown type %q", ErrBadRequest, req.Type)
	}
	if req.Type == TypeJoinSession && req.SessionID == "" {
		return Request{}, fmt.Errorf("%w: join_session requires session_id", ErrBadRequest)
	}
	return req, nil
}

// EncodeMessage renders a message as compact JSON followed by a newline.
func EncodeMessage(msg Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	return append(b, '\n'), nil
}
