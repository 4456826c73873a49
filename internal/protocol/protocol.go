// Package protocol defines the newline-delimited JSON wire format spoken
// between the server and its clients, and the codec for it.
package protocol

// Request type constants (client → server).
const (
	TypeCreateSession = "create_session"
	TypeJoinSession   = "join_session"
	TypeLeaveSession  = "leave_session"
	TypeStartTimecode = "start_timecode"
	TypeStopTimecode  = "stop_timecode"
	TypeResetTimecode = "reset_timecode"
)

// Message type constants (server → client).
const (
	TypeWelcome         = "welcome"
	TypeSessionCreated  = "session_created"
	TypeSessionJoined   = "session_joined"
	TypeSessionLeft     = "session_left"
	TypeTimecodeStarted = "timecode_started"
	TypeTimecodeStopped = "timecode_stopped"
	TypeTimecodeReset   = "timecode_reset"
	TypeTimecodeUpdate  = "timecode_update"
	TypeServerShutdown  = "server_shutdown"
	TypeError           = "error"
)

// Error kinds carried in the `kind` field of error messages.
const (
	KindBadRequest       = "BadRequest"
	KindUnknownFramerate = "UnknownFramerate"
	KindInvalidTimecode  = "InvalidTimecode"
	KindSessionNotFound  = "SessionNotFound"
	KindNotInSession     = "NotInSession"
	KindMessageTooLarge  = "MessageTooLarge"
	KindInternalError    = "InternalError"
)

// Request is a decoded client request. Fields beyond Type are populated
// depending on the request type.
type Request struct {
	Type            string `json:"type"`
	Framerate       string `json:"framerate,omitempty"`
	InitialTimecode string `json:"initial_timecode,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	Timecode        string `json:"timecode,omitempty"`
}

// Message is the flat server → client wire format. Unused fields are
// omitted from the encoding.
type Message struct {
	Type                string   `json:"type"`
	ClientID            string   `json:"client_id,omitempty"`
	SupportedFramerates []string `json:"supported_framerates,omitempty"`
	SessionID           string   `json:"session_id,omitempty"`
	Framerate           string   `json:"framerate,omitempty"`
	Timecode            string   `json:"timecode,omitempty"`
	Running             *bool    `json:"running,omitempty"`
	Kind                string   `json:"kind,omitempty"`
	Detail              string   `json:"message,omitempty"`
}

// ─── Message constructors ────────────────────────────────────────────────────

func Welcome(clientID string, framerates []string) Message {
	return Message{Type: TypeWelcome, ClientID: clientID, SupportedFramerates: framerates}
}

func SessionCreated(sessionID, framerate, tc string) Message {
	return Message{Type: TypeSessionCreated, SessionID: sessionID, Framerate: framerate, Timecode: tc}
}

func SessionJoined(sessionID, framerate, tc string, running bool) Message {
	return Message{Type: TypeSessionJoined, SessionID: sessionID, Framerate: framerate, Timecode: tc, Running: &running}
}

func SessionLeft(sessionID string) Message {
	return Message{Type: TypeSessionLeft, SessionID: sessionID}
}

func TimecodeStarted(tc string) Message {
	return Message{Type: TypeTimecodeStarted, Timecode: tc}
}

func TimecodeStopped(tc string) Message {
	return Message{Type: TypeTimecodeStopped, Timecode: tc}
}

func TimecodeReset(tc string) Message {
	return Message{Type: TypeTimecodeReset, Timecode: tc}
}

func TimecodeUpdate(tc string) Message {
	return Message{Type: TypeTimecodeUpdate, Timecode: tc}
}

func ServerShutdown() Message {
	return Message{Type: TypeServerShutdown}
}

func Error(kind, detail string) Message {
	return Message{Type: TypeError, Kind: kind, Detail: detail}
}
