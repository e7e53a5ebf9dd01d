package llm

import "context"

// Role tags a conversation turn as sent to the remote model
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one typed piece of a turn: text, or inline binary data tagged
// with its MIME type.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Turn is one role-tagged unit of conversation content sent upstream
type Turn struct {
	Role  Role
	Parts []Part
}

// HistoryMessage is a prior conversation message as the caller holds it.
// Thinking placeholders and empty messages are dropped before the request
// is shaped.
type HistoryMessage struct {
	Role     Role
	Text     string
	Thinking bool
}

// Attachment is an encoded file payload attached to the new user turn only
type Attachment struct {
	Name     string
	MIMEType string
	Data     string // base64
}

// Source is one cited web source from search grounding
type Source struct {
	Title string
	URI   string
}

// Fragment is one incremental piece of a streamed response. Text is a delta,
// not accumulated; Sources carry any grounding metadata on this fragment.
type Fragment struct {
	Text    string
	Sources []Source
}

// GenerateRequest is a shaped streaming request to the remote model API
type GenerateRequest struct {
	Model  string
	Turns  []Turn
	Search bool
}

// Streamer opens a streaming generation request and invokes fn for each
// fragment, strictly in arrival order. A non-nil return from fn aborts the
// stream and is returned as-is.
type Streamer interface {
	Stream(ctx context.Context, req GenerateRequest, fn func(Fragment) error) error
}
