package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// StatusError carries the HTTP-ish status code of a failed remote call.
// Providers wrap their SDK errors into this type so classification does not
// have to rely on message text.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ErrorKind is the three-way failure taxonomy: quota and overload are
// transient and retried, everything else is terminal.
type ErrorKind int

const (
	KindTerminal ErrorKind = iota
	KindQuota
	KindOverload
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindOverload:
		return "overload"
	default:
		return "terminal"
	}
}

var quotaSignals = []string{
	"429",
	"quota",
	"rate limit",
	"too many requests",
	"resource_exhausted",
	"resource exhausted",
}

var overloadSignals = []string{
	"503",
	"500",
	"502",
	"504",
	"overloaded",
	"unavailable",
	"internal error",
}

// ClassifyError maps an error from the remote call to its kind. Structured
// status codes win over message matching; message matching remains as a
// fallback for errors that arrive as plain text.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindTerminal
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusTooManyRequests:
			return KindQuota
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return KindOverload
		default:
			return KindTerminal
		}
	}

	msg := strings.ToLower(err.Error())
	for _, signal := range quotaSignals {
		if strings.Contains(msg, signal) {
			return KindQuota
		}
	}
	for _, signal := range overloadSignals {
		if strings.Contains(msg, signal) {
			return KindOverload
		}
	}
	return KindTerminal
}

// apiErrorPayload matches the structured error body some backends embed
// verbatim into error text.
type apiErrorPayload struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ExtractAPIErrorMessage unwraps the human-readable message field from a
// structured error payload embedded in raw error text, falling back to the
// raw text when there is nothing to unwrap.
func ExtractAPIErrorMessage(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return raw
	}

	var payload apiErrorPayload
	if err := json.Unmarshal([]byte(raw[start:]), &payload); err != nil {
		return raw
	}
	if payload.Error.Message == "" {
		return raw
	}
	return payload.Error.Message
}
