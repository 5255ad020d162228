package model

import (
	"encoding/json"
	"fmt"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ErrorKind classifies a failed Result.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotAuthenticated
	KindUpstreamFailure
	KindTransportFailure
	KindMalformedResponse
	KindInvalidRequest
	KindLocalFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindTransportFailure:
		return "transport_failure"
	case KindMalformedResponse:
		return "malformed_response"
	case KindInvalidRequest:
		return "invalid_request"
	case KindLocalFailure:
		return "local_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the envelope every executor call returns. Exactly one of Data
// (success) or Description/ErrorCode (failure) is meaningful.
type Result struct {
	Status      string          `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`

	Kind ErrorKind `json:"-" yaml:"-"`
}

// Success wraps an upstream JSON body.
func Success(data json.RawMessage) Result {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Result{Status: StatusSuccess, Data: data}
}

// Failure builds a failed envelope.
func Failure(kind ErrorKind, code int, description string) Result {
	return Result{
		Status:      StatusFailure,
		Description: description,
		ErrorCode:   code,
		Kind:        kind,
	}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Decode unmarshals the success payload into v.
func (r Result) Decode(v any) error {
	if !r.OK() {
		return r.Err()
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns nil for a success and a *FailureError otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &FailureError{Kind: r.Kind, Code: r.ErrorCode, Description: r.Description}
}

// FailureError is a failed Result seen as an error.
type FailureError struct {
	Kind        ErrorKind
	Code        int
	Description string
}

func (e *FailureError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (error code %d)", e.Description, e.Code)
	}
	return e.Description
}
