package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// Handlers unwrap it with errors.As and answer with StatusCode; anything that
// is not a RequestError is treated as an internal error.
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

func (r *RequestError) Unwrap() error {
	return r.Err
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrNoCandidateLabels    = &RequestError{Err: errors.New("candidate_labels must contain at least one label"), StatusCode: 422}
	ErrNoSentences          = &RequestError{Err: errors.New("sentences must contain at least one sentence"), StatusCode: 422}
	ErrEmbeddingUnavailable = &RequestError{Err: errors.New("no embedding model configured"), StatusCode: 501}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}

	ErrFailedModelReq         = &ModelError{Msg: "failed to send http request to model", Code: "model_http_err"}
	ErrFailedModelReqFromCode = &ModelError{Msg: "model responded with non-200", Code: "model_http_status_err"}
	ErrFailedReadingResponse  = &ModelError{Msg: "failed to read model response", Code: "model_response_err"}
	ErrModelContext           = &ModelError{Msg: "model context canceled", Code: "model_context_err"}
	ErrModelRuntime           = &ModelError{Msg: "model runtime failure", Code: "model_runtime_err"}
	ErrUnexpectedModelOutput  = &ModelError{Msg: "model returned labels that do not match the request", Code: "model_output_err"}
)

// ModelError describes a failure talking to, or getting sane output from, the
// model backend. Code is used as a metrics label so keep it low cardinality.
type ModelError struct {
	Msg  string
	Code string
	Err  error
}

func (m *ModelError) Error() string {
	if m.Err != nil {
		return m.Msg + ": " + m.Err.Error()
	}
	return m.Msg
}

func (m *ModelError) Unwrap() error {
	return m.Err
}

// Is matches on Code so wrapped copies made with With still compare equal to
// the sentinel they came from.
func (m *ModelError) Is(target error) bool {
	t, ok := target.(*ModelError)
	if !ok {
		return false
	}
	return t.Code == m.Code
}

// With returns a copy of the sentinel carrying the underlying cause.
func (m *ModelError) With(err error) *ModelError {
	return &ModelError{Msg: m.Msg, Code: m.Code, Err: err}
}

// ErrorCode returns the metrics code for err, or "unknown".
func ErrorCode(err error) string {
	var merr *ModelError
	if errors.As(err, &merr) {
		return merr.Code
	}
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return fmt.Sprintf("status_%d", rerr.StatusCode)
	}
	return "unknown"
}

// ValidationDetail is one field-level problem with a request body. Loc is the
// path to the offending value, starting with "body".
type ValidationDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// ValidationError is returned by request decoding and rendered as a 422.
type ValidationError struct {
	Detail []ValidationDetail `json:"detail"`
}

func (v *ValidationError) Error() string {
	if len(v.Detail) == 0 {
		return "validation error"
	}
	return fmt.Sprintf("validation error: %v %s", v.Detail[0].Loc, v.Detail[0].Msg)
}

func (v *ValidationError) Add(msg, typ string, loc ...any) {
	v.Detail = append(v.Detail, ValidationDetail{Loc: append([]any{"body"}, loc...), Msg: msg, Type: typ})
}

// Err returns v when it holds at least one detail, nil otherwise.
func (v *ValidationError) Err() error {
	if len(v.Detail) == 0 {
		return nil
	}
	return v
}
