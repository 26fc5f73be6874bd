package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Env is the ambient context attached to a report (application, host,
// service manager, container).
type Env map[string]string

// Merge copies every key of other into e, overwriting existing keys.
func (e Env) Merge(other Env) Env {
	if e == nil {
		e = Env{}
	}
	maps.Copy(e, other)
	return e
}

type ErrorInfo struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Chain   []string `json:"chain,omitempty"`
}

type Report struct {
	ID      string     `json:"id"`
	Time    time.Time  `json:"time"`
	Message string     `json:"message"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Stack   string     `json:"stack,omitempty"`
	Env     Env        `json:"env,omitempty"`
}

// New builds a report value. env is copied so later changes by the caller
// do not leak into it.
func New(now time.Time, env Env, message string, err error) Report {
	return Report{
		ID:      uuid.NewString(),
		Time:    now.UTC(),
		Message: message,
		Error:   Describe(err),
		Env:     Env{}.Merge(env),
	}
}

// Describe flattens err and everything it wraps. Returns nil for a nil error.
func Describe(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
	for _, cause := range unwrapAll(err) {
		info.Chain = append(info.Chain, fmt.Sprintf("%T: %s", cause, cause.Error()))
	}
	return info
}

// unwrapAll walks both single and joined wrapping, depth first.
func unwrapAll(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				if inner == nil {
					continue
				}
				out = append(out, inner)
				walk(inner)
			}
		default:
			if inner := errors.Unwrap(e); inner != nil {
				out = append(out, inner)
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

// Builder turns context, message and an optional error into the payload
// a reporter ships.
type Builder interface {
	BuildPayload(env Env, message string, err error) (string, error)
}

// JSONBuilder is the default Builder. The zero value is ready to use.
type JSONBuilder struct {
	Now   func() time.Time
	Stack bool // attach the calling goroutine's stack when err != nil
}

var _ Builder = JSONBuilder{}

func (b JSONBuilder) BuildPayload(env Env, message string, err error) (string, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	r := New(now(), env, message, err)
	if b.Stack && err != nil {
		r.Stack = string(debug.Stack())
	}
	data, mErr := json.Marshal(r)
	if mErr != nil {
		return "", fmt.Errorf("marshal report: %w", mErr)
	}
	return string(data), nil
}
