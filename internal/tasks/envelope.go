// Package tasks implements the durable task queue and result-envelope
// protocol that the cluster/nodepool/node engines run on: hierarchical
// task IDs, a broker abstraction, a worker pool, and the status
// aggregation/rollup used to answer "is this cluster create done yet"
// (spec.md §4.H).
package tasks

import (
	"encoding/json"
	"runtime/debug"
)

// ObjectName identifies which status-aggregation rules apply to an
// envelope: cluster/nodepool envelopes roll up their children's
// statuses; common envelopes are leaves.
type ObjectName string

const (
	ObjectCluster  ObjectName = "cluster"
	ObjectNodepool ObjectName = "nodepool"
	ObjectCommon   ObjectName = "common"
)

// EnvelopeResultType tags a result as a recognized envelope shape.
const EnvelopeResultType = "CeleryRunnerResult"

// OpaqueErrorMessage is substituted for any non-domain error so a
// crashed task never leaks a raw stack trace to a caller (spec.md §7).
const OpaqueErrorMessage = "An unexpected error occurred, please try again later"

// Creds identifies which credentials a task/result belongs to, so
// status aggregation can reject cross-tenant result consumption
// (spec.md §5 "aggregation rejects cross-credential result
// consumption").
type Creds struct {
	AuthClientId string `json:"auth_client_id"`
	AuthSecret   string `json:"auth_secret"`
}

// Equal compares credentials for the "invalid result" check.
func (c Creds) Equal(other Creds) bool {
	return c.AuthClientId == other.AuthClientId && c.AuthSecret == other.AuthSecret
}

// ResultEnvelope is the value every task produces, success or failure
// (spec.md §4.H "Result envelope").
type ResultEnvelope struct {
	ResultType string                 `json:"__result_type"`
	ObjectName ObjectName             `json:"object_name"`
	TaskName   string                 `json:"task_name"`
	Result     interface{}            `json:"result,omitempty"`
	Error      *string                `json:"error"`
	Traceback  *string                `json:"traceback"`
	Creds      Creds                  `json:"creds"`
	Meta       map[string]interface{} `json:"meta"`
}

// domainError is implemented by every error kind the engines define
// (ConfigError, AuthError, CloudApiError, NotFoundError,
// AmbiguityError); marker interfaces let tasks classify an error
// without importing the concrete packages that define them (spec.md
// §9 "break cyclic imports ... task-factory functions on an
// interface").
type domainError interface {
	error
	DomainError()
}

// Work is the signature of the "real" task body: it returns the
// domain result plus the credentials the result belongs to (decoded
// from the task's own payload), or a domain/opaque error.
type Work func() (result interface{}, creds Creds, err error)

// Wrap runs fn and always returns a ResultEnvelope: this is the
// "perform the work, then build the envelope" redesign from spec.md §9,
// replacing a stored thunk invoked lazily at export time with an
// envelope that is a pure value the instant Wrap returns.
func Wrap(objectName ObjectName, taskName string, meta map[string]interface{}, fn Work) (env ResultEnvelope) {
	env = ResultEnvelope{
		ResultType: EnvelopeResultType,
		ObjectName: objectName,
		TaskName:   taskName,
		Meta:       meta,
	}
	if env.Meta == nil {
		env.Meta = map[string]interface{}{}
	}

	defer func() {
		if r := recover(); r != nil {
			msg := OpaqueErrorMessage
			env.Error = &msg
			tb := string(debug.Stack())
			env.Traceback = &tb
			env.Result = nil
		}
	}()

	result, creds, err := fn()
	env.Creds = creds
	if err == nil {
		env.Result = result
		return env
	}

	if de, ok := err.(domainError); ok {
		msg := de.Error()
		env.Error = &msg
		return env
	}

	msg := OpaqueErrorMessage
	env.Error = &msg
	tb := err.Error()
	env.Traceback = &tb
	return env
}

// ToJSON and EnvelopeFromJSON let envelopes travel through a Broker
// as opaque JSON payloads.
func (e ResultEnvelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EnvelopeFromJSON(raw []byte) (ResultEnvelope, error) {
	var env ResultEnvelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// IsEnvelope reports whether raw decodes into a recognized envelope
// shape (spec.md §4.H status aggregation: "Raw result is a recognized
// envelope").
func IsEnvelope(raw map[string]interface{}) bool {
	t, ok := raw["__result_type"]
	if !ok {
		return false
	}
	s, ok := t.(string)
	return ok && s == EnvelopeResultType
}
