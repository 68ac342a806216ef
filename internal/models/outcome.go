package models

// OutcomeKind tags which branch of Outcome is populated.
type OutcomeKind int

const (
	OutcomeIdle OutcomeKind = iota
	OutcomeSuccess
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIdle:
		return "idle"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind enumerates the user-visible failure states of a weather fetch.
type ErrorKind int

const (
	// ErrorValidation: empty or whitespace query, detected before any network call.
	ErrorValidation ErrorKind = iota + 1
	// ErrorNotFound: the weather API reported no matching location.
	ErrorNotFound
	// ErrorTransport: any other failure (non-2xx, malformed payload, network, timeout).
	ErrorTransport
)

// User-visible messages, one per ErrorKind.
const (
	MessageValidation = "Please enter a city name"
	MessageNotFound   = "City not found. Please check the spelling and try again."
	MessageTransport  = "Could not fetch weather data. Please try again."
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorValidation:
		return "validation"
	case ErrorNotFound:
		return "not_found"
	case ErrorTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Message returns the text shown in the alert element.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorValidation:
		return MessageValidation
	case ErrorNotFound:
		return MessageNotFound
	default:
		return MessageTransport
	}
}

// Outcome is what the result/error area shows. It is Idle, Success(result) or Error(kind);
// fields are unexported so only the constructors below can build one.
type Outcome struct {
	kind    OutcomeKind
	result  *WeatherResult
	errKind ErrorKind
}

// Idle is the outcome before any fetch, and while a fetch is in flight.
func Idle() Outcome {
	return Outcome{kind: OutcomeIdle}
}

// Success wraps a fetched result.
func Success(r WeatherResult) Outcome {
	return Outcome{kind: OutcomeSuccess, result: &r}
}

// Failure wraps a user-visible error state.
func Failure(kind ErrorKind) Outcome {
	return Outcome{kind: OutcomeError, errKind: kind}
}

func (o Outcome) Kind() OutcomeKind { return o.kind }

// Result returns the weather result when the outcome is a success.
func (o Outcome) Result() (WeatherResult, bool) {
	if o.kind != OutcomeSuccess || o.result == nil {
		return WeatherResult{}, false
	}
	return *o.result, true
}

// ErrKind returns the error kind when the outcome is an error.
func (o Outcome) ErrKind() (ErrorKind, bool) {
	if o.kind != OutcomeError {
		return 0, false
	}
	return o.errKind, true
}

// Label is the metrics/log label: success, validation, not_found, transport or idle.
func (o Outcome) Label() string {
	if o.kind == OutcomeError {
		return o.errKind.String()
	}
	return o.kind.String()
}

// outcomeJSON is the wire form used by the JSON API.
type outcomeJSON struct {
	Status  string         `json:"status"`
	Weather *WeatherResult `json:"weather,omitempty"`
	Error   *outcomeError  `json:"error,omitempty"`
}

type outcomeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// View returns the JSON representation of the outcome.
func (o Outcome) View() interface{} {
	v := outcomeJSON{Status: o.kind.String()}
	if r, ok := o.Result(); ok {
		v.Weather = &r
	}
	if k, ok := o.ErrKind(); ok {
		v.Error = &outcomeError{Kind: k.String(), Message: k.Message()}
	}
	return v
}
