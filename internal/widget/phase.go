package widget

import "github.com/kjstillabower/city-weather-widget/internal/models"

// Phase is the fetch state machine position:
// Idle → Validating → {ValidationError | Fetching} → {Success | NotFoundError | GenericError}.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseFetching
	PhaseSuccess
	PhaseValidationError
	PhaseNotFoundError
	PhaseGenericError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseFetching:
		return "fetching"
	case PhaseSuccess:
		return "success"
	case PhaseValidationError:
		return "validation_error"
	case PhaseNotFoundError:
		return "not_found_error"
	case PhaseGenericError:
		return "generic_error"
	default:
		return "unknown"
	}
}

// Busy reports whether a fetch attempt is in progress.
func (p Phase) Busy() bool {
	return p == PhaseValidating || p == PhaseFetching
}

func phaseFor(o models.Outcome) Phase {
	switch o.Kind() {
	case models.OutcomeSuccess:
		return PhaseSuccess
	case models.OutcomeError:
		k, _ := o.ErrKind()
		switch k {
		case models.ErrorValidation:
			return PhaseValidationError
		case models.ErrorNotFound:
			return PhaseNotFoundError
		default:
			return PhaseGenericError
		}
	default:
		return PhaseIdle
	}
}
