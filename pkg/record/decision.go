package record

import "fmt"

// Decision is the venue's final outcome for a submission. A pending or
// unknown outcome is represented by a nil *Decision.
type Decision string

const (
	DecisionAcceptOral      Decision = "Accept (Oral)"
	DecisionAcceptSpotlight Decision = "Accept (Spotlight)"
	DecisionAcceptPoster    Decision = "Accept (Poster)"
	DecisionReject          Decision = "Reject"
	DecisionDeskReject      Decision = "Desk Reject"
	DecisionWithdrawn       Decision = "Withdrawn"
)

// DecisionType is the coarse class of a decision.
type DecisionType string

const (
	DecisionTypeAccept    DecisionType = "Accept"
	DecisionTypeReject    DecisionType = "Reject"
	DecisionTypeWithdrawn DecisionType = "Withdrawn"
)

// Type returns the coarse class of d. Desk rejections count as rejections.
func (d Decision) Type() DecisionType {
	switch d {
	case DecisionAcceptOral, DecisionAcceptSpotlight, DecisionAcceptPoster:
		return DecisionTypeAccept
	case DecisionWithdrawn:
		return DecisionTypeWithdrawn
	default:
		return DecisionTypeReject
	}
}

// Valid reports whether d is one of the terminal decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAcceptOral, DecisionAcceptSpotlight, DecisionAcceptPoster,
		DecisionReject, DecisionDeskReject, DecisionWithdrawn:
		return true
	}
	return false
}

// UnmarshalText rejects strings that are not terminal decisions.
func (d *Decision) UnmarshalText(text []byte) error {
	v := Decision(text)
	if !v.Valid() {
		return fmt.Errorf("unknown decision %q", string(text))
	}
	*d = v
	return nil
}

// DecisionPtr returns a pointer to d.
func DecisionPtr(d Decision) *Decision {
	return &d
}
