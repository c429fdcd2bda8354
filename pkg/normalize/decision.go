package normalize

import (
	"strings"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/record"
)

// ParseDecision maps a decision note's text to a decision. Besides the
// current labels it accepts older forms such as "Accept: poster" and
// "Accept (notable-top-5%)". Unrecognized text yields nil.
func ParseDecision(text string) *record.Decision {
	s := strings.ToLower(strings.TrimSpace(text))
	switch {
	case s == "":
		return nil
	case strings.Contains(s, "withdraw"):
		return record.DecisionPtr(record.DecisionWithdrawn)
	case strings.Contains(s, "desk reject"):
		return record.DecisionPtr(record.DecisionDeskReject)
	case strings.Contains(s, "reject"):
		return record.DecisionPtr(record.DecisionReject)
	case strings.Contains(s, "oral"), strings.Contains(s, "top-5%"), strings.Contains(s, "top 5%"):
		return record.DecisionPtr(record.DecisionAcceptOral)
	case strings.Contains(s, "spotlight"), strings.Contains(s, "top-25%"), strings.Contains(s, "top 25%"):
		return record.DecisionPtr(record.DecisionAcceptSpotlight)
	case strings.Contains(s, "accept"), strings.Contains(s, "poster"):
		return record.DecisionPtr(record.DecisionAcceptPoster)
	}
	return nil
}

// DecisionFromVenue derives a decision from a submission's venue strings,
// as published once decisions are out. label is the conference label, such
// as "ICLR 2025". The checks run in a fixed precedence; nil means pending.
func DecisionFromVenue(venue, venueID, label string) *record.Decision {
	switch {
	case strings.Contains(venueID, "Withdrawn") || strings.Contains(venue, "Withdrawn"):
		return record.DecisionPtr(record.DecisionWithdrawn)

	case strings.Contains(venueID, "Desk_Rejected") || strings.Contains(venue, "Desk Reject"):
		return record.DecisionPtr(record.DecisionDeskReject)

	case strings.Contains(venueID, "Rejected") ||
		strings.HasPrefix(venue, "Submitted to"):
		return record.DecisionPtr(record.DecisionReject)

	// Still under review: the venue names the conference but nothing is decided.
	case strings.HasSuffix(venueID, "/Submission"):
		return nil

	case strings.Contains(venueID, "Oral") || strings.Contains(venue, "Oral"):
		return record.DecisionPtr(record.DecisionAcceptOral)

	case strings.Contains(venueID, "Spotlight") || strings.Contains(venue, "Spotlight"):
		return record.DecisionPtr(record.DecisionAcceptSpotlight)

	case strings.Contains(venueID, "Poster") || strings.Contains(venue, "Poster"):
		return record.DecisionPtr(record.DecisionAcceptPoster)

	case label != "" && strings.Contains(venue, label) &&
		!strings.Contains(venue, "Submitted") && !strings.Contains(venue, "Withdrawn"):
		return record.DecisionPtr(record.DecisionAcceptPoster)
	}
	return nil
}

// VenueLabel returns the human conference label of a venue id:
// "ICLR.cc/2025/Conference" becomes "ICLR 2025". Ids without a year yield
// the bare acronym; an empty id yields "".
func VenueLabel(venueID string) string {
	parts := strings.Split(venueID, "/")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	acronym := strings.TrimSuffix(parts[0], ".cc")
	if len(parts) > 1 && isYear(parts[1]) {
		return acronym + " " + parts[1]
	}
	return acronym
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
