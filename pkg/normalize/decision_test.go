package normalize

import (
	"testing"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/record"
)

func TestDecisionFromVenue(t *testing.T) {
	tests := []struct {
		venue    string
		venueID  string
		expected record.Decision
		dtype    record.DecisionType
	}{
		{"ICLR 2025 Oral", "ICLR.cc/2025/Conference", record.DecisionAcceptOral, record.DecisionTypeAccept},
		{"ICLR 2025 Spotlight", "ICLR.cc/2025/Conference", record.DecisionAcceptSpotlight, record.DecisionTypeAccept},
		{"ICLR 2025 Poster", "ICLR.cc/2025/Conference", record.DecisionAcceptPoster, record.DecisionTypeAccept},
		{"Submitted to ICLR 2025", "ICLR.cc/2025/Conference/Rejected_Submission", record.DecisionReject, record.DecisionTypeReject},
		{"ICLR 2025 Conference Withdrawn Submission", "ICLR.cc/2025/Conference/Withdrawn_Submission", record.DecisionWithdrawn, record.DecisionTypeWithdrawn},
		{"ICLR 2025 Conference Desk Rejected Submission", "ICLR.cc/2025/Conference/Desk_Rejected_Submission", record.DecisionDeskReject, record.DecisionTypeReject},
		{"ICLR 2025", "ICLR.cc/2025/Conference", record.DecisionAcceptPoster, record.DecisionTypeAccept},
		{"ICLR 2024 oral", "ICLR.cc/2024/Conference/Oral", record.DecisionAcceptOral, record.DecisionTypeAccept},
	}

	for _, tt := range tests {
		t.Run(tt.venue, func(t *testing.T) {
			got := DecisionFromVenue(tt.venue, tt.venueID, VenueLabel(tt.venueID))
			if got == nil {
				t.Fatalf("DecisionFromVenue(%q, %q) = nil, want %q", tt.venue, tt.venueID, tt.expected)
			}
			if *got != tt.expected {
				t.Errorf("DecisionFromVenue(%q, %q) = %q, want %q", tt.venue, tt.venueID, *got, tt.expected)
			}
			if got.Type() != tt.dtype {
				t.Errorf("Type() = %q, want %q", got.Type(), tt.dtype)
			}
		})
	}
}

func TestDecisionFromVenue_Pending(t *testing.T) {
	tests := []struct {
		name    string
		venue   string
		venueID string
	}{
		{"no venue", "", ""},
		{"under review", "ICLR 2025 Conference Submission", "ICLR.cc/2025/Conference/Submission"},
		{"other conference", "NeurIPS 2024", "NeurIPS.cc/2024/Conference"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecisionFromVenue(tt.venue, tt.venueID, "ICLR 2025"); got != nil {
				t.Errorf("DecisionFromVenue() = %q, want nil", *got)
			}
		})
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		text     string
		expected *record.Decision
	}{
		{"Accept (Oral)", record.DecisionPtr(record.DecisionAcceptOral)},
		{"Accept (Spotlight)", record.DecisionPtr(record.DecisionAcceptSpotlight)},
		{"Accept (Poster)", record.DecisionPtr(record.DecisionAcceptPoster)},
		{"Accept: poster", record.DecisionPtr(record.DecisionAcceptPoster)},
		{"Accept (notable-top-5%)", record.DecisionPtr(record.DecisionAcceptOral)},
		{"Accept (notable-top-25%)", record.DecisionPtr(record.DecisionAcceptSpotlight)},
		{"Reject", record.DecisionPtr(record.DecisionReject)},
		{"Desk Reject", record.DecisionPtr(record.DecisionDeskReject)},
		{"Withdrawn", record.DecisionPtr(record.DecisionWithdrawn)},
		{"", nil},
		{"Pending", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ParseDecision(tt.text)
			switch {
			case got == nil && tt.expected == nil:
			case got == nil || tt.expected == nil:
				t.Errorf("ParseDecision(%q) = %v, want %v", tt.text, got, tt.expected)
			case *got != *tt.expected:
				t.Errorf("ParseDecision(%q) = %q, want %q", tt.text, *got, *tt.expected)
			}
		})
	}
}

func TestVenueLabel(t *testing.T) {
	tests := []struct {
		venueID string
		want    string
	}{
		{"ICLR.cc/2025/Conference", "ICLR 2025"},
		{"ICLR.cc/2025/Conference/Rejected_Submission", "ICLR 2025"},
		{"NeurIPS.cc/2023/Conference", "NeurIPS 2023"},
		{"TMLR", "TMLR"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := VenueLabel(tt.venueID); got != tt.want {
			t.Errorf("VenueLabel(%q) = %q, want %q", tt.venueID, got, tt.want)
		}
	}
}
