package normalize

import (
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
)

// SplitForum partitions the notes of a submission's forum into review notes
// and the decision note (nil when there is none). The submission note itself
// and other replies (comments, meta-reviews, rebuttals) are dropped. When a
// forum carries several decision notes the most recently modified one wins.
func (n *Normalizer) SplitForum(submissionID string, notes []json.RawMessage) (reviews []json.RawMessage, decision json.RawMessage) {
	var decisionAt int64 = -1

	for _, note := range notes {
		if id, _ := jsonparser.GetString(note, "id"); id == submissionID {
			continue
		}

		invitations := n.listField(note, FieldInvitations)
		switch {
		case isDecision(invitations) || (len(invitations) == 0 && n.has(note, FieldDecision)):
			modified := n.timeField(note, FieldModified).UnixMilli()
			if modified >= decisionAt {
				decision, decisionAt = note, modified
			}
		case isReview(invitations):
			reviews = append(reviews, note)
		case len(invitations) == 0 && n.intField(note, FieldRating) != nil:
			reviews = append(reviews, note)
		}
	}
	return reviews, decision
}

func (n *Normalizer) has(note []byte, f Field) bool {
	_, ok := lookup(note, n.fields.Candidates(f))
	return ok
}

func isDecision(invitations []string) bool {
	for _, inv := range invitations {
		if strings.HasSuffix(inv, "/Decision") {
			return true
		}
	}
	return false
}

func isReview(invitations []string) bool {
	for _, inv := range invitations {
		if strings.HasSuffix(inv, "Official_Review") ||
			(strings.HasSuffix(inv, "/Review") && !strings.HasSuffix(inv, "Meta_Review")) {
			return true
		}
	}
	return false
}
