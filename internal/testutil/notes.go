package testutil

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Note builders in the OpenReview API v2 shape, where every content field is
// wrapped as {"value": ...}.

// SubmissionNote builds a submission note. venue is the content.venue
// string; empty omits it.
func SubmissionNote(venueID, id string, number int, title, venue string) json.RawMessage {
	content := map[string]interface{}{
		"title":        wrap(title),
		"abstract":     wrap("Abstract of " + title),
		"keywords":     wrap([]string{"machine learning"}),
		"primary_area": wrap("general machine learning"),
	}
	if venue != "" {
		content["venue"] = wrap(venue)
		content["venueid"] = wrap(venueID)
	}
	return mustJSON(map[string]interface{}{
		"id":          id,
		"forum":       id,
		"number":      number,
		"cdate":       int64(1727000000000) + int64(number),
		"tmdate":      int64(1727000000000) + int64(number),
		"invitations": []string{venueID + "/-/Submission"},
		"content":     content,
	})
}

// ReviewNote builds an official review note signed by reviewer.
func ReviewNote(venueID, forum string, number int, id, reviewer string, rating, confidence int, tmdate int64) json.RawMessage {
	prefix := fmt.Sprintf("%s/Submission%d", venueID, number)
	return mustJSON(map[string]interface{}{
		"id":          id,
		"forum":       forum,
		"replyto":     forum,
		"cdate":       tmdate,
		"tmdate":      tmdate,
		"invitations": []string{prefix + "/-/Official_Review"},
		"signatures":  []string{prefix + "/Reviewer_" + reviewer},
		"content": map[string]interface{}{
			"rating":       wrap(strconv.Itoa(rating) + ": marginally above the acceptance threshold"),
			"confidence":   wrap(confidence),
			"soundness":    wrap(3),
			"presentation": wrap(2),
			"contribution": wrap(3),
			"summary":      wrap("Summary by " + reviewer),
			"strengths":    wrap("Strengths"),
			"weaknesses":   wrap("Weaknesses"),
			"questions":    wrap("Questions"),
		},
	})
}

// LegacyReviewNote builds a review in the older, unwrapped layout that
// names its score "recommendation" and carries the reviewer in "writers".
func LegacyReviewNote(forum, id, reviewer string, recommendation int, tmdate int64) json.RawMessage {
	return mustJSON(map[string]interface{}{
		"id":         id,
		"forum":      forum,
		"replyto":    forum,
		"tmdate":     tmdate,
		"invitation": "Legacy/-/Review",
		"writers":    []string{"Legacy/Reviewer_" + reviewer},
		"content": map[string]interface{}{
			"recommendation": recommendation,
			"review":         "Legacy review text",
		},
	})
}

// DecisionNote builds a program chairs decision note.
func DecisionNote(venueID, forum string, number int, decision string) json.RawMessage {
	return mustJSON(map[string]interface{}{
		"id":          forum + "-decision",
		"forum":       forum,
		"replyto":     forum,
		"tmdate":      int64(1737000000000),
		"invitations": []string{fmt.Sprintf("%s/Submission%d/-/Decision", venueID, number)},
		"signatures":  []string{venueID + "/Program_Chairs"},
		"content": map[string]interface{}{
			"decision": wrap(decision),
		},
	})
}

func wrap(v interface{}) map[string]interface{} {
	return map[string]interface{}{"value": v}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
