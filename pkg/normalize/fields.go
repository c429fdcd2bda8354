package normalize

// Field names a logical value the normalizer extracts from a note.
type Field string

// Submission fields.
const (
	FieldNumber      Field = "number"
	FieldTitle       Field = "title"
	FieldAbstract    Field = "abstract"
	FieldKeywords    Field = "keywords"
	FieldPrimaryArea Field = "primary_area"
	FieldVenue       Field = "venue"
	FieldVenueID     Field = "venueid"
)

// Review fields.
const (
	FieldReviewer     Field = "reviewer"
	FieldRating       Field = "rating"
	FieldConfidence   Field = "confidence"
	FieldSoundness    Field = "soundness"
	FieldPresentation Field = "presentation"
	FieldContribution Field = "contribution"
	FieldSummary      Field = "summary"
	FieldStrengths    Field = "strengths"
	FieldWeaknesses   Field = "weaknesses"
	FieldQuestions    Field = "questions"
)

// Fields shared by every note.
const (
	FieldCreated     Field = "created"
	FieldModified    Field = "modified"
	FieldInvitations Field = "invitations"
	FieldDecision    Field = "decision"
)

// Path is a jsonparser key path; "[n]" addresses an array element.
type Path []string

// FieldTable maps each logical field to its prioritized path candidates.
// The first candidate present in a note wins.
type FieldTable struct {
	Version string
	Fields  map[Field][]Path
}

// Candidates returns the paths tried for f.
func (t FieldTable) Candidates(f Field) []Path {
	return t.Fields[f]
}

// Extend returns a copy of t with extra candidates appended after the
// existing ones for each field.
func (t FieldTable) Extend(version string, extra map[Field][]Path) FieldTable {
	out := FieldTable{Version: version, Fields: make(map[Field][]Path, len(t.Fields))}
	for f, paths := range t.Fields {
		out.Fields[f] = append([]Path(nil), paths...)
	}
	for f, paths := range extra {
		out.Fields[f] = append(out.Fields[f], paths...)
	}
	return out
}

func content(key string) Path {
	return Path{"content", key}
}

// FieldsV2 covers the OpenReview API v2 note layout (ICLR 2024 onward),
// where content values are wrapped as {"value": ...}.
var FieldsV2 = FieldTable{
	Version: "openreview-v2",
	Fields: map[Field][]Path{
		FieldNumber:      {{"number"}},
		FieldTitle:       {content("title")},
		FieldAbstract:    {content("abstract")},
		FieldKeywords:    {content("keywords")},
		FieldPrimaryArea: {content("primary_area")},
		FieldVenue:       {content("venue")},
		FieldVenueID:     {content("venueid"), {"domain"}},

		FieldReviewer:     {{"signatures", "[0]"}},
		FieldRating:       {content("rating")},
		FieldConfidence:   {content("confidence")},
		FieldSoundness:    {content("soundness")},
		FieldPresentation: {content("presentation")},
		FieldContribution: {content("contribution")},
		FieldSummary:      {content("summary")},
		FieldStrengths:    {content("strengths")},
		FieldWeaknesses:   {content("weaknesses")},
		FieldQuestions:    {content("questions")},

		FieldCreated:     {{"cdate"}, {"tcdate"}},
		FieldModified:    {{"tmdate"}, {"mdate"}},
		FieldInvitations: {{"invitations"}},
		FieldDecision:    {content("decision")},
	},
}

// FieldsLegacy adds the older unwrapped layouts (API v1 and pre-2023
// review forms) after the v2 candidates.
var FieldsLegacy = FieldsV2.Extend("openreview-v2+legacy", map[Field][]Path{
	FieldPrimaryArea: {content("research_area"), content("subject_areas")},
	FieldVenueID:     {content("venue_id")},

	FieldReviewer:     {{"writers", "[0]"}},
	FieldRating:       {content("recommendation"), content("overall_rating"), content("score")},
	FieldPresentation: {content("clarity")},
	FieldContribution: {content("significance")},
	FieldSummary:      {content("summary_of_the_paper"), content("review")},
	FieldStrengths:    {content("strengths_and_weaknesses"), content("main_review")},
	FieldQuestions:    {content("clarification_questions")},

	FieldCreated:     {{"odate"}},
	FieldModified:    {{"tcdate"}},
	FieldInvitations: {{"invitation"}},
})

// DefaultFields is the table used when none is configured.
var DefaultFields = FieldsLegacy
