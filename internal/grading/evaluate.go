package grading

import "fmt"

// ItemType discriminates the closed set of gradable question variants.
type ItemType string

const (
	ItemSingleChoice   ItemType = "single_choice"
	ItemTrueFalse      ItemType = "true_false"
	ItemMultipleSelect ItemType = "multiple_select"
	ItemOrdering       ItemType = "ordering"
	ItemDragDrop       ItemType = "drag_drop"
	ItemColumnGrouping ItemType = "column_grouping"
	ItemFillBlank      ItemType = "fill_blank"
	ItemTextAction     ItemType = "text_action"
)

type ScoringMode string

const (
	ScoringExact      ScoringMode = "exact"
	ScoringSimilarity ScoringMode = "similarity"
)

// Item is one gradable question with its canonical correct answer. Which
// correct-answer field is meaningful depends on Type; the rest stay zero.
type Item struct {
	ID     string
	Type   ItemType
	Points float64

	// single_choice, true_false
	CorrectOption string
	// multiple_select
	CorrectSet []string
	// ordering
	CorrectSequence []string
	// drag_drop, column_grouping: element id -> correct placement
	CorrectPlacements map[string]string
	// fill_blank, text_action
	CorrectText   string
	ScoringMode   ScoringMode
	CaseSensitive bool
}

// Answer carries a submitted response, shaped per item type like Item. Wire
// tags match the submission payload; it is stored verbatim with the result.
type Answer struct {
	Option     string            `json:"option,omitempty"`
	Set        []string          `json:"set,omitempty"`
	Sequence   []string          `json:"sequence,omitempty"`
	Placements map[string]string `json:"placements,omitempty"`
	Text       string            `json:"text,omitempty"`
}

type Evaluation struct {
	IsCorrect    bool
	EarnedPoints float64
}

// Evaluator grades items against submitted answers. Correctness is all or
// nothing per item; partial credit exists only at category aggregation.
type Evaluator struct {
	// Cutoff for similarity-scored free text to count as correct
	similarityThreshold float64
}

func NewEvaluator(similarityThreshold float64) *Evaluator {
	return &Evaluator{similarityThreshold: similarityThreshold}
}

// Evaluate dispatches on the item variant. Unknown variants are a caller bug
// and return an error rather than a silent zero.
func (e *Evaluator) Evaluate(item Item, answer Answer) (Evaluation, error) {
	var correct bool

	switch item.Type {
	case ItemSingleChoice, ItemTrueFalse:
		correct = answer.Option == item.CorrectOption
	case ItemMultipleSelect:
		correct = setEqual(item.CorrectSet, answer.Set)
	case ItemOrdering:
		correct = sequenceEqual(item.CorrectSequence, answer.Sequence)
	case ItemDragDrop, ItemColumnGrouping:
		correct = placementsEqual(item.CorrectPlacements, answer.Placements)
	case ItemFillBlank, ItemTextAction:
		correct = e.textCorrect(item, answer.Text)
	default:
		return Evaluation{}, fmt.Errorf("unknown item type %q", item.Type)
	}

	evaluation := Evaluation{IsCorrect: correct}
	if correct {
		evaluation.EarnedPoints = item.Points
	}
	return evaluation, nil
}

func (e *Evaluator) textCorrect(item Item, submitted string) bool {
	if item.ScoringMode == ScoringSimilarity {
		return Similarity(item.CorrectText, submitted) >= e.similarityThreshold
	}

	if item.CaseSensitive {
		return submitted == item.CorrectText
	}
	return normalize(submitted) == normalize(item.CorrectText)
}

// Exact set equality. Subsets and supersets are incorrect; no partial credit
// for multiple select is an explicit policy.
func setEqual(correct, submitted []string) bool {
	if len(submitted) == 0 {
		return len(correct) == 0
	}

	want := make(map[string]struct{}, len(correct))
	for _, v := range correct {
		want[v] = struct{}{}
	}
	got := make(map[string]struct{}, len(submitted))
	for _, v := range submitted {
		got[v] = struct{}{}
	}

	if len(want) != len(got) {
		return false
	}
	for v := range want {
		if _, ok := got[v]; !ok {
			return false
		}
	}
	return true
}

func sequenceEqual(correct, submitted []string) bool {
	if len(correct) != len(submitted) {
		return false
	}
	for i := range correct {
		if correct[i] != submitted[i] {
			return false
		}
	}
	return true
}

// All placements must match; a missing or extra placement fails the item.
func placementsEqual(correct, submitted map[string]string) bool {
	if len(correct) != len(submitted) {
		return false
	}
	for element, placement := range correct {
		if submitted[element] != placement {
			return false
		}
	}
	return true
}
