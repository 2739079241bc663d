package domain

// Question is a single question/answer pair in the bank.
type Question struct {
	ID           string `json:"id" yaml:"id" validate:"required,max=64"`
	Question     string `json:"question" yaml:"question" validate:"max=20000"`
	Answer       string `json:"answer" yaml:"answer" validate:"max=100000"`
	ShowInReview bool   `json:"showInReview" yaml:"showInReview"`
}

// IsVacuous reports whether both the question and the answer are empty.
// Vacuous records are never returned when the collection is read back.
func (q Question) IsVacuous() bool {
	return q.Question == "" && q.Answer == ""
}

// Visible returns the questions that take part in review, preserving order.
func Visible(qs []Question) []Question {
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		if q.ShowInReview {
			out = append(out, q)
		}
	}
	return out
}
