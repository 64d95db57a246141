package catalog

import "time"

// Difficulty ranks an exercise.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Exercise is a practice problem: the learner edits StarterCode until the
// program prints ExpectedOutput.
type Exercise struct {
	ID             string     `yaml:"id" json:"id"`
	Title          string     `yaml:"title" json:"title"`
	Description    string     `yaml:"description" json:"description"`
	StarterCode    string     `yaml:"starterCode" json:"starter_code"`
	ExpectedOutput string     `yaml:"expectedOutput" json:"expected_output"`
	Difficulty     Difficulty `yaml:"difficulty" json:"difficulty"`
	Tags           []string   `yaml:"tags" json:"tags"`
	CreatedAt      time.Time  `yaml:"createdAt" json:"created_at"`
}

// Summary is the list view of an exercise.
type Summary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	Tags       []string   `json:"tags"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Summary drops the code and expected output.
func (e *Exercise) Summary() Summary {
	return Summary{
		ID:         e.ID,
		Title:      e.Title,
		Difficulty: e.Difficulty,
		Tags:       e.Tags,
		CreatedAt:  e.CreatedAt,
	}
}
