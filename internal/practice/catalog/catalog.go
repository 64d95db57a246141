package catalog

import (
	"sort"
	"strings"

	appErr "codelab/pkg/errors"
)

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	Difficulty Difficulty
	Tag        string
	// Query matches title, description or any tag, case-insensitively.
	Query string
}

// Stats counts exercises per difficulty.
type Stats struct {
	Total  int `json:"total"`
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// Catalog is an immutable, validated set of exercises ordered by creation
// time. It is safe for concurrent use.
type Catalog struct {
	exercises []*Exercise
	byID      map[string]*Exercise
}

// New validates exercises and builds a catalog from them.
func New(exercises []*Exercise) (*Catalog, error) {
	c := &Catalog{
		exercises: make([]*Exercise, 0, len(exercises)),
		byID:      make(map[string]*Exercise, len(exercises)),
	}
	for i, ex := range exercises {
		if ex == nil {
			return nil, appErr.Newf(appErr.CatalogInvalid, "exercise #%d is empty", i+1)
		}
		if err := validate(ex); err != nil {
			return nil, err
		}
		if _, dup := c.byID[ex.ID]; dup {
			return nil, appErr.Newf(appErr.CatalogInvalid, "duplicate exercise id %q", ex.ID)
		}
		c.byID[ex.ID] = ex
		c.exercises = append(c.exercises, ex)
	}
	sort.SliceStable(c.exercises, func(i, j int) bool {
		return c.exercises[i].CreatedAt.Before(c.exercises[j].CreatedAt)
	})
	return c, nil
}

func validate(ex *Exercise) error {
	if strings.TrimSpace(ex.ID) == "" {
		return appErr.New(appErr.CatalogInvalid).WithMessage("exercise id is required")
	}
	if strings.TrimSpace(ex.Title) == "" {
		return appErr.Newf(appErr.CatalogInvalid, "exercise %q has no title", ex.ID)
	}
	if ex.Difficulty == "" {
		ex.Difficulty = DifficultyEasy
	}
	if !ex.Difficulty.Valid() {
		return appErr.Newf(appErr.CatalogInvalid, "exercise %q has unknown difficulty %q", ex.ID, ex.Difficulty)
	}
	if strings.TrimSpace(ex.ExpectedOutput) == "" {
		return appErr.Newf(appErr.ExpectedOutputEmpty, "exercise %q has no expected output", ex.ID).
			WithDetail("exercise_id", ex.ID)
	}
	return nil
}

// Get returns the exercise with id.
func (c *Catalog) Get(id string) (*Exercise, error) {
	ex, ok := c.byID[id]
	if !ok {
		return nil, appErr.Newf(appErr.ExerciseNotFound, "exercise %q not found", id)
	}
	return ex, nil
}

// List returns the exercises matching f.
func (c *Catalog) List(f Filter) []*Exercise {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]*Exercise, 0, len(c.exercises))
	for _, ex := range c.exercises {
		if f.Difficulty != "" && ex.Difficulty != f.Difficulty {
			continue
		}
		if f.Tag != "" && !hasTag(ex, f.Tag) {
			continue
		}
		if query != "" && !matches(ex, query) {
			continue
		}
		out = append(out, ex)
	}
	return out
}

// Len returns the number of exercises.
func (c *Catalog) Len() int {
	return len(c.exercises)
}

// Stats counts the whole catalog per difficulty.
func (c *Catalog) Stats() Stats {
	s := Stats{Total: len(c.exercises)}
	for _, ex := range c.exercises {
		switch ex.Difficulty {
		case DifficultyEasy:
			s.Easy++
		case DifficultyMedium:
			s.Medium++
		case DifficultyHard:
			s.Hard++
		}
	}
	return s
}

func hasTag(ex *Exercise, tag string) bool {
	for _, t := range ex.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func matches(ex *Exercise, query string) bool {
	if strings.Contains(strings.ToLower(ex.Title), query) ||
		strings.Contains(strings.ToLower(ex.Description), query) {
		return true
	}
	for _, t := range ex.Tags {
		if strings.Contains(strings.ToLower(t), query) {
			return true
		}
	}
	return false
}
