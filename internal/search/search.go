package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultHabit   ResultType = "habit"
	ResultRoutine ResultType = "routine"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	TimeOfDay string     `json:"timeOfDay,omitempty"`
	IsActive  bool       `json:"isActive"`
}

// Query describes a search request. UserID is never optional: all search
// data is per-account and a hit must never leak across accounts.
type Query struct {
	Text       string
	UserID     string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexHabit(h HabitRecord) error
	IndexRoutine(r RoutineRecord) error
	DeleteHabit(id string) error
	DeleteRoutine(id string) error
}

// HabitRecord is the data we index for a habit.
type HabitRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Title    string `json:"title"`
	IsActive bool   `json:"isActive"`
}

// RoutineRecord is the data we index for a routine.
type RoutineRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	TimeOfDay string `json:"timeOfDay"`
	IsActive  bool   `json:"isActive"`
}
