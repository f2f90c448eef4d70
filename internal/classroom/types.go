package classroom

// Wire types for the remote classroom API. Optional numeric fields are
// pointers so "absent" survives decoding; defaults are the reconciler's
// concern, not this package's.

type Course struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Section     string `json:"section,omitempty"`
	CourseState string `json:"courseState,omitempty"`
}

// DueDate is the structured year/month/day the remote API returns. A zero
// component means the remote left it unset.
type DueDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type CourseWork struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	MaxPoints *float64 `json:"maxPoints,omitempty"`
	DueDate   *DueDate `json:"dueDate,omitempty"`
	State     string   `json:"state,omitempty"`
	WorkType  string   `json:"workType,omitempty"`
}

type StudentSubmission struct {
	ID            string   `json:"id"`
	UserID        string   `json:"userId"`
	AssignedGrade *float64 `json:"assignedGrade,omitempty"`
	State         string   `json:"state,omitempty"`
	Late          bool     `json:"late,omitempty"`
}

type coursesResponse struct {
	Courses       []Course `json:"courses"`
	NextPageToken string   `json:"nextPageToken"`
}

type courseWorkResponse struct {
	CourseWork    []CourseWork `json:"courseWork"`
	NextPageToken string       `json:"nextPageToken"`
}

type submissionsResponse struct {
	StudentSubmissions []StudentSubmission `json:"studentSubmissions"`
	NextPageToken      string              `json:"nextPageToken"`
}
