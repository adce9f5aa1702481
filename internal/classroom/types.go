package classroom

// Roles accepted by enrollment and invitation calls.
const (
	RoleStudent = "STUDENT"
	RoleTeacher = "TEACHER"
)

// Date is the remote platform's calendar date structure.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// TimeOfDay is the remote platform's clock time structure.
type TimeOfDay struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// CourseRequest is the body for course create/patch calls.
type CourseRequest struct {
	Name               string `json:"name,omitempty"`
	Section            string `json:"section,omitempty"`
	DescriptionHeading string `json:"descriptionHeading,omitempty"`
	Description        string `json:"description,omitempty"`
	OwnerID            string `json:"ownerId,omitempty"`
	CourseState        string `json:"courseState,omitempty"`
}

// Course is a remote classroom course.
type Course struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Section            string `json:"section,omitempty"`
	DescriptionHeading string `json:"descriptionHeading,omitempty"`
	Description        string `json:"description,omitempty"`
	CourseState        string `json:"courseState,omitempty"`
}

// Topic is a remote classroom topic.
type Topic struct {
	CourseID string `json:"courseId"`
	TopicID  string `json:"topicId"`
	Name     string `json:"name"`
}

// CourseWorkRequest is the body for coursework create/patch calls.
type CourseWorkRequest struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	WorkType    string     `json:"workType,omitempty"`
	State       string     `json:"state,omitempty"`
	TopicID     string     `json:"topicId,omitempty"`
	MaxPoints   float64    `json:"maxPoints,omitempty"`
	DueDate     *Date      `json:"dueDate,omitempty"`
	DueTime     *TimeOfDay `json:"dueTime,omitempty"`
}

// CourseWork is a remote classroom assignment.
type CourseWork struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	Title    string `json:"title"`
	TopicID  string `json:"topicId,omitempty"`
	State    string `json:"state,omitempty"`
}

// Enrollment is a remote course membership (student or teacher).
type Enrollment struct {
	CourseID string `json:"courseId"`
	UserID   string `json:"userId"`
}

// Invitation is a pending invite for an account not yet in the directory.
type Invitation struct {
	ID       string `json:"id"`
	CourseID string `json:"courseId"`
	UserID   string `json:"userId"`
	Role     string `json:"role"`
}
