package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccessToken is an opaque bearer token issued at login.
type AccessToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// MaxChoices bounds the number of choices a question may carry (letters A..Z).
const MaxChoices = 26

// ChoiceLetter returns the answer letter for a zero-based choice index.
func ChoiceLetter(index int) string {
	return string(rune('A' + index))
}

// Question is the canonical multiple-choice question used by activity sessions.
// Choice order is significant: answers are compared by index only.
type Question struct {
	ID                 string   `json:"id"`
	Prompt             string   `json:"prompt"`
	Choices            []string `json:"choices"`
	CorrectChoiceIndex int      `json:"correct_choice_index"`
	SubjectLabel       string   `json:"subject_label"`
	// AnswerDefaulted is set when the source carried no resolvable correct
	// letter and CorrectChoiceIndex fell back to 0.
	AnswerDefaulted bool `json:"answer_defaulted,omitempty"`
}

// Alternative is one lettered choice in a generated question.
type Alternative struct {
	Text   string `json:"text"`
	Letter string `json:"letter"`
}

// GeneratedBody is the question payload of a generation-service record.
type GeneratedBody struct {
	Statement     string        `json:"statement"`
	Alternatives  []Alternative `json:"alternatives"`
	CorrectAnswer string        `json:"correct_answer"`
}

// GeneratedQuestion is the raw record shape returned by the generation service.
type GeneratedQuestion struct {
	ID         string        `json:"id"`
	Available  bool          `json:"available"`
	SubjectID  string        `json:"subject_id"`
	Difficulty Difficulty    `json:"difficulty"`
	Question   GeneratedBody `json:"question"`
}

// StoredQuestion is a four-option question row from the question bank.
type StoredQuestion struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id"`
	QuestionText  string     `json:"question_text"`
	OptionA       string     `json:"option_a"`
	OptionB       string     `json:"option_b"`
	OptionC       string     `json:"option_c"`
	OptionD       string     `json:"option_d"`
	CorrectAnswer string     `json:"correct_answer"`
	Difficulty    Difficulty `json:"difficulty"`
	Source        string     `json:"source,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Subject is a school subject questions are grouped under.
type Subject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Activity is a stored, named set of questions a teacher assigns to students.
type Activity struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnswerRecord is the in-memory log entry for one committed answer.
type AnswerRecord struct {
	QuestionID   string `json:"question_id"`
	ChosenIndex  int    `json:"chosen_index"`
	ChosenLetter string `json:"chosen_letter"`
	IsCorrect    bool   `json:"is_correct"`
}

// SubmissionStatus represents the review status of a submission.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusGraded  SubmissionStatus = "graded"
)

// Submission is the durable record of one student's attempt at an activity.
type Submission struct {
	ID          string           `json:"id"`
	ActivityID  string           `json:"activity_id"`
	StudentID   string           `json:"student_id"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Status      SubmissionStatus `json:"status"`
	Score       *float64         `json:"score"`
	Feedback    *string          `json:"feedback"`
}

// StudentAnswer is the durable form of an AnswerRecord.
type StudentAnswer struct {
	SubmissionID   string `json:"submission_id"`
	QuestionID     string `json:"question_id"`
	SelectedAnswer string `json:"selected_answer"`
	IsCorrect      bool   `json:"is_correct"`
}

// PendingSubmission joins a submission with the activity and student it belongs to.
type PendingSubmission struct {
	Submission
	ActivityTitle       string `json:"activity_title"`
	ActivityDescription string `json:"activity_description"`
	StudentName         string `json:"student_name"`
}

// SubmissionResult is one submission with its answers, ready for export.
type SubmissionResult struct {
	PendingSubmission
	Answers      []StudentAnswer `json:"answers"`
	CorrectCount int             `json:"correct_count"`
	Attempt      int             `json:"attempt"`
}

// ClassroomExport is the top-level JSON document written by the export command.
type ClassroomExport struct {
	ExportedAt  time.Time          `json:"exported_at"`
	Submissions []SubmissionResult `json:"submissions"`
}
