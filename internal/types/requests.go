package types

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// UploadRequest carries the identity fields sent with a resume upload
type UploadRequest struct {
	Filename  string `json:"filename" validate:"required"`
	UserEmail string `json:"user_email" validate:"required,email"`
	UserName  string `json:"user_name"`
}

// OptimizeRequest starts the full agent pipeline
type OptimizeRequest struct {
	ResumeID       string `json:"resume_id" validate:"required"`
	JobDescription string `json:"job_description" validate:"required"`
}

// GradeRequest asks the grader to score an interview answer
type GradeRequest struct {
	Question    string `json:"question" validate:"required"`
	UserAnswer  string `json:"user_answer" validate:"required"`
	ModelAnswer string `json:"model_answer"`
	Category    string `json:"category"`
}

// ChatRequest is one chat turn. SessionID is absent on the first turn.
type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id,omitempty"`
	ResumeID  string `json:"resume_id,omitempty"`
}

// QuestionsRequest regenerates interview questions for a resume
type QuestionsRequest struct {
	ResumeID       string `json:"resume_id" validate:"required"`
	JobDescription string `json:"job_description" validate:"required"`
}

// LinkedInRequest regenerates the ghostwriter post in a given tone
type LinkedInRequest struct {
	ResumeID string `json:"resume_id" validate:"required"`
	Tone     string `json:"tone"`
}

// Validate validates the UploadRequest using the validator.
func (r *UploadRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the OptimizeRequest using the validator.
func (r *OptimizeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the GradeRequest using the validator.
func (r *GradeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the ChatRequest using the validator.
func (r *ChatRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the QuestionsRequest using the validator.
func (r *QuestionsRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the LinkedInRequest using the validator.
func (r *LinkedInRequest) Validate() error {
	return validate.Struct(r)
}
