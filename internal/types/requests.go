package types

import (
	"github.com/go-playground/validator/v10"
)

// CreateJobRequest is the body of POST /jobs
type CreateJobRequest struct {
	Title            string `json:"title" validate:"required,min=1"`
	Location         string `json:"location" validate:"required"`
	WorkType         string `json:"work_type" validate:"required"`
	Description      string `json:"description" validate:"required"`
	Requirements     string `json:"requirements"`
	Responsibilities string `json:"responsibilities"`
	SalaryMin        int    `json:"salary_min" validate:"gte=0"`
	SalaryMax        int    `json:"salary_max" validate:"gtefield=SalaryMin"`
	Status           string `json:"status,omitempty" validate:"omitempty,oneof=active draft closed"`
}

// UpdateJobRequest is the body of PUT /jobs/{id}. Nil fields are left unchanged.
type UpdateJobRequest struct {
	Title            *string `json:"title,omitempty" validate:"omitempty,min=1"`
	Location         *string `json:"location,omitempty"`
	WorkType         *string `json:"work_type,omitempty"`
	Description      *string `json:"description,omitempty"`
	Requirements     *string `json:"requirements,omitempty"`
	Responsibilities *string `json:"responsibilities,omitempty"`
	SalaryRange      *string `json:"salary_range,omitempty"`
	Status           *string `json:"status,omitempty" validate:"omitempty,oneof=active draft closed"`
}

// CreateApplicationRequest is the body of POST /jobs/{id}/applications
type CreateApplicationRequest struct {
	CoverLetter string `json:"cover_letter,omitempty"`
	ResumeURL   string `json:"resume_url,omitempty" validate:"omitempty,url"`
}

// UpdateApplicationStatusRequest is the body of PUT /applications/{id}/status
type UpdateApplicationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_progress accepted rejected"`
}

// Validate validates the CreateJobRequest using the validator.
func (r *CreateJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the UpdateJobRequest using the validator.
func (r *UpdateJobRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the CreateApplicationRequest using the validator.
func (r *CreateApplicationRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the UpdateApplicationStatusRequest using the validator.
func (r *UpdateApplicationStatusRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
