package http

import (
	"time"

	"github.com/chatrelay/chatrelay/internal/scheduler/domain"
)

// SendMessageRequest DTO for POST /api/v1/messages
type SendMessageRequest struct {
	Destination string      `json:"destination" validate:"required,min=1"`
	Content     ContentDTO  `json:"content" validate:"required"`
	Options     *OptionsDTO `json:"options,omitempty"`
	Schedule    string      `json:"schedule,omitempty"` // "YYYY-MM-DD HH:MM:SS"; empty sends immediately
}

// ContentDTO is validated here and passed to the service as an opaque blob.
type ContentDTO struct {
	Type      string  `json:"type" validate:"required,oneof=text media location"`
	Text      string  `json:"text,omitempty" validate:"required_if=Type text"`
	MediaURL  string  `json:"media_url,omitempty" validate:"required_if=Type media,omitempty,url"`
	MimeType  string  `json:"mime_type,omitempty"`
	FileName  string  `json:"file_name,omitempty"`
	Latitude  float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

type OptionsDTO struct {
	Caption    string `json:"caption,omitempty"`
	AsDocument bool   `json:"as_document,omitempty"`
}

// SendMessageResponse DTO. Exactly one of DeliveryHandle or JobID is set.
type SendMessageResponse struct {
	Sent           bool       `json:"sent"`
	Scheduled      bool       `json:"scheduled"`
	DeliveryHandle string     `json:"delivery_handle,omitempty"`
	JobID          string     `json:"job_id,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
}

// JobResponse DTO for GET /api/v1/messages/{job_id}
type JobResponse struct {
	ID          string           `json:"id"`
	Destination string           `json:"destination"`
	Status      domain.JobStatus `json:"status"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	LastError   *string          `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type GenericErrorResponse struct {
	Error string `json:"error"`
}
