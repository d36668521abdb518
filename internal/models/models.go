package models

import "time"

type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Credits      int       `json:"credits"`
	IsVIP        bool      `json:"isVip"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Post struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"userEmail"`
	Platform  string    `json:"platform"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostSummary is a history row: the full content is only returned by the single-post view.
type PostSummary struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	Title     string    `json:"title"`
	Teaser    string    `json:"teaser"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachment is the single optional binary sent along with the prompt.
type Attachment struct {
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

type GenerationRequest struct {
	Channel    string      `json:"channel"`
	Audience   string      `json:"audience"`
	Goal       string      `json:"goal"`
	Tone       string      `json:"tone"`
	Context    string      `json:"context"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

type GenerationResult struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ParseStatus string `json:"parseStatus"`
}
