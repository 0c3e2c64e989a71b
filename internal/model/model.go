package model

import (
	"sort"
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

type Category string

const (
	CategoryAnnouncement Category = "announcement"
	CategoryMaterial     Category = "material"
	CategoryQuestion     Category = "question"
	CategoryAssignment   Category = "assignment"
)

type Status string

const (
	StatusPublished Status = "published"
	StatusDraft     Status = "draft"
	StatusArchived  Status = "archived"
)

type Attachment struct {
	Name string `json:"name" bson:"name"`
	URL  string `json:"url" bson:"url"`
	Type string `json:"type" bson:"type"`
}

type Post struct {
	ID          string       `json:"_id"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Author      string       `json:"author"`
	AuthorName  string       `json:"authorName"`
	AuthorRole  Role         `json:"authorRole"`
	Category    Category     `json:"category"`
	Tags        []string     `json:"tags"`
	Attachments []Attachment `json:"attachments"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

func (c Category) Valid() bool {
	switch c {
	case CategoryAnnouncement, CategoryMaterial, CategoryQuestion, CategoryAssignment:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPublished, StatusDraft, StatusArchived:
		return true
	}
	return false
}

// Normalize applies the document defaults: trimmed title, empty tag and
// attachment lists, and the published status.
func (p *Post) Normalize() {
	p.Title = strings.TrimSpace(p.Title)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	if p.Status == "" {
		p.Status = StatusPublished
	}
}

// Validate reports every field that breaks the post invariants.
func (p Post) Validate() error {
	fields := map[string]string{}
	required := map[string]string{
		"title":      strings.TrimSpace(p.Title),
		"content":    p.Content,
		"author":     p.Author,
		"authorName": p.AuthorName,
		"authorRole": string(p.AuthorRole),
		"category":   string(p.Category),
	}
	for name, value := range required {
		if value == "" {
			fields[name] = "required"
		}
	}
	if p.AuthorRole != "" && !p.AuthorRole.Valid() {
		fields["authorRole"] = "invalid value " + quote(string(p.AuthorRole))
	}
	if p.Category != "" && !p.Category.Valid() {
		fields["category"] = "invalid value " + quote(string(p.Category))
	}
	if p.Status != "" && !p.Status.Valid() {
		fields["status"] = "invalid value " + quote(string(p.Status))
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "post validation failed: " + strings.Join(parts, ", ")
}

func quote(value string) string {
	return "\"" + value + "\""
}
