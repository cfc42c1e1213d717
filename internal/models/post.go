package models

import "time"

type Comment struct {
	ID        string
	Text      string
	PostedBy  UserRef
	CreatedAt time.Time
}

type Post struct {
	ID        string
	Title     string
	Body      string
	PostedBy  UserRef
	PhotoKey  *string
	PhotoType *string
	Likes     []string
	Comments  []Comment
	CreatedAt time.Time
	UpdatedAt time.Time
}
