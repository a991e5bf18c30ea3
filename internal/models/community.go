package models

import "time"

type CommunityPost struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreatePostRequest struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}
