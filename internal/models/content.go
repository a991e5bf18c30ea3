package models

import "time"

type InputType string

const (
	InputText         InputType = "text"
	InputImage        InputType = "image"
	InputAudio        InputType = "audio"
	InputVideo        InputType = "video"
	InputYouTube      InputType = "youtube"
	InputDocument     InputType = "document"
	InputVideoLecture InputType = "videolecture"
)

func (t InputType) Valid() bool {
	switch t {
	case InputText, InputImage, InputAudio, InputVideo, InputYouTube, InputDocument, InputVideoLecture:
		return true
	}
	return false
}

// FileBearing reports whether the input carries an uploaded file.
func (t InputType) FileBearing() bool {
	return t == InputAudio || t == InputDocument || t == InputVideo
}

// InputContent is the user's original submission, echoed back with every
// generation response and kept in input history.
type InputContent struct {
	Type     InputType     `json:"type"`
	Content  string        `json:"content"`
	Metadata InputMetadata `json:"metadata"`
}

type InputMetadata struct {
	OutputLanguage string `json:"outputLanguage"`
	Title          string `json:"title,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileSize       int64  `json:"fileSize,omitempty"`
	DocumentType   string `json:"documentType,omitempty"`
	AIPrompt       string `json:"aiPrompt,omitempty"`
	VideoID        string `json:"videoId,omitempty"`
	WordCount      int    `json:"wordCount,omitempty"`
}

type InputHistoryEntry struct {
	ID        string    `json:"id"`
	Type      InputType `json:"type"`
	Content   string    `json:"content"`
	Topic     string    `json:"topic"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

type YouTubeMetadata struct {
	VideoID         string `json:"video_id"`
	Title           string `json:"title"`
	ChannelName     string `json:"channel_name"`
	ThumbnailURL    string `json:"thumbnail_url"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Video is one item of the channel listing endpoints.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
}

type VideoPage struct {
	Items         []Video `json:"items"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}
