package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"studymate-backend/internal/models"
)

func TestCommunity_CreateListLike(t *testing.T) {
	repo := newTestStudyRepo()
	svc := NewCommunityService(repo)
	ctx := context.Background()

	first, err := svc.CreatePost(ctx, "u1", models.CreatePostRequest{Topic: "Biology", Content: "  Mitochondria is the powerhouse  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Author != defaultAuthor || first.Content != "Mitochondria is the powerhouse" {
		t.Fatalf("unexpected post %+v", first)
	}
	second, _ := svc.CreatePost(ctx, "u1", models.CreatePostRequest{Topic: "Math", Content: "Pi is irrational"})

	posts := svc.Posts(ctx, "u1")
	if len(posts) != 2 || posts[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", posts)
	}

	liked, err := svc.Like(ctx, "u1", first.ID)
	if err != nil || liked.Likes != 1 {
		t.Fatalf("expected one like, got %+v %v", liked, err)
	}

	_, err = svc.Like(ctx, "u1", "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCommunity_Validation(t *testing.T) {
	svc := NewCommunityService(newTestStudyRepo())
	for _, content := range []string{"", "   ", strings.Repeat("x", maxPostChars+1)} {
		_, err := svc.CreatePost(context.Background(), "u1", models.CreatePostRequest{Topic: "t", Content: content})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("content of %d chars: expected ValidationError, got %v", len(content), err)
		}
	}
}
