package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"studymate-backend/internal/models"
	"studymate-backend/internal/repository"
)

const (
	maxPostChars  = 2000
	defaultAuthor = "Student"
)

type CommunityService struct {
	repo *repository.StudyRepo
	now  func() time.Time
}

func NewCommunityService(repo *repository.StudyRepo) *CommunityService {
	return &CommunityService{repo: repo, now: time.Now}
}

// Posts lists the feed newest first.
func (s *CommunityService) Posts(ctx context.Context, userID string) []models.CommunityPost {
	return s.repo.GetCommunityPosts(ctx, userID)
}

func (s *CommunityService) CreatePost(ctx context.Context, userID string, req models.CreatePostRequest) (*models.CommunityPost, error) {
	fields := map[string]string{}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		fields["content"] = "Content is required"
	} else if utf8.RuneCountInString(content) > maxPostChars {
		fields["content"] = "Content is too long"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	author := s.repo.GetUser(ctx, userID).Name
	if author == "" {
		author = defaultAuthor
	}
	post := models.CommunityPost{
		ID:        uuid.New().String(),
		Author:    author,
		Topic:     strings.TrimSpace(req.Topic),
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.repo.AddCommunityPost(ctx, userID, post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *CommunityService) Like(ctx context.Context, userID, postID string) (*models.CommunityPost, error) {
	post, err := s.repo.LikeCommunityPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, &NotFoundError{Message: "Post not found"}
	}
	return post, nil
}
