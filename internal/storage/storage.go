package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorandom/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrProfileNotFound is returned when a profile lookup misses. The matcher
// treats a vanished partner as "no partner found" and keeps searching.
var ErrProfileNotFound = errors.New("profile not found")

// Storage is the durable side of the system: profiles, session audit rows,
// message history and moderation records. Live pairing state never lives here.
type Storage interface {
	GetProfile(ctx context.Context, uid string) (*models.Profile, error)
	SaveUserIfNotExists(ctx context.Context, uid string) (*models.User, error)
	SaveUserInterests(ctx context.Context, uid string, interests []string) error

	SaveSession(ctx context.Context, rec *models.SessionRecord) error
	CloseSession(ctx context.Context, sessionID string) error
	GetSessionRecord(ctx context.Context, sessionID string) (*models.SessionRecord, error)

	SaveMessage(ctx context.Context, msg *models.ChatHistory) error
	GetChatHistory(ctx context.Context, sessionID string) ([]models.ChatHistory, error)

	SaveReport(ctx context.Context, r *models.Report) error
	OpenReports(ctx context.Context) ([]models.Report, error)
	ResolveReport(ctx context.Context, reportID, status string) error

	BlockUser(ctx context.Context, blockerID, blockedID string) error
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}

// Service implements Storage on PostgreSQL via GORM.
type Service struct {
	DB *gorm.DB
}

func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

func (s *Service) GetProfile(ctx context.Context, uid string) (*models.Profile, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "id = ?", uid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return &models.Profile{
		UID:       user.ID,
		Username:  user.Username,
		Avatar:    user.Avatar,
		Interests: user.Interests,
	}, nil
}

func (s *Service) SaveUserIfNotExists(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	result := s.DB.WithContext(ctx).
		Where("id = ?", uid).
		FirstOrCreate(&user, models.User{ID: uid})
	if result.Error != nil {
		log.Printf("ERROR: Failed to save user %s on first contact: %v", uid, result.Error)
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("INFO: New user %s saved to database.", uid)
	}
	return &user, nil
}

func (s *Service) SaveUserInterests(ctx context.Context, uid string, interests []string) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", uid).
		Update("interests", pq.StringArray(interests)).Error
}

func (s *Service) SaveSession(ctx context.Context, rec *models.SessionRecord) error {
	return s.DB.WithContext(ctx).Save(rec).Error
}

// CloseSession marks the audit row retired.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	return s.DB.WithContext(ctx).Model(&models.SessionRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  gorm.Expr("NOW()"),
		}).Error
}

func (s *Service) GetSessionRecord(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.DB.WithContext(ctx).First(&rec, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("session not found")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatHistory) error {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for session %s: %v", msg.SessionID, err)
		return err
	}
	return nil
}

func (s *Service) GetChatHistory(ctx context.Context, sessionID string) ([]models.ChatHistory, error) {
	var history []models.ChatHistory
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Find(&history).Error
	if err != nil {
		log.Printf("ERROR: Failed to get chat history for session %s: %v", sessionID, err)
		return nil, err
	}
	return history, nil
}

func (s *Service) SaveReport(ctx context.Context, r *models.Report) error {
	if r.ReportID == "" {
		r.ReportID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = "new"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if err := s.DB.WithContext(ctx).Create(r).Error; err != nil {
		log.Printf("ERROR: Failed to save report for session %s: %v", r.SessionID, err)
		return err
	}
	return nil
}

func (s *Service) OpenReports(ctx context.Context) ([]models.Report, error) {
	var reports []models.Report
	err := s.DB.WithContext(ctx).
		Where("status = ?", "new").
		Order("created_at asc").
		Find(&reports).Error
	return reports, err
}

func (s *Service) ResolveReport(ctx context.Context, reportID, status string) error {
	return s.DB.WithContext(ctx).Model(&models.Report{}).
		Where("report_id = ?", reportID).
		Update("status", status).Error
}

func (s *Service) BlockUser(ctx context.Context, blockerID, blockedID string) error {
	block := models.Block{BlockerID: blockerID, BlockedID: blockedID}
	return s.DB.WithContext(ctx).
		Where(&block).
		FirstOrCreate(&block).Error
}

// IsBlocked reports whether either user has blocked the other.
func (s *Service) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}
