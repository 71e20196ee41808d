package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// messageRow is the relational shape of a chat.Message.
type messageRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Conversation string    `gorm:"size:512;not null;index:idx_conversation_created,priority:1"`
	SenderID     string    `gorm:"size:191;not null"`
	ReceiverID   string    `gorm:"size:191;not null"`
	Content      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_conversation_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

type userRow struct {
	ID           string `gorm:"primaryKey;size:191"`
	Name         string `gorm:"size:255"`
	Email        string `gorm:"size:255"`
	Image        string `gorm:"size:1024"`
	RegisteredAt time.Time
}

func (userRow) TableName() string { return "users" }

// MySQLStore keeps messages in MySQL through GORM.
type MySQLStore struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

// OpenMySQL connects with dsn and migrates the chat tables.
func OpenMySQL(ctx context.Context, dsn string, log *slog.Logger) (*MySQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn must be provided")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&messageRow{}, &userRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("mysql store opened")
	return &MySQLStore{db: db, log: log, now: time.Now}, nil
}

// DATETIME(3) keeps milliseconds.
func (s *MySQLStore) Append(ctx context.Context, d chat.Draft) (chat.Message, error) {
	m, err := prepareAppend(d, s.now(), time.Millisecond)
	if err != nil {
		return chat.Message{}, err
	}
	row := messageRow{
		ID:           m.ID,
		Conversation: chat.ConversationKey(m.SenderID, m.ReceiverID),
		SenderID:     m.SenderID,
		ReceiverID:   m.ReceiverID,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

func (s *MySQLStore) ListConversation(ctx context.Context, a, b string) ([]chat.Message, error) {
	messages := []chat.Message{}
	if a == "" || b == "" {
		return messages, nil
	}
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("conversation = ?", chat.ConversationKey(a, b)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	for _, r := range rows {
		messages = append(messages, chat.Message{
			ID:         r.ID,
			SenderID:   r.SenderID,
			ReceiverID: r.ReceiverID,
			Content:    r.Content,
			CreatedAt:  r.CreatedAt.UTC(),
		})
	}
	return messages, nil
}

func (s *MySQLStore) ListUsers(ctx context.Context) ([]chat.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]chat.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, chat.User{
			ID:           r.ID,
			Name:         r.Name,
			Email:        r.Email,
			Image:        r.Image,
			RegisteredAt: r.RegisteredAt.UTC(),
		})
	}
	return users, nil
}

func (s *MySQLStore) UpsertUser(ctx context.Context, u chat.User) error {
	if err := chat.ValidateUser(u); err != nil {
		return err
	}
	row := userRow{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image, RegisteredAt: u.RegisteredAt.UTC()}
	update := []string{"name", "email", "image"}
	if u.RegisteredAt.IsZero() {
		row.RegisteredAt = s.now().UTC().Truncate(time.Millisecond)
	} else {
		update = append(update, "registered_at")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(update),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *MySQLStore) Close() error {
	s.log.Info("closing mysql store")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
