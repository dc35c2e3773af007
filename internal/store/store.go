package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/talkdrop/talkdrop/internal/protocol"
)

// ErrNotInitialized is returned when the store is used before Open.
var ErrNotInitialized = errors.New("store not initialized")

// roomRecord is the rooms table. ID is the client-facing room id.
type roomRecord struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
	CreatedBy string
}

func (roomRecord) TableName() string { return "rooms" }

// messageRecord is the messages table. CreatedAt plus Seq give the
// total order within a room.
type messageRecord struct {
	ID         string `gorm:"primaryKey"`
	RoomID     string `gorm:"index"`
	Seq        int64
	SenderID   string
	SenderName string
	Text       string
	CreatedAt  time.Time `gorm:"index"`
	ExpiresAt  time.Time `gorm:"index"`
}

func (messageRecord) TableName() string { return "messages" }

// ExpiredRef identifies one expired message for the sweeper.
type ExpiredRef struct {
	RoomID    string
	MessageID string
}

// Store persists rooms and messages in SQLite.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&roomRecord{}, &messageRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// EnsureRoom creates room metadata if absent and returns it. Safe to call
// concurrently on every join; the insert ignores conflicts so racing first
// writers never error, and the re-read returns whichever row won.
func (s *Store) EnsureRoom(ctx context.Context, roomID, name, createdBy string) (protocol.RoomMetadata, error) {
	if s == nil || s.db == nil {
		return protocol.RoomMetadata{}, ErrNotInitialized
	}
	rec := roomRecord{ID: roomID, Name: name, CreatedAt: time.Now().UTC(), CreatedBy: createdBy}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return protocol.RoomMetadata{}, fmt.Errorf("ensure room %q: %w", roomID, err)
	}
	var winner roomRecord
	if err := s.db.WithContext(ctx).First(&winner, "id = ?", roomID).Error; err != nil {
		return protocol.RoomMetadata{}, fmt.Errorf("ensure room %q: %w", roomID, err)
	}
	return roomMeta(winner), nil
}

// ListRooms returns metadata for every registered room.
func (s *Store) ListRooms(ctx context.Context) ([]protocol.RoomMetadata, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var recs []roomRecord
	if err := s.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]protocol.RoomMetadata, len(recs))
	for i, r := range recs {
		out[i] = roomMeta(r)
	}
	return out, nil
}

// DeleteRoom removes room metadata and all its messages. Deleting an
// absent room is a no-op.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&messageRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&roomRecord{ID: roomID}).Error
	})
	if err != nil {
		return fmt.Errorf("delete room %q: %w", roomID, err)
	}
	return nil
}

// AppendMessage persists a fully populated message.
func (s *Store) AppendMessage(ctx context.Context, msg protocol.Message) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	rec := messageRecord{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		Seq:        msg.Seq,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		CreatedAt:  msg.CreatedAt,
		ExpiresAt:  msg.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append message to %q: %w", msg.RoomID, err)
	}
	return nil
}

// Messages returns the full ordered history of a room.
func (s *Store) Messages(ctx context.Context, roomID string) ([]protocol.Message, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at, seq").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load messages for %q: %w", roomID, err)
	}
	out := make([]protocol.Message, len(recs))
	for i, r := range recs {
		out[i] = message(r)
	}
	return out, nil
}

// LastSeq returns the highest sequence number used in a room, or 0.
func (s *Store) LastSeq(ctx context.Context, roomID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}
	var seq *int64
	err := s.db.WithContext(ctx).Model(&messageRecord{}).
		Where("room_id = ?", roomID).
		Select("MAX(seq)").
		Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("last seq for %q: %w", roomID, err)
	}
	if seq == nil {
		return 0, nil
	}
	return *seq, nil
}

// DeleteMessage removes one message. Deleting an absent message is a no-op.
func (s *Store) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND id = ?", roomID, messageID).
		Delete(&messageRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete message %q: %w", messageID, err)
	}
	return nil
}

// DeleteRoomMessages removes every message in a room.
func (s *Store) DeleteRoomMessages(ctx context.Context, roomID string) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
	}
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Delete(&messageRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete messages for %q: %w", roomID, err)
	}
	return nil
}

// ListExpired returns references to every message whose expiry is at or
// before the given instant, across all rooms.
func (s *Store) ListExpired(ctx context.Context, before time.Time) ([]ExpiredRef, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Select("id", "room_id").
		Where("expires_at <= ?", before).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	out := make([]ExpiredRef, len(recs))
	for i, r := range recs {
		out[i] = ExpiredRef{RoomID: r.RoomID, MessageID: r.ID}
	}
	return out, nil
}

// AllMessages returns up to limit messages across all rooms, newest first.
func (s *Store) AllMessages(ctx context.Context, limit int) ([]protocol.AdminMessage, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list all messages: %w", err)
	}
	out := make([]protocol.AdminMessage, len(recs))
	for i, r := range recs {
		out[i] = protocol.AdminMessage{
			ID:         r.ID,
			RoomID:     r.RoomID,
			SenderID:   r.SenderID,
			SenderName: r.SenderName,
			Text:       r.Text,
			CreatedAt:  r.CreatedAt,
			ExpiresAt:  r.ExpiresAt,
		}
	}
	return out, nil
}

// CountMessages returns the total message count, optionally restricted to
// messages created at or after since (zero time means no restriction).
func (s *Store) CountMessages(ctx context.Context, since time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}
	q := s.db.WithContext(ctx).Model(&messageRecord{})
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return int(n), nil
}

// CountRoomMessages returns the number of messages in one room.
func (s *Store) CountRoomMessages(ctx context.Context, roomID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&messageRecord{}).
		Where("room_id = ?", roomID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count messages for %q: %w", roomID, err)
	}
	return int(n), nil
}

// LastActivity returns the most recent message timestamp in a room, falling
// back to the room's creation time when it has no messages.
func (s *Store) LastActivity(ctx context.Context, roomID string) (time.Time, error) {
	if s == nil || s.db == nil {
		return time.Time{}, ErrNotInitialized
	}
	var rec messageRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, seq DESC").
		First(&rec).Error
	if err == nil {
		return rec.CreatedAt, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, fmt.Errorf("last activity for %q: %w", roomID, err)
	}
	var room roomRecord
	if err := s.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("last activity for %q: %w", roomID, err)
	}
	return room.CreatedAt, nil
}

func roomMeta(r roomRecord) protocol.RoomMetadata {
	return protocol.RoomMetadata{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt, CreatedBy: r.CreatedBy}
}

func message(r messageRecord) protocol.Message {
	return protocol.Message{
		ID:         r.ID,
		RoomID:     r.RoomID,
		Seq:        r.Seq,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Text:       r.Text,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}
