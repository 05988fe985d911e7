// Package presence tracks which users are currently on which board, backed
// by Redis. Presence is advisory: when Redis is not configured every method
// is a no-op and the board simply reports nobody online.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Member is one online user on a board.
type Member struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	JoinedAt int64  `json:"joined_at"`
}

// Manager maintains per-board online hashes with a TTL so entries from a
// crashed process age out.
type Manager struct {
	client *redis.Client
}

// NewManager connects to Redis. It fails fast when the server is
// unreachable rather than degrading silently at runtime.
func NewManager(addr, password string, db int) (*Manager, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Manager{client: rdb}, nil
}

func (m *Manager) boardKey(boardID int64) string {
	return fmt.Sprintf("presence:board:%d", boardID)
}

// Join marks a user online on a board.
func (m *Manager) Join(ctx context.Context, boardID int64, userID, userName string) error {
	if m == nil {
		return nil
	}

	member := Member{
		UserID:   userID,
		UserName: userName,
		JoinedAt: time.Now().Unix(),
	}
	raw, err := json.Marshal(member)
	if err != nil {
		return err
	}

	key := m.boardKey(boardID)
	pipe := m.client.Pipeline()
	pipe.HSet(ctx, key, userID, raw)
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err = pipe.Exec(ctx)
	return err
}

// Leave marks a user offline on a board.
func (m *Manager) Leave(ctx context.Context, boardID int64, userID string) error {
	if m == nil {
		return nil
	}

	return m.client.HDel(ctx, m.boardKey(boardID), userID).Err()
}

// Online lists the users currently on a board.
func (m *Manager) Online(ctx context.Context, boardID int64) ([]Member, error) {
	if m == nil {
		return []Member{}, nil
	}

	entries, err := m.client.HGetAll(ctx, m.boardKey(boardID)).Result()
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(entries))
	for _, raw := range entries {
		var member Member
		if err := json.Unmarshal([]byte(raw), &member); err != nil {
			continue
		}
		members = append(members, member)
	}
	return members, nil
}

// Close releases the Redis connection.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
