package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// DefaultBoardID is the distinguished board every authenticated user can
// reach. It is lazily created on first login and cannot be deleted through
// the API while other users remain.
const DefaultBoardID int64 = 1

// DefaultBoardNickname is the nickname used when the default board is
// lazily created.
const DefaultBoardNickname = "Main Board"

// User - provider-issued id for OAuth users, synthesized "guest-<uuid>" for
// guests. Guest rows are removed when their last live session closes.
type User struct {
	ID         string    `gorm:"primaryKey;type:varchar(255)" json:"id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	ProfilePic *string   `gorm:"type:text" json:"profile_pic,omitempty"`
	IsGuest    bool      `gorm:"default:false" json:"is_guest"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	OwnedWhiteboards      []Whiteboard `gorm:"foreignKey:OwnerID" json:"owned_whiteboards,omitempty"`
	AccessibleWhiteboards []Whiteboard `gorm:"many2many:whiteboard_access;" json:"accessible_whiteboards,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Whiteboard - a drawing surface with an owner and an access list. The owner
// is granted access at creation time.
type Whiteboard struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Nickname  string    `gorm:"type:varchar(100);not null" json:"nickname"`
	OwnerID   string    `gorm:"type:varchar(255);not null" json:"owner_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Owner        User     `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Strokes      []Stroke `gorm:"foreignKey:WhiteboardID" json:"strokes,omitempty"`
	AccessibleBy []User   `gorm:"many2many:whiteboard_access;" json:"accessible_by,omitempty"`
}

func (Whiteboard) TableName() string {
	return "whiteboards"
}

// WhiteboardAccess is the join table behind the many2many relations. Declared
// explicitly so repositories can query and delete access rows directly.
type WhiteboardAccess struct {
	UserID       string `gorm:"primaryKey;type:varchar(255)" json:"user_id"`
	WhiteboardID int64  `gorm:"primaryKey" json:"whiteboard_id"`
}

func (WhiteboardAccess) TableName() string {
	return "whiteboard_access"
}

// Point is one sample of a stroke path.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke - one completed pen gesture. Immutable once created except for
// deletion (undo, erase, clear).
type Stroke struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WhiteboardID int64          `gorm:"not null;index:idx_strokes_board_created" json:"whiteboard_id"`
	UserID       string         `gorm:"type:varchar(255);not null;index" json:"user_id"`
	Color        string         `gorm:"type:varchar(7);not null" json:"color"`
	LineWidth    float64        `gorm:"not null" json:"lineWidth"`
	Points       datatypes.JSON `gorm:"type:jsonb;not null" json:"points"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index:idx_strokes_board_created" json:"created_at"`

	// Relations
	Whiteboard Whiteboard `gorm:"foreignKey:WhiteboardID" json:"whiteboard,omitempty"`
	User       User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Stroke) TableName() string {
	return "strokes"
}

// DecodePoints unmarshals the stored path.
func (s *Stroke) DecodePoints() ([]Point, error) {
	var points []Point
	if err := json.Unmarshal(s.Points, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// EncodePoints marshals a path into the stored JSON column form.
func EncodePoints(points []Point) (datatypes.JSON, error) {
	raw, err := json.Marshal(points)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
