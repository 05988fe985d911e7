package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/repository"
)

func TestStrokeRepository_Create(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewStrokeRepository(gormDB)

	points, err := model.EncodePoints([]model.Point{{X: 1, Y: 2}})
	require.NoError(t, err)

	stroke := &model.Stroke{
		WhiteboardID: 1,
		UserID:       "user-1",
		Color:        "#FF0000",
		LineWidth:    2,
		Points:       points,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "strokes"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	err = repo.Create(context.Background(), stroke)

	assert.NoError(t, err)
	assert.Equal(t, int64(42), stroke.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrokeRepository_GetByID_Found(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewStrokeRepository(gormDB)

	mock.ExpectQuery(`SELECT .* FROM "strokes" WHERE id = .* LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "whiteboard_id", "user_id", "color", "line_width", "points"}).
			AddRow(int64(7), int64(1), "user-1", "#FF0000", 2.0, []byte(`[{"x":1,"y":2}]`)))

	stroke, err := repo.GetByID(context.Background(), 7)

	assert.NoError(t, err)
	require.NotNil(t, stroke)
	assert.Equal(t, int64(7), stroke.ID)
	assert.Equal(t, "user-1", stroke.UserID)

	points, err := stroke.DecodePoints()
	assert.NoError(t, err)
	assert.Equal(t, []model.Point{{X: 1, Y: 2}}, points)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrokeRepository_GetByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewStrokeRepository(gormDB)

	mock.ExpectQuery(`SELECT .* FROM "strokes" WHERE id = .* LIMIT`).
		WillReturnError(gorm.ErrRecordNotFound)

	stroke, err := repo.GetByID(context.Background(), 7)

	assert.NoError(t, err)
	assert.Nil(t, stroke)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrokeRepository_ListByBoard_CreationOrder(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewStrokeRepository(gormDB)

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM "strokes" WHERE whiteboard_id = .* ORDER BY created_at ASC, id ASC`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "whiteboard_id", "user_id", "color", "line_width", "points", "created_at"}).
			AddRow(int64(1), int64(1), "user-1", "#111111", 1.0, []byte(`[]`), now).
			AddRow(int64(2), int64(1), "user-2", "#222222", 1.0, []byte(`[]`), now.Add(time.Second)))

	strokes, err := repo.ListByBoard(context.Background(), 1)

	assert.NoError(t, err)
	require.Len(t, strokes, 2)
	assert.Equal(t, int64(1), strokes[0].ID)
	assert.Equal(t, int64(2), strokes[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrokeRepository_LatestByAuthor_None(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewStrokeRepository(gormDB)

	mock.ExpectQuery(`SELECT .* FROM "strokes" WHERE whiteboard_id = .* AND user_id = .* ORDER BY created_at DESC, id DESC`).
		WillReturnError(gorm.ErrRecordNotFound)

	stroke, err := repo.LatestByAuthor(context.Background(), 1, "user-1")

	assert.NoError(t, err)
	assert.Nil(t, stroke)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrokeRepository_DeleteByBoard(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewStrokeRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "strokes" WHERE whiteboard_id = .*`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.DeleteByBoard(context.Background(), 1)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
