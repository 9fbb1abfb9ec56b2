package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"resale/internal/model"
)

func TestChatRepository_FindDirectRoom_Absent(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewChatRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `chat_rooms` WHERE pair_key = \\?").
		WithArgs("1:2", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	room, err := repo.FindDirectRoom(context.Background(), "1:2")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if room != nil {
		t.Errorf("Expected nil room, got %+v", room)
	}
}

func TestChatRepository_CreateReadReceipt(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"first read", 1, true},
		{"repeat read", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewChatRepository(db)

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO `message_read_by`").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			mock.ExpectCommit()

			created, err := repo.CreateReadReceipt(context.Background(), &model.MessageReadBy{
				MessageID: 9,
				UserID:    2,
				ReadAt:    time.Now(),
			})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if created != tt.want {
				t.Errorf("CreateReadReceipt() = %v, want %v", created, tt.want)
			}
		})
	}
}

func TestChatRepository_CreateReadReceipts_Empty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewChatRepository(db)

	n, err := repo.CreateReadReceipts(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Expected (0, nil), got (%d, %v)", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestChatRepository_DecrementUnread(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewChatRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `chat_room_participants` SET `unread_count`=unread_count - ? WHERE room_id = ? AND user_id = ? AND unread_count > ?")).
		WithArgs(1, uint64(4), uint64(2), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.DecrementUnread(context.Background(), 4, 2); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestChatRepository_LockParticipant(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewChatRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `chat_room_participants` WHERE room_id = \\? AND user_id = \\? .*LIMIT \\? FOR UPDATE").
		WithArgs(uint64(4), uint64(2), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "user_id", "unread_count"}).AddRow(7, 4, 2, 3))
	mock.ExpectQuery("SELECT \\* FROM `chat_room_participants` WHERE room_id = \\? AND user_id = \\? .*LIMIT \\? FOR UPDATE").
		WithArgs(uint64(4), uint64(9), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	p, err := repo.LockParticipant(context.Background(), 4, 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p == nil || p.UnreadCount != 3 {
		t.Errorf("LockParticipant() = %+v, want unread 3", p)
	}

	p, err = repo.LockParticipant(context.Background(), 4, 9)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p != nil {
		t.Errorf("Expected nil participant, got %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestChatRepository_SumUnread(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewChatRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(unread_count), 0) FROM `chat_room_participants` WHERE user_id = ?")).
		WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(5))

	total, err := repo.SumUnread(context.Background(), 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if total != 5 {
		t.Errorf("SumUnread() = %d, want 5", total)
	}
}
