package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rtc-coordinator/internal/domain"
)

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Put(&domain.CallSession{RoomID: "room_2_bbbbbbbbb", CreatedAt: base.Add(time.Second)})
	store.Put(&domain.CallSession{RoomID: "room_1_aaaaaaaaa", CreatedAt: base})

	got, ok := store.Get("room_1_aaaaaaaaa")
	assert.True(t, ok)
	assert.Equal(t, base, got.CreatedAt)

	list := store.List()
	assert.Len(t, list, 2)
	assert.Equal(t, "room_1_aaaaaaaaa", list[0].RoomID)

	assert.True(t, store.Delete("room_1_aaaaaaaaa"))
	assert.False(t, store.Delete("room_1_aaaaaaaaa"))

	_, ok = store.Get("room_1_aaaaaaaaa")
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestNewRoomID(t *testing.T) {
	now := time.UnixMilli(1767225600123)

	id, err := NewRoomID(now)

	assert.NoError(t, err)
	assert.Regexp(t, `^room_1767225600123_[0-9a-z]{9}$`, id)
	assert.True(t, ValidRoomID(id))
	assert.False(t, ValidRoomID("room_abc_123456789"))
	assert.False(t, ValidRoomID("room_1_ABCDEFGHI"))
}
