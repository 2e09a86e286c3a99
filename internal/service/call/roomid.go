package call

import (
	"fmt"
	"regexp"
	"time"

	gonanoid "github.com/matoous/go-nanoid"
)

const roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var roomIDPattern = regexp.MustCompile(`^room_[0-9]+_[0-9a-z]{9}$`)

// NewRoomID returns room_<unixMillis>_<9 lowercase alphanumerics>
func NewRoomID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(roomIDAlphabet, 9)
	if err != nil {
		return "", fmt.Errorf("failed to generate room id: %w", err)
	}
	return fmt.Sprintf("room_%d_%s", now.UnixMilli(), suffix), nil
}

// ValidRoomID reports whether id has the room id shape
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}
