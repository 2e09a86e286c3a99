package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxRunes int
		want     string
	}{
		{"plain", "Weekly sync", 0, "Weekly sync"},
		{"tags", "<b>Evacuate</b> building B", 0, "Evacuate building B"},
		{"script", "Fire drill<script>alert(1)</script>", 0, "Fire drill"},
		{"control characters", "line\x00one\ttwo\n", 0, "lineonetwo"},
		{"truncates runes", "Réunion d'équipe", 7, "Réunion"},
		{"only markup", "<br/>", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input, tt.maxRunes))
		})
	}
}
