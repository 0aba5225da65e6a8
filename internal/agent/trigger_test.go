package agent

import "testing"

func TestIsTriggered(t *testing.T) {
	tests := []struct {
		transcript string
		want       bool
	}{
		{"face buddy send him five dollars", true},
		{"Hey FACE BUDDY, connect on telegram", true},
		{"buddy, look at this face", true},
		{"Fâce Buddÿ pay her", true},
		{"facebuddy pay", true},
		{"send him five dollars", false},
		{"face the music", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			if got := IsTriggered(tt.transcript); got != tt.want {
				t.Errorf("IsTriggered(%q) = %v, want %v", tt.transcript, got, tt.want)
			}
		})
	}
}
