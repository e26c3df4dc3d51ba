package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		name        string
		cb          *tele.Callback
		wantKey     string
		wantPayload string
	}{
		{
			name:        "encoded unique with payload",
			cb:          &tele.Callback{Data: "\flesson_watched|2"},
			wantKey:     "lesson_watched",
			wantPayload: "2",
		},
		{
			name:        "no payload",
			cb:          &tele.Callback{Data: "\flesson_watched"},
			wantKey:     "lesson_watched",
			wantPayload: "",
		},
		{
			name:        "plain data without prefix",
			cb:          &tele.Callback{Data: "lesson_watched|10"},
			wantKey:     "lesson_watched",
			wantPayload: "10",
		},
		{
			name:        "nil callback",
			cb:          nil,
			wantKey:     "",
			wantPayload: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tt.cb)
			if key != tt.wantKey || payload != tt.wantPayload {
				t.Fatalf("got (%q, %q), want (%q, %q)", key, payload, tt.wantKey, tt.wantPayload)
			}
		})
	}
}
