package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind eventKind
	}{
		{
			name: "array payload is a snapshot",
			raw:  `[{"content":"hi","nickname":"bob"},{"content":"yo","nickname":"carol"}]`,
			kind: kindSnapshot,
		},
		{
			name: "empty array is still a snapshot",
			raw:  `[]`,
			kind: kindSnapshot,
		},
		{
			name: "whitespace before the array is tolerated",
			raw:  "\n\t [{\"content\":\"hi\"}]",
			kind: kindSnapshot,
		},
		{
			name: "join marker",
			raw:  `{"content":"joined the room","nickname":"carol"}`,
			kind: kindJoin,
		},
		{
			name: "leave marker",
			raw:  `{"content":"left the room","nickname":"bob"}`,
			kind: kindLeave,
		},
		{
			name: "ordinary message",
			raw:  `{"content":"hello there","nickname":"bob"}`,
			kind: kindChat,
		},
		{
			name: "message containing a marker as substring is ordinary",
			raw:  `{"content":"he just joined the room!","nickname":"bob"}`,
			kind: kindChat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := classify([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, event.kind)
		})
	}
}

func TestClassifyRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json", `{"content":`, `[{"content":`} {
		_, err := classify([]byte(raw))
		assert.Error(t, err, "raw=%q", raw)
	}
}
