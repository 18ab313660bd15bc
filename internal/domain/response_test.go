package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseKind(t *testing.T) {
	for _, valid := range []string{"accept", "reject", "busy", "custom"} {
		kind, err := ParseResponseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, ResponseKind(valid), kind)
	}

	_, err := ParseResponseKind("maybe")
	assert.Error(t, err)
	_, err = ParseResponseKind("")
	assert.Error(t, err)
}

func TestVisitorMessage(t *testing.T) {
	assert.Equal(t, "Ding accepted. Video chat session starting.", VisitorMessage(ResponseAccept, ""))
	assert.Equal(t, "Door owner declined the request", VisitorMessage(ResponseReject, "ignored"))
	assert.Equal(t, "Door owner is busy, please try later", VisitorMessage(ResponseBusy, ""))
	assert.Equal(t, "see you at 5", VisitorMessage(ResponseCustom, "see you at 5"))
	assert.Equal(t, "Custom response", VisitorMessage(ResponseCustom, ""))
}

func TestVideoSessionID(t *testing.T) {
	assert.Equal(t, "video_session_ab12", VideoSessionID("session_ab12"))
}
