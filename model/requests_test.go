package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SendRequest
		wantErr bool
	}{
		{"text", SendRequest{Content: "hello"}, false},
		{"file", SendRequest{FileURL: "https://files/a.png", ChannelType: ChannelTypeFile}, false},
		{"text and file", SendRequest{Content: "look", FileURL: "https://files/a.png"}, false},
		{"empty", SendRequest{}, true},
		{"blank text without file", SendRequest{Content: "   "}, true},
		{"unknown channel type", SendRequest{Content: "hello", ChannelType: "VIDEO"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateRequest_Validate(t *testing.T) {
	assert.NoError(t, UpdateRequest{ChatID: "m1", ReqMessage: "edited"}.Validate())
	assert.Error(t, UpdateRequest{ChatID: "m1"}.Validate())
	assert.Error(t, UpdateRequest{ReqMessage: "edited"}.Validate())
}

func TestDeleteRequest_Validate(t *testing.T) {
	assert.NoError(t, DeleteRequest{ChatID: "m1"}.Validate())
	assert.Error(t, DeleteRequest{}.Validate())
}
