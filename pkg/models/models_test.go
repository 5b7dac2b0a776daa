package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestMessageAccessors(t *testing.T) {
	msg := Message{
		Info: json.RawMessage(`{"id":"m1","role":"user","time":{"created":1700000000000}}`),
		Parts: []json.RawMessage{
			json.RawMessage(`{"type":"text","text":"Fix the bug"}`),
			json.RawMessage(`{"type":"text","text":"injected","synthetic":true}`),
			json.RawMessage(`{"type":"tool","tool":"bash"}`),
			json.RawMessage(`{"type":"text","text":"  and add a test  "}`),
		},
	}

	assert.Equal(t, "m1", msg.ID())
	assert.Equal(t, "user", msg.Role())
	assert.Equal(t, int64(1700000000000), msg.Created().UnixMilli())
	assert.Equal(t, []string{"text", "text", "tool", "text"}, msg.PartTypes())
	assert.Equal(t, "Fix the bug\nand add a test", msg.Text())
}

func TestMessageEmptyInfo(t *testing.T) {
	msg := Message{Info: json.RawMessage(`{"id":"m2"}`)}
	assert.Equal(t, "m2", msg.ID())
	assert.Equal(t, "", msg.Role())
	assert.True(t, msg.Created().IsZero())
	assert.Empty(t, msg.Text())
}

func TestMessageMarshalYAML(t *testing.T) {
	msg := Message{
		Info:  json.RawMessage(`{"id":"m1","role":"assistant"}`),
		Parts: []json.RawMessage{json.RawMessage(`{"type":"text","text":"hi"}`)},
	}
	out, err := yaml.Marshal(msg)
	assert.NoError(t, err)
	assert.Contains(t, string(out), "role: assistant")
	assert.Contains(t, string(out), "text: hi")
}

func TestSessionIsRoot(t *testing.T) {
	parent := "p1"
	assert.True(t, Session{ID: "s1"}.IsRoot())
	assert.False(t, Session{ID: "s2", ParentID: &parent}.IsRoot())
}
