package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/youwol/ywdash/message"
)

// Msg builds a message with lifecycle labels.
func Msg(id, parent string, labels ...message.Label) message.Message {
	return message.Message{ContextID: id, ParentContextID: parent, Level: message.LevelInfo, Labels: labels}
}

// Log builds an INFO log line carrying attrs as key/value pairs.
func Log(id, parent, text string, attrs ...string) message.Message {
	m := Msg(id, parent)
	m.Text = text
	m.Attributes = pairs(attrs)
	return m
}

// Data builds a DATA message whose payload p is tagged with its label.
func Data(id, parent string, p message.Payload, attrs ...string) message.Message {
	raw, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal %s payload: %v", p.Label(), err))
	}
	return message.Message{
		ContextID:       id,
		ParentContextID: parent,
		Level:           message.LevelData,
		Labels:          []message.Label{p.Label()},
		Attributes:      pairs(attrs),
		Data:            raw,
	}
}

func pairs(kv []string) map[string]string {
	if len(kv) == 0 {
		return nil
	}
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}
