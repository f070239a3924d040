package service

import (
	"github.com/bytedance/sonic"
)

const (
	ModeLTP   = "ltp"
	ModeQuote = "quote"
	ModeFull  = "full"
)

type request struct {
	A string `json:"a"`
	V any    `json:"v"`
}

func subscribeFrames(tokens []uint32, mode string) ([][]byte, error) {
	sub, err := sonic.Marshal(request{A: "subscribe", V: tokens})
	if err != nil {
		return nil, err
	}
	m, err := sonic.Marshal(request{A: "mode", V: []any{mode, tokens}})
	if err != nil {
		return nil, err
	}
	return [][]byte{sub, m}, nil
}

func unsubscribeFrame(tokens []uint32) ([]byte, error) {
	return sonic.Marshal(request{A: "unsubscribe", V: tokens})
}

// textMessage: текстовый кадр тикера: error, order, message.
type textMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func parseText(data []byte) (textMessage, error) {
	var msg textMessage
	err := sonic.Unmarshal(data, &msg)
	return msg, err
}
