package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrEmptyType    = errors.New("envelope type is empty")
	ErrEmptyPayload = errors.New("empty payload")
)

// Encode 将负载包装为 Envelope 并序列化
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, ErrEmptyType
	}
	if payload == nil {
		return nil, fmt.Errorf("encode %q: %w", t, ErrEmptyPayload)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: pb})
}

// DecodeEnvelope 解析外层结构，不解析 data
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, ErrEmptyType
	}
	return e, nil
}

// DecodePayload 按目标类型解析 data
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, fmt.Errorf("decode %q: %w", env.Type, ErrEmptyPayload)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %q: %w", env.Type, err)
	}
	return out, nil
}
