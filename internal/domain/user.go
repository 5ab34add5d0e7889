// Package domain contains entity without logic, just meta-data
package domain

import (
	"encoding/json"
	"errors"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// MemberMetadata is attached to a member when it joins a room.
type MemberMetadata struct {
	UserName string `json:"userName"`
}

func validateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

// EncodeMetadata renders the join metadata string for username.
func EncodeMetadata(username string) (string, error) {
	if err := validateUsername(username); err != nil {
		return "", err
	}
	b, err := json.Marshal(MemberMetadata{UserName: username})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMetadata extracts the username from a member's metadata.
// Missing or malformed metadata reports ok == false.
func DecodeMetadata(metadata string) (string, bool) {
	if metadata == "" {
		return "", false
	}
	var m MemberMetadata
	if err := json.Unmarshal([]byte(metadata), &m); err != nil {
		return "", false
	}
	if m.UserName == "" {
		return "", false
	}
	return m.UserName, true
}
