package core

import (
	"errors"
	"fmt"
)

// ErrorCode classifies transport failures.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodeAvailableCameraIsMissing
	CodeCameraIsNotSet
	CodeContextSetup
	CodeRoomFind
	CodeRoomCreate
	CodeRoomFindOrCreate
	CodeRoomJoin
	CodeRoomLeave
	CodeRoomClose
	CodeMemberUpdateMetadata
	CodeMemberLeave
	CodeLocalPersonPublish
	CodeLocalPersonSubscribe
	CodeLocalPersonUnpublish
	CodeLocalPersonUnsubscribe
	CodeRemotePersonSubscribe
	CodeRemotePersonUnsubscribe
	CodePublicationUpdateMetadata
	CodePublicationCancel
	CodePublicationEnable
	CodePublicationDisable
	CodeSubscriptionCancel
	CodeContextDispose
	CodeReconnectFailed
)

var codeMessages = map[ErrorCode]string{
	CodeAvailableCameraIsMissing:  "available camera is missing",
	CodeCameraIsNotSet:            "camera is not set",
	CodeContextSetup:              "context setup error",
	CodeRoomFind:                  "room find error",
	CodeRoomCreate:                "room create error",
	CodeRoomFindOrCreate:          "room find or create error",
	CodeRoomJoin:                  "room join error",
	CodeRoomLeave:                 "room leave error",
	CodeRoomClose:                 "room close error",
	CodeMemberUpdateMetadata:      "member update metadata error",
	CodeMemberLeave:               "member leave error",
	CodeLocalPersonPublish:        "local person publish error",
	CodeLocalPersonSubscribe:      "local person subscribe error",
	CodeLocalPersonUnpublish:      "local person unpublish error",
	CodeLocalPersonUnsubscribe:    "local person unsubscribe error",
	CodeRemotePersonSubscribe:     "remote person subscribe error",
	CodeRemotePersonUnsubscribe:   "remote person unsubscribe error",
	CodePublicationUpdateMetadata: "publication update metadata error",
	CodePublicationCancel:         "publication cancel error",
	CodePublicationEnable:         "publication enable error",
	CodePublicationDisable:        "publication disable error",
	CodeSubscriptionCancel:        "subscription cancel error",
	CodeContextDispose:            "context dispose error",
	CodeReconnectFailed:           "fatal error reconnect failed",
}

func (c ErrorCode) String() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return "unknown error"
}

// TransportError is a failure reported by the room service.
type TransportError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func NewTransportError(code ErrorCode, op string, err error) *TransportError {
	return &TransportError{Code: code, Op: op, Err: err}
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: [%d]", e.Code, int(e.Code))
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches any TransportError carrying the same code.
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	return ok && t.Code == e.Code
}

// CodeOf extracts the transport code from err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code, true
	}
	return CodeUnknown, false
}

// HasCode reports whether err carries the transport code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
