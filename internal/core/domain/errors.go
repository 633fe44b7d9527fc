package domain

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid access token")
	ErrInvalidRoomID    = errors.New("invalid room id")
	ErrInvalidMessageID = errors.New("invalid message id")
	ErrRoomNotFound     = errors.New("room not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("username already taken")
	ErrBadCredentials   = errors.New("wrong username or password")
	ErrMessageForbidden = errors.New("no permission to remove this message")
	ErrAlreadyPresent   = errors.New("connection already present")
	ErrNotConnected     = errors.New("connection not authenticated")
)
