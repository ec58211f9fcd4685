package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("protocol: malformed packet")
	ErrTruncated   = errors.New("protocol: truncated data")
	ErrInvalidEnum = errors.New("protocol: invalid enum value")
	ErrInvalidUID  = errors.New("protocol: invalid link uid")
	ErrNilPacket   = errors.New("protocol: nil packet")
)

func malformed(tag uint8, err error) error {
	return fmt.Errorf("%w: tag=0x%02x: %w", ErrMalformed, tag, err)
}
