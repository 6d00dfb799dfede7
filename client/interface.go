package client

import (
	"context"

	"github.com/mbocsi/telemux/proto"
)

type Transport interface {
	Connect(ctx context.Context, addr string) error
	Send(msg proto.Message) error
	SendFrame(frame []byte) error
	Read() (proto.Message, error) // for one-at-a-time processing
	Close() error
}
