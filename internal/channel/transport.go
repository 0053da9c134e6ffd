// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package channel

import "context"

// Conn is an authenticated connection to the channel server.
//
// Read is called from a single goroutine. Write may be called concurrently
// with Read and with itself. Close unblocks a pending Read.
type Conn interface {
	Read() (Frame, error)
	Write(frame Frame) error
	Close() error
}

// Dialer opens authenticated connections.
//
// Dial returns only after the server accepted token; a rejected token is an
// error like any other failed dial.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}
