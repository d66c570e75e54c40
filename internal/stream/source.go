// Package stream consumes the platform's continuous transaction stream
// and feeds it through verification and apply.
package stream

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"coinflow/internal/domain"
)

// Source is one live subscription to the upstream transaction stream.
// Next blocks for the next delivered event; Finish acknowledges an event
// so the platform stops redelivering it. A Source that returns an error
// from Next is dead and must be re-dialed.
type Source interface {
	Next(ctx context.Context) (domain.RawTransaction, error)
	Finish(ctx context.Context, transactionID string) error
	Close() error
}

// DialFunc opens a fresh Source. The supervisor re-dials whenever the
// current subscription terminates.
type DialFunc func(ctx context.Context) (Source, error)

// WSSource is a websocket-backed Source. The platform pushes transaction
// frames; acknowledgments are sent back as finish frames on the same
// connection.
type WSSource struct {
	conn *websocket.Conn

	// websocket connections allow one concurrent writer.
	writeMu sync.Mutex
}

// DialWS connects to the platform stream endpoint.
func DialWS(ctx context.Context, url string) (*WSSource, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &WSSource{conn: conn}, nil
}

// Next blocks until the platform pushes a transaction frame. Cancelling
// the context closes the connection, which unblocks the read; the stream
// can be idle indefinitely, so this is the only way shutdown can interrupt
// a pending read.
func (s *WSSource) Next(ctx context.Context) (domain.RawTransaction, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	var raw domain.RawTransaction
	if err := s.conn.ReadJSON(&raw); err != nil {
		if ctx.Err() != nil {
			return domain.RawTransaction{}, ctx.Err()
		}
		return domain.RawTransaction{}, err
	}
	return raw, nil
}

type finishFrame struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
}

func (s *WSSource) Finish(ctx context.Context, transactionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}
	return s.conn.WriteJSON(finishFrame{Type: "finish", TransactionID: transactionID})
}

func (s *WSSource) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
