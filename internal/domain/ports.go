package domain

import (
	"context"
	"iter"
)

// Connector is one logical conversation with the remote model.
//
// SendMessageStream returns a lazily pulled, finite sequence of reply fragments.
// Each pull may block on network I/O. A failure is yielded once as a
// *RemoteServiceError and ends the sequence. The sequence cannot be restarted;
// a new call starts the next turn of the same conversation.
type Connector interface {
	SendMessageStream(ctx context.Context, text string) iter.Seq2[string, error]
}

// ConnectorFactory builds a connector configured with the persona for a domain.
type ConnectorFactory interface {
	NewConnector(ctx context.Context, sessionID SessionID, d EngineeringDomain) (Connector, error)
}

// BlobStore is a durable key/value slot for the serialized session state.
// Get returns ErrBlobNotFound when nothing was stored under key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}
