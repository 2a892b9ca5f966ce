package sse

import "errors"

var (
	// ErrMissingSessionID is returned for a message push that names no session.
	ErrMissingSessionID = errors.New("missing sessionId")
	// ErrUnknownSession is returned for a message push naming a session that
	// was never issued or has already closed.
	ErrUnknownSession = errors.New("unknown session")
	// ErrStreamWrite wraps every failure to write to a push stream. A channel
	// that reports it is closed.
	ErrStreamWrite = errors.New("stream write failed")
	// ErrInvalidMessage is returned for a message push whose body is not a
	// single JSON-RPC message.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrServerShutdown is the close cause for channels terminated by
	// Handler.Shutdown.
	ErrServerShutdown = errors.New("server shutting down")
	// ErrClientDisconnected is the close cause when the client goes away.
	ErrClientDisconnected = errors.New("client disconnected")
)
