package messenger

import (
	"context"
	"errors"
)

// ConnState mirrors the connectivity lifecycle reported by the external
// messaging-platform client daemon.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReady        ConnState = "ready"
)

// Typed errors surfaced by client adapters. The delivery executor classifies
// on these; adapters must wrap platform-specific failures into one of them.
var (
	// ErrRecipientNotFound means the destination was rejected or does not
	// exist on the platform.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrConnectionLost means the client daemon lost its session or the
	// adapter could not reach it.
	ErrConnectionLost = errors.New("connection to messaging client lost")
	// ErrSerialization means the client failed to encode the message for the
	// platform wire protocol.
	ErrSerialization = errors.New("message serialization failed")
)

// ContentType discriminates the message payload variants.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentMedia    ContentType = "media"
	ContentLocation ContentType = "location"
)

// Content is the message payload handed to the platform client. It is stored
// as an opaque JSON blob by the job store and only decoded here and in the
// delivery executor.
type Content struct {
	Type      ContentType `json:"type"`
	Text      string      `json:"text,omitempty"`
	MediaURL  string      `json:"media_url,omitempty"`
	MimeType  string      `json:"mime_type,omitempty"`
	FileName  string      `json:"file_name,omitempty"`
	Latitude  float64     `json:"latitude,omitempty"`
	Longitude float64     `json:"longitude,omitempty"`
}

// Options carries per-delivery options understood by the platform client.
type Options struct {
	Caption    string `json:"caption,omitempty"`
	AsDocument bool   `json:"as_document,omitempty"`
}

// Client is the adapter interface to the external messaging-platform client.
// Send returns an opaque delivery handle issued by the platform.
type Client interface {
	Send(ctx context.Context, destination string, content Content, options Options) (string, error)
	State(ctx context.Context) ConnState
}
