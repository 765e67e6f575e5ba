package ipc

import "github.com/pithecene-io/playdl/types"

// Broker request types.
const (
	TypeRetrieveCredential = "retrieve_credential"
	TypeGetProfile         = "get_profile"
	TypeLogin              = "login"
	TypeResponse           = "response"
)

// Login helper event types.
const (
	TypePageFinished = "page_finished"
	TypeHelperClosed = "closed"
)

// Error kinds carried in Response.Error.
const (
	ErrorKindAuth        = "auth_failed"
	ErrorKindInteraction = "interaction_incomplete"
	ErrorKindInternal    = "internal"
)

// Request is a call to the credential broker.
type Request struct {
	Type string `msgpack:"type"`
	ID   string `msgpack:"id"`
}

// Response answers the Request with the same ID.
type Response struct {
	Type string `msgpack:"type"`
	ID   string `msgpack:"id"`
	// Version is the broker's contract version.
	Version    string            `msgpack:"version"`
	OK         bool              `msgpack:"ok"`
	Credential *types.Credential `msgpack:"credential,omitempty"`
	Profile    []types.Property  `msgpack:"profile,omitempty"`
	Error      *WireError        `msgpack:"error,omitempty"`
}

// WireError is a classified failure carried across the socket.
type WireError struct {
	Kind    string `msgpack:"kind"`
	Message string `msgpack:"message"`
	// Code is the interaction result code for interaction_incomplete.
	Code int `msgpack:"code,omitempty"`
}

// PageFinished is emitted by the login helper each time a page load completes.
type PageFinished struct {
	Type string `msgpack:"type"`
	URL  string `msgpack:"url"`
	// Cookies is the raw Cookie header value for the loaded page.
	Cookies string `msgpack:"cookies"`
	// Identity is the result of the identity script, possibly quoted or empty.
	Identity string `msgpack:"identity"`
}

// HelperClosed is emitted when the user closes the login window.
type HelperClosed struct {
	Type string `msgpack:"type"`
}
