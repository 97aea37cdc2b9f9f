// Package agentrpc declares the RPC surface a coordinating agent exposes
// to a client: five unary calls and one server-streaming call. The
// interfaces here are what the client core depends on; grpc.go supplies
// the concrete gRPC transport binding so the core never has to know how
// a request reaches the wire.
package agentrpc

import (
	"context"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/loomdoc/synckit/document"
)

// ActivateClientRequest registers a client with the agent.
type ActivateClientRequest struct {
	ClientKey string `json:"client_key"`
}

// ActivateClientResponse carries the agent-assigned identity.
type ActivateClientResponse struct {
	ClientID []byte `json:"client_id"`
}

// DeactivateClientRequest releases a previously activated identity.
type DeactivateClientRequest struct {
	ClientID []byte `json:"client_id"`
}

// DeactivateClientResponse carries no data; the call either succeeds or
// returns an error.
type DeactivateClientResponse struct{}

// AttachDocumentRequest asks the agent to start replicating a document
// for this client, carrying the document's current unsynced changes.
type AttachDocumentRequest struct {
	ClientID   []byte               `json:"client_id"`
	ChangePack document.ChangePack `json:"change_pack"`
}

// AttachDocumentResponse carries the changes the agent wants applied
// locally as part of the attach handshake.
type AttachDocumentResponse struct {
	ChangePack document.ChangePack `json:"change_pack"`
}

// DetachDocumentRequest asks the agent to stop replicating a document.
type DetachDocumentRequest struct {
	ClientID   []byte               `json:"client_id"`
	ChangePack document.ChangePack `json:"change_pack"`
}

// DetachDocumentResponse mirrors AttachDocumentResponse.
type DetachDocumentResponse struct {
	ChangePack document.ChangePack `json:"change_pack"`
}

// PushPullRequest is one round of push-pull synchronization for a
// single document.
type PushPullRequest struct {
	ClientID   []byte               `json:"client_id"`
	ChangePack document.ChangePack `json:"change_pack"`
}

// PushPullResponse carries the remote changes to apply locally.
type PushPullResponse struct {
	ChangePack document.ChangePack `json:"change_pack"`
}

// PeerInfo identifies a remote client and the presence metadata it has
// advertised.
type PeerInfo struct {
	PeerID   string                 `json:"peer_id"`
	Metadata document.PresenceInfo `json:"metadata"`
}

// EventType enumerates the kinds of frames a WatchDocuments event can
// carry.
type EventType string

// The event types a WatchDocuments stream can emit.
const (
	DocumentsWatched   EventType = "documents-watched"
	DocumentsUnwatched EventType = "documents-unwatched"
	DocumentsChanged   EventType = "documents-changed"
)

// InitializationFrame is sent once at the start of a WatchDocuments
// stream, seeding the peer set for every watched document.
type InitializationFrame struct {
	PeersByDoc map[string][]PeerInfo `json:"peers_by_doc"`
}

// EventFrame is a subsequent WatchDocuments frame reporting a presence
// or change event raised by another client. ServerTime is the agent's
// wall-clock time at the moment the event was raised, used only for
// logging — the client never orders or expires anything by it.
type EventFrame struct {
	Type         EventType              `json:"type"`
	Publisher    PeerInfo               `json:"publisher"`
	DocumentKeys []document.Key         `json:"document_keys"`
	ServerTime   *timestamppb.Timestamp `json:"server_time,omitempty"`
}

// WatchDocumentsResponse is exactly one of Init or Event.
type WatchDocumentsResponse struct {
	Init  *InitializationFrame `json:"init,omitempty"`
	Event *EventFrame          `json:"event,omitempty"`
}

// WatchDocumentsRequest opens a server-push stream scoped to a client
// identity and a set of document keys.
type WatchDocumentsRequest struct {
	ClientID     []byte               `json:"client_id"`
	Metadata     document.PresenceInfo `json:"metadata"`
	DocumentKeys []document.Key        `json:"document_keys"`
}

// WatchStream is the receive side of an open WatchDocuments call.
type WatchStream interface {
	Recv() (*WatchDocumentsResponse, error)
	CloseSend() error
}

// AgentClient is the RPC surface a Client depends on. The default
// implementation (see grpc.go) binds it to a real gRPC connection; tests
// substitute a fake.
type AgentClient interface {
	ActivateClient(ctx context.Context, req *ActivateClientRequest) (*ActivateClientResponse, error)
	DeactivateClient(ctx context.Context, req *DeactivateClientRequest) (*DeactivateClientResponse, error)
	AttachDocument(ctx context.Context, req *AttachDocumentRequest) (*AttachDocumentResponse, error)
	DetachDocument(ctx context.Context, req *DetachDocumentRequest) (*DetachDocumentResponse, error)
	PushPull(ctx context.Context, req *PushPullRequest) (*PushPullResponse, error)
	WatchDocuments(ctx context.Context, req *WatchDocumentsRequest) (WatchStream, error)
}
