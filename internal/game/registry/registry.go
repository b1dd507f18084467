package registry

import "sync"

// Registry maps each user id to its single live Client.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[int64]*Client),
	}
}

// Register stores the client for the given user, replacing and closing
// any prior one. Events still buffered on a replaced client are not
// redelivered.
//
// Precondition: client must be non-nil.
// Postcondition: Get(userID) returns client.
func (r *Registry) Register(userID int64, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.clients[userID]; ok {
		_ = old.Close()
	}
	r.clients[userID] = client
}

// Unregister removes the mapping for the given user and closes its
// client. Removing an absent id is a no-op.
//
// Postcondition: Get(userID) returns false.
func (r *Registry) Unregister(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[userID]; ok {
		_ = client.Close()
		delete(r.clients, userID)
	}
}

// UnregisterClient removes the mapping only if it still points at the
// given client. A connection replaced by a newer one must not tear down
// its successor's registration on exit.
func (r *Registry) UnregisterClient(userID int64, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.clients[userID]; ok && current == client {
		_ = current.Close()
		delete(r.clients, userID)
	}
}

// Get returns the client for the given user.
//
// Postcondition: Returns (client, true) if registered, or (nil, false) otherwise.
func (r *Registry) Get(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[userID]
	return client, ok
}

// Send delivers data to the user's client if one is registered. Sends to
// unregistered users, closed clients, or full buffers are dropped; the
// relay contract is best-effort.
//
// Postcondition: Returns true only if the payload was enqueued.
func (r *Registry) Send(userID int64, data []byte) bool {
	r.mu.RLock()
	client, ok := r.clients[userID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return client.Push(data) == nil
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
