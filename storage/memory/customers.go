package memorystore

import (
	"context"
	"sync"
)

// CustomerIndex is an in-memory customer-to-user index.
type CustomerIndex struct {
	mu sync.Mutex
	m  map[string]string
}

func NewCustomerIndex() *CustomerIndex {
	return &CustomerIndex{m: make(map[string]string)}
}

func (i *CustomerIndex) Lookup(ctx context.Context, customerID string) (string, bool, error) {
	_ = ctx
	i.mu.Lock()
	defer i.mu.Unlock()
	uid, ok := i.m[customerID]
	return uid, ok, nil
}

func (i *CustomerIndex) Save(ctx context.Context, customerID, userID string) error {
	_ = ctx
	i.mu.Lock()
	defer i.mu.Unlock()
	i.m[customerID] = userID
	return nil
}
