package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"payguard/core/types"
)

// UserDirectory serves payer snapshots to the processor. Implementations own
// session tracking; the processor only reads snapshots and applies the
// post-settlement spend updates through Apply.
type UserDirectory interface {
	// User returns a snapshot of the payer, reporting false when the user is
	// not known. Callers receive a copy and may mutate it freely.
	User(ctx context.Context, id string) (types.UserContext, bool, error)
	// Apply runs fn against the stored context under the directory's write
	// lock. Unknown users are an error; fn is never invoked for them.
	Apply(ctx context.Context, id string, fn func(*types.UserContext)) error
}

// MemoryDirectory is an in-process UserDirectory. The daemon seeds none by
// default; embedders and tests seed their own payers.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]types.UserContext
}

var _ UserDirectory = (*MemoryDirectory)(nil)

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]types.UserContext)}
}

// Seed inserts or replaces a payer snapshot.
func (d *MemoryDirectory) Seed(user types.UserContext) {
	id := strings.TrimSpace(user.UserID)
	if id == "" {
		return
	}
	user.UserID = id
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id] = user.Clone()
}

// User returns a copy of the stored snapshot.
func (d *MemoryDirectory) User(ctx context.Context, id string) (types.UserContext, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.UserContext{}, false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[strings.TrimSpace(id)]
	if !ok {
		return types.UserContext{}, false, nil
	}
	return user.Clone(), true, nil
}

// Apply mutates the stored snapshot under the write lock.
func (d *MemoryDirectory) Apply(ctx context.Context, id string, fn func(*types.UserContext)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("gateway: apply requires a mutation")
	}
	id = strings.TrimSpace(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return fmt.Errorf("gateway: unknown user %q", id)
	}
	fn(&user)
	d.users[id] = user
	return nil
}
