// Package user holds the in-memory user directory. It supplies the validated
// (uid, display name) pair that is stamped on written element versions;
// credential verification happens outside this system.
package user

import (
	"sync"
	"time"
)

// User is the public profile of an account.
type User struct {
	ID             int64     `json:"id"`
	DisplayName    string    `json:"display_name"`
	AccountCreated time.Time `json:"account_created"`
	Description    string    `json:"description,omitempty"`
	ChangesetCount int64     `json:"changeset_count"`
}

// Directory is a concurrency-safe user lookup keyed by id and name.
type Directory struct {
	mu     sync.RWMutex
	byID   map[int64]*User
	byName map[string]*User
	nextID int64
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byID:   make(map[int64]*User),
		byName: make(map[string]*User),
		nextID: 1,
	}
}

// Add stores the user, assigning the next free id when none is set.
func (d *Directory) Add(u User) User {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID == 0 {
		u.ID = d.nextID
	}
	if u.ID >= d.nextID {
		d.nextID = u.ID + 1
	}
	if u.AccountCreated.IsZero() {
		u.AccountCreated = time.Now().UTC()
	}
	stored := u
	d.byID[u.ID] = &stored
	d.byName[u.DisplayName] = &stored
	return u
}

// Get returns the user with the given id.
func (d *Directory) Get(id int64) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// GetByName returns the user with the given display name.
func (d *Directory) GetByName(name string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byName[name]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// CountChangeset bumps the user's changeset counter.
func (d *Directory) CountChangeset(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.byID[id]; ok {
		u.ChangesetCount++
	}
}
