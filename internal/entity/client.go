package entity

import (
	"context"
	"fmt"

	"github.com/onoacademic/campusid/internal/domain"
)

// Client holds one Accessor per known collection over a shared store
type Client struct {
	store     domain.Store
	accessors map[string]*Accessor
}

// NewClient builds accessors for every domain collection
func NewClient(store domain.Store, opts ...Option) *Client {
	c := &Client{store: store, accessors: make(map[string]*Accessor, len(domain.Collections))}
	for _, name := range domain.Collections {
		c.accessors[name] = New(name, store, opts...)
	}
	return c
}

// Collection returns the accessor bound to name
func (c *Client) Collection(name string) (*Accessor, bool) {
	a, ok := c.accessors[name]
	return a, ok
}

func (c *Client) Users() *Accessor     { return c.accessors[domain.CollectionUsers] }
func (c *Client) Students() *Accessor  { return c.accessors[domain.CollectionStudents] }
func (c *Client) Lecturers() *Accessor { return c.accessors[domain.CollectionLecturers] }
func (c *Client) Courses() *Accessor   { return c.accessors[domain.CollectionCourses] }

// ListCollection lists a collection by name; it backs uniqueness checks
func (c *Client) ListCollection(ctx context.Context, collection string) ([]domain.Record, error) {
	a, ok := c.accessors[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return a.List(ctx)
}

// Ping checks the underlying store
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
