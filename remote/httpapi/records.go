package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/ids"
	"github.com/goliatone/go-goal-cache/model"
)

// Records is the endpoint set for one record resource.
type Records[T any] struct {
	client   *Client
	resource string
	getID    func(T) ids.ID
}

// NewRecords binds resource ("goals", "notes", "accomplishments") to client.
func NewRecords[T any](client *Client, resource string, getID func(T) ids.ID) *Records[T] {
	return &Records[T]{client: client, resource: resource, getID: getID}
}

func (r *Records[T]) path(id string) string {
	p := "/api/v1/" + url.PathEscape(r.resource)
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// List returns the records owned by ownerID. An empty ownerID lists the
// user's records.
func (r *Records[T]) List(ctx context.Context, user *identity.User, ownerID string) ([]T, error) {
	p := r.path("")
	if ownerID != "" {
		p += "?" + url.Values{"owner_id": {ownerID}}.Encode()
	}

	var out []T
	if err := r.client.do(ctx, user, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts record and returns the stored form with its server id.
func (r *Records[T]) Create(ctx context.Context, user *identity.User, record T) (T, error) {
	var out T
	if err := r.client.do(ctx, user, http.MethodPost, r.path(""), record, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Update replaces the stored record with the same id.
func (r *Records[T]) Update(ctx context.Context, user *identity.User, record T) (T, error) {
	var out T
	if err := r.client.do(ctx, user, http.MethodPut, r.path(r.getID(record).String()), record, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Delete removes the record with id.
func (r *Records[T]) Delete(ctx context.Context, user *identity.User, id string) error {
	return r.client.do(ctx, user, http.MethodDelete, r.path(id), nil, nil)
}

// Goals returns the goals endpoint.
func (c *Client) Goals() *Records[model.Goal] {
	return NewRecords(c, "goals", func(g model.Goal) ids.ID { return g.ID })
}

// Notes returns the notes endpoint.
func (c *Client) Notes() *Records[model.Note] {
	return NewRecords(c, "notes", func(n model.Note) ids.ID { return n.ID })
}

// Accomplishments returns the accomplishments endpoint.
func (c *Client) Accomplishments() *Records[model.Accomplishment] {
	return NewRecords(c, "accomplishments", func(a model.Accomplishment) ids.ID { return a.ID })
}
