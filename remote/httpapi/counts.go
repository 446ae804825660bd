package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/goliatone/go-goal-cache/identity"
	"github.com/goliatone/go-goal-cache/model"
)

type countResponse struct {
	Count int `json:"count"`
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

type batchResponse struct {
	PerKind model.BatchCounts `json:"perKind"`
}

// Count returns the kind count for one goal.
func (c *Client) Count(ctx context.Context, user *identity.User, kind model.Kind, ownerID string) (int, error) {
	var out countResponse
	path := "/api/v1/counts/" + url.PathEscape(string(kind)) + "/" + url.PathEscape(ownerID)
	if err := c.do(ctx, user, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// CountMany returns every kind count for ownerIDs in one request.
func (c *Client) CountMany(ctx context.Context, user *identity.User, ownerIDs []string) (model.BatchCounts, error) {
	var out batchResponse
	if err := c.do(ctx, user, http.MethodPost, "/api/v1/counts/batch", batchRequest{IDs: ownerIDs}, &out); err != nil {
		return nil, err
	}
	if out.PerKind == nil {
		out.PerKind = make(model.BatchCounts)
	}
	return out.PerKind, nil
}
