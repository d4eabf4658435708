package grant

import (
	"context"

	"github.com/xraph/credits/id"
)

type Store interface {
	CreateGrant(ctx context.Context, g *Grant) error
	GetGrant(ctx context.Context, grantID id.GrantID) (*Grant, error)
	ListGrants(ctx context.Context, accountID string, opts ListOpts) ([]*Grant, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
