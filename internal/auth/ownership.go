package auth

import (
	"context"
	"errors"
	"strings"
)

// ResourceKind names a protected record type.
type ResourceKind string

const (
	KindProduct ResourceKind = "product"
	KindShop    ResourceKind = "shop"
	KindReceipt ResourceKind = "receipt"
	KindReport  ResourceKind = "report"
)

// maxOwnerChain bounds chain walks so a cyclic parent reference fails closed.
const maxOwnerChain = 4

// ResourceRef identifies a single protected record.
type ResourceRef struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

// Ownership describes who owns a record: either directly through OwnerID or
// through the owning entity referenced by Parent.
type Ownership struct {
	OwnerID string
	Parent  *ResourceRef
}

// OwnershipSource reads ownership facts from storage. Implementations return
// ErrNotFound when the referenced record does not exist.
type OwnershipSource interface {
	Ownership(ctx context.Context, ref ResourceRef) (Ownership, error)
}

// OwnsDirect reports whether identityID is the recorded owner.
func OwnsDirect(identityID, ownerID string) bool {
	identityID = strings.TrimSpace(identityID)
	return identityID != "" && identityID == strings.TrimSpace(ownerID)
}

// Resolver walks owner chains such as product -> shop -> account.
type Resolver struct {
	source OwnershipSource
}

func NewResolver(source OwnershipSource) *Resolver {
	return &Resolver{source: source}
}

// IsOwner reports whether identityID ultimately owns ref. A missing ref yields
// ErrNotFound; a missing intermediate entity or an unowned record yields false.
func (r *Resolver) IsOwner(ctx context.Context, identityID string, ref ResourceRef) (bool, error) {
	own, err := r.source.Ownership(ctx, ref)
	if err != nil {
		return false, err
	}
	for depth := 0; ; depth++ {
		if own.Parent == nil {
			return OwnsDirect(identityID, own.OwnerID), nil
		}
		if depth >= maxOwnerChain {
			return false, nil
		}
		own, err = r.source.Ownership(ctx, *own.Parent)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}
