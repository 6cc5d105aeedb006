package handle

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/truenas/osfs/internal/sysx"
	"github.com/truenas/osfs/pkg/mount"
)

// Resolver opens handles without the caller managing mount fds: mount
// ids are resolved to open mount-point descriptors through statmount
// and kept in a bounded LRU. Eviction closes the cached fd.
//
// Only handles carrying the unique 64-bit mount id can be resolved
// this way, since statmount addresses mounts by unique id.
type Resolver struct {
	cache *lru.Cache[uint64, int]
}

// NewResolver creates a resolver caching up to size mount fds.
func NewResolver(size int) (*Resolver, error) {
	cache, err := lru.NewWithEvict[uint64, int](size, func(_ uint64, fd int) {
		sysx.Close(fd)
	})
	if err != nil {
		return nil, fmt.Errorf("create mount fd cache: %w", err)
	}

	return &Resolver{cache: cache}, nil
}

func (r *Resolver) mountFd(ctx context.Context, mntID uint64) (int, error) {
	if fd, ok := r.cache.Get(mntID); ok {
		return fd, nil
	}

	fd, err := mount.OpenByID(ctx, mntID, 0)
	if err != nil {
		return -1, err
	}

	r.cache.Add(mntID, fd)
	return fd, nil
}

// Open resolves and opens h, locating its mount by unique id.
func (r *Resolver) Open(ctx context.Context, h *FileHandle, flags int) (int, error) {
	if !h.UniqueMountID {
		return -1, fmt.Errorf("resolver requires a handle with a unique mount id")
	}

	mfd, err := r.mountFd(ctx, h.MountID)
	if err != nil {
		return -1, err
	}

	fd, err := h.Open(ctx, mfd, flags)
	if err != nil {
		// The cached fd may be stale if the mount went away; drop it so
		// the next attempt re-resolves.
		r.cache.Remove(h.MountID)
		return -1, err
	}

	return fd, nil
}

// Close drops every cached mount fd.
func (r *Resolver) Close() {
	r.cache.Purge()
}
