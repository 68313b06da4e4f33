package cart

import "context"

// Store persists serialized carts under an opaque key. Get reports found=false
// for keys that were never written.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}
