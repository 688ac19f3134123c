package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// poolable is any client connection that can be parked and reused.
type poolable interface {
	Connect(ctx context.Context) error
	Close() error
}

// connPool parks idle client connections keyed by target plus headers so
// virtual users hitting the same step reuse sockets instead of redialing.
type connPool struct {
	pools sync.Map // map[string]chan poolable
	size  int      // max idle connections per key
}

func newConnPool(size int) *connPool {
	if size <= 0 {
		size = 10
	}
	return &connPool{size: size}
}

// get returns a parked connection for key, or a fresh one from factory.
// reused reports whether the connection came from the pool; a fresh one
// still needs Connect.
func (p *connPool) get(key string, factory func() poolable) (client poolable, reused bool) {
	poolVal, _ := p.pools.LoadOrStore(key, make(chan poolable, p.size))
	pool := poolVal.(chan poolable)

	select {
	case client = <-pool:
		return client, true
	default:
		return factory(), false
	}
}

// put parks a connection for reuse, closing it if the pool is full.
func (p *connPool) put(key string, client poolable) error {
	poolVal, ok := p.pools.Load(key)
	if !ok {
		return client.Close()
	}
	pool := poolVal.(chan poolable)

	select {
	case pool <- client:
		return nil
	default:
		return client.Close()
	}
}

// redial discards a stale connection and dials a replacement once.
func (p *connPool) redial(ctx context.Context, client poolable, factory func() poolable) (poolable, bool) {
	client.Close()

	fresh := factory()
	if err := fresh.Connect(ctx); err != nil {
		return nil, false
	}
	return fresh, true
}

// closeAll closes every parked connection in every pool.
func (p *connPool) closeAll() error {
	var errs []string

	p.pools.Range(func(key, value interface{}) bool {
		if pool, ok := value.(chan poolable); ok {
			close(pool)
			for client := range pool {
				if err := client.Close(); err != nil {
					errs = append(errs, err.Error())
				}
			}
		}
		return true
	})

	if len(errs) > 0 {
		return fmt.Errorf("pool close errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// poolKey builds a deterministic key from a target URL and headers.
func poolKey(target string, headers map[string]string) string {
	var sb strings.Builder
	sb.WriteString(target)
	sb.WriteString("|")

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(headers[k])
		sb.WriteString(";")
	}
	return sb.String()
}
