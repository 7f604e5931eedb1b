package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/catawampus/cwmpd/std/log"
	"github.com/cespare/xxhash"
	gocache "github.com/patrickmn/go-cache"
)

// Scope holds the state that lives for one ACS session: a memo cache for
// expensive lookups, and callbacks to run when the session ends.
// One Scope is shared by the components of a process and reset at the end
// of every session.
type Scope struct {
	cache *gocache.Cache
	// callbacks by key; a key registered twice runs once
	atEnd    map[string]func()
	endOrder []string
}

func NewScope() *Scope {
	return &Scope{
		// entries never expire on their own; End flushes them
		cache: gocache.New(gocache.NoExpiration, 0),
		atEnd: make(map[string]func()),
	}
}

func (sc *Scope) String() string {
	return "session-scope"
}

// CacheKey hashes a function name and its arguments.
func CacheKey(fn string, args ...any) string {
	var sb strings.Builder
	sb.WriteString(fn)
	for _, a := range args {
		fmt.Fprintf(&sb, "\x00%#v", a)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64([]byte(sb.String())))
}

// Cached returns the value cached under key during this session, or calls
// compute and caches its result. Errors are not cached.
func (sc *Scope) Cached(key string, compute func() (any, error)) (any, error) {
	if v, ok := sc.cache.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	sc.cache.Set(key, v, gocache.NoExpiration)
	return v, nil
}

// CachedLen returns the number of cached entries.
func (sc *Scope) CachedLen() int {
	return sc.cache.ItemCount()
}

// RunAtEnd schedules fn to run once when the session ends.
func (sc *Scope) RunAtEnd(key string, fn func()) {
	if _, ok := sc.atEnd[key]; !ok {
		sc.endOrder = append(sc.endOrder, key)
	}
	sc.atEnd[key] = fn
}

// End flushes the cache and runs the end-of-session callbacks in order.
// Callbacks registered while running are run too.
func (sc *Scope) End() {
	if n := sc.cache.ItemCount(); n > 0 {
		log.Debug(sc, "Flushing session cache", "entries", n)
	}
	sc.cache.Flush()

	start := time.Now()
	ran := 0
	for len(sc.endOrder) > 0 {
		key := sc.endOrder[0]
		sc.endOrder = sc.endOrder[1:]
		fn := sc.atEnd[key]
		delete(sc.atEnd, key)
		fn()
		ran++
	}
	if ran > 0 {
		log.Debug(sc, "Ran end of session callbacks", "count", ran, "took", time.Since(start))
	}
}
