// Package naming allocates unique, human-readable session names.
package naming

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/sirupsen/logrus"
)

// fruitNames is the fixed candidate pool (§4.A). Fifty entries, mirroring
// the reference implementation's pool size.
var fruitNames = []string{
	"Apple", "Apricot", "Avocado", "Banana", "Blackberry",
	"Blueberry", "Cantaloupe", "Cherry", "Clementine", "Coconut",
	"Cranberry", "Currant", "Date", "Dragonfruit", "Durian",
	"Elderberry", "Fig", "Gooseberry", "Grape", "Grapefruit",
	"Guava", "Honeydew", "Jackfruit", "Jujube", "Kiwi",
	"Kumquat", "Lemon", "Lime", "Lychee", "Mandarin",
	"Mango", "Mulberry", "Nectarine", "Olive", "Orange",
	"Papaya", "Passionfruit", "Peach", "Pear", "Persimmon",
	"Pineapple", "Plantain", "Plum", "Pomegranate", "Quince",
	"Raspberry", "Starfruit", "Tangerine", "Watermelon", "Yuzu",
}

// Pool allocates session names from the fixed pool, extending with a
// numeric suffix once every candidate is in use. Allocation is serialized
// so concurrent CreateSession calls never pick the same name.
type Pool struct {
	mu sync.Mutex
}

// New returns a ready-to-use Pool.
func New() *Pool {
	return &Pool{}
}

// Allocate returns a name not present in used. The caller supplies the
// authoritative "in use" set (derived from the live Session Registry) each
// time, since the Pool itself holds no state beyond its lock.
func (p *Pool) Allocate(used map[string]struct{}) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range rand.Perm(len(fruitNames)) {
		candidate := fruitNames[name]
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}

	// Every base name is taken; extend with a numeric suffix starting at 2.
	base := fruitNames[rand.IntN(len(fruitNames))]
	for suffix := 2; ; suffix++ {
		candidate := fmt.Sprintf("%s%d", base, suffix)
		if _, taken := used[candidate]; !taken {
			logrus.WithFields(logrus.Fields{
				"base":   base,
				"suffix": suffix,
			}).Debug("naming: pool exhausted, allocated suffixed name")
			return candidate
		}
	}
}
