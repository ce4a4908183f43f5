package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Kind is the resource family a key belongs to.
type Kind string

const (
	KindAgencies  Kind = "agencies"
	KindTitles    Kind = "titles"
	KindWordCount Kind = "wordcount"
)

// Key identifies a cached result. AsOf is part of the identity so the same
// title at two cutoff dates never collides; EngineVersion retires entries
// produced by an older parser.
type Key struct {
	Kind          Kind
	Resource      string
	AsOf          string
	EngineVersion string
}

// String is the canonical, human-readable form of the key.
func (k Key) String() string {
	return strings.Join([]string{string(k.Kind), k.Resource, k.AsOf, "v" + k.EngineVersion}, "|")
}

// Hash is a filesystem- and redis-safe digest of String.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}
