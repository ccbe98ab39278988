// Package cache implements the IR compilation cache (SPEC_FULL.md §A.5):
// compiling a dialect file is deterministic given its source bytes and the
// resolved div-mode/layout config, so a repeated `wsc build --cache` on an
// unchanged file can skip straight to a stored *ir.Program.
//
// Grounded on vovakirdan-surge's internal/driver/dcache.go (DiskCache/
// DiskPayload): content-addressed filenames under a cache directory,
// msgpack-encoded payloads, atomic temp-file-then-rename writes. Adapted
// from SHA-256 module hashing to FNV-64a over source bytes plus config,
// since this cache's unit is one file's compiled output rather than a
// whole module graph.
package cache

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wsforth/wsc/internal/ir"
)

// schemaVersion guards against stale entries from an earlier, incompatible
// payload shape.
const schemaVersion uint16 = 1

// Key identifies one cache entry: the hash of the source bytes plus every
// config knob that affects how they lower (spec.md §9's div-mode, primarily).
type Key uint64

// NewKey hashes source against the resolved config string (e.g.
// "div-mode=trunc") so two files with identical text but different active
// config never collide.
func NewKey(source []byte, config string) Key {
	h := fnv.New64a()
	h.Write(source)
	h.Write([]byte{0}) // separator: config text can never collide with source bytes it wasn't part of
	h.Write([]byte(config))
	return Key(h.Sum64())
}

func (k Key) String() string { return fmt.Sprintf("%016x", uint64(k)) }

// payload is the on-disk (msgpack) representation of one cached compile.
// Only exported fields round-trip; ir.Program's own counters are
// reconstructed via ir.FromCache on load rather than serialized directly,
// since Program keeps them unexported.
type payload struct {
	Schema         uint16
	Instrs         []ir.Instr
	StaticAddrBase uint64
}

// Cache is a directory of msgpack-serialized compiled programs, keyed by
// Key. The zero value is not usable; construct with Open.
type Cache struct {
	dir string
}

// Open ensures dir exists and returns a Cache rooted there.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key Key) string {
	return filepath.Join(c.dir, key.String()+".mp")
}

// Get returns the cached program for key, or ok=false if absent.
func (c *Cache) Get(key Key) (prog *ir.Program, ok bool, err error) {
	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var p payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return nil, false, err
	}
	if p.Schema != schemaVersion {
		return nil, false, nil
	}
	return ir.FromCache(p.Instrs, p.StaticAddrBase), true, nil
}

// Put stores prog under key, replacing any existing entry atomically.
func (c *Cache) Put(key Key, prog *ir.Program) error {
	p := payload{
		Schema:         schemaVersion,
		Instrs:         prog.Instrs,
		StaticAddrBase: prog.LastStaticAddr(),
	}

	tmp, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if err := msgpack.NewEncoder(tmp).Encode(&p); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, c.pathFor(key))
}
