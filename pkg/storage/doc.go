/*
Package storage provides whole-file atomic JSON snapshot stores.

Every persistent collection in Flotilla (the captain's crew, chores and
users maps and the sailor's running table) is one JSON object in one file,
replaced wholesale on every write. The files are the operator interface as
much as the durability layer: they are meant to be cat-able and editable
while the daemon is stopped.

# Write Path

	┌────────────┐   marshal    ┌──────────────┐   rename    ┌───────────┐
	│ map[string]V│ ───────────▶ │ <name>.json.tmp│ ──────────▶│ <name>.json│
	└────────────┘              └──────────────┘             └───────────┘

Writes serialize to a sibling temp file and rename over the target, so a
crash mid-write leaves the previous snapshot intact and readers never see
a torn file.

# Read Path

Reads decode the file on demand; there is no in-memory cache. A missing
file is the empty map. A malformed file is logged and read as the empty
map: the configured durability contract prefers losing history to refusing
service.

# Concurrency

Update runs its callback inside the store's read-compute-write critical
section under a per-store mutex. Callbacks must not block on network I/O
or child-process waits; operations that span two stores take them in a
fixed order (crew, then chores) and persist each before releasing it.
Cross-process writers are not supported: one captain process, one sailor
process per node.

# Usage

	crew := storage.NewFileStore[*types.Sailor](filepath.Join(dir, "crew.json"))

	err := crew.Update(func(m map[string]*types.Sailor) (bool, error) {
		s, ok := m["alpha"]
		if !ok {
			return false, nil
		}
		s.LastSeen = time.Now().Unix()
		return true, nil
	})

SaveJSON and LoadJSON cover the single-object files (the captain's serve
flag, the sailor's resources.json) where strict missing-file errors are
wanted.
*/
package storage
