package document

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-process fake Store used by tests and local
// development, matching the reference handler's collection-oriented shape
// without requiring a running Mongo instance.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Doc
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Doc)}
}

func (m *MemoryStore) coll(name string) map[string]Doc {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]Doc)
		m.collections[name] = c
	}
	return c
}

// idKey extracts the document's identity from filter. This fake only
// supports single-field equality filters, which is all the Store interface
// methods in this core ever issue (user_id, fragment_id, item_id).
func idKey(filter Doc) (string, string, error) {
	if len(filter) != 1 {
		return "", "", fmt.Errorf("document: memory store only supports single-field filters, got %d fields", len(filter))
	}
	for k, v := range filter {
		return k, fmt.Sprintf("%v", v), nil
	}
	return "", "", fmt.Errorf("document: empty filter")
}

func (m *MemoryStore) FindOne(_ context.Context, collection string, filter Doc) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	field, key, err := idKey(filter)
	if err != nil {
		return nil, err
	}
	for _, doc := range m.coll(collection) {
		if fmt.Sprintf("%v", doc[field]) == key {
			return cloneDoc(doc), nil
		}
	}
	return nil, nil
}

// FindMany returns every document in collection whose fields match filter.
// Unlike FindOne/UpdateOne's single-field idKey lookup, this supports
// multiple filter keys and Mongo-style dotted paths (e.g.
// "unlock_conditions.trigger"), since hint-unlock scanning needs both.
func (m *MemoryStore) FindMany(_ context.Context, collection string, filter Doc) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Doc
	for _, doc := range m.coll(collection) {
		if matchesFilter(doc, filter) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func matchesFilter(doc Doc, filter Doc) bool {
	for path, want := range filter {
		got, ok := getDotted(doc, path)
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func getDotted(doc Doc, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		d, ok := cur.(Doc)
		if !ok {
			return nil, false
		}
		v, ok := d[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func (m *MemoryStore) UpdateOne(_ context.Context, collection string, filter, update Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	field, key, err := idKey(filter)
	if err != nil {
		return err
	}
	c := m.coll(collection)
	for id, doc := range c {
		if fmt.Sprintf("%v", doc[field]) != key {
			continue
		}
		if set, ok := update["$set"].(Doc); ok {
			for k, v := range set {
				setDotted(doc, k, v)
			}
		}
		if push, ok := update["$push"].(Doc); ok {
			for k, v := range push {
				existing, _ := doc[k].([]any)
				doc[k] = append(existing, v)
			}
		}
		if inc, ok := update["$inc"].(Doc); ok {
			for k, v := range inc {
				switch cur := doc[k].(type) {
				case int:
					doc[k] = cur + toInt(v)
				case int64:
					doc[k] = cur + int64(toInt(v))
				default:
					doc[k] = toInt(v)
				}
			}
		}
		c[id] = doc
		return nil
	}
	return fmt.Errorf("document: update one in %s: no matching document", collection)
}

// setDotted applies a Mongo-style dotted-path $set (e.g.
// "current_state.narrative_progress") against an in-memory document,
// creating intermediate Doc levels as needed.
func setDotted(doc Doc, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(Doc)
		if !ok {
			next = Doc{}
			cur[p] = next
		}
		cur = next
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func (m *MemoryStore) InsertOne(_ context.Context, collection string, doc Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("%d", len(m.coll(collection))+1)
	if v, ok := doc["_mem_id"]; ok {
		id = fmt.Sprintf("%v", v)
	}
	m.coll(collection)[id] = cloneDoc(doc)
	return nil
}

func (m *MemoryStore) DeleteOne(_ context.Context, collection string, filter Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	field, key, err := idKey(filter)
	if err != nil {
		return err
	}
	c := m.coll(collection)
	for id, doc := range c {
		if fmt.Sprintf("%v", doc[field]) == key {
			delete(c, id)
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }
func (m *MemoryStore) Close(_ context.Context) error { return nil }

func cloneDoc(d Doc) Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
