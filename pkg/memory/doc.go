package memory

import (
	"encoding/json"
	"reflect"
	"sort"
	"sync"
	"time"
)

const (
	CreatedAtField = "_createdAt"
	UpdatedAtField = "_updatedAt"
)

type Document map[string]any

func (d Document) copy() Document {
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

type DocStore struct {
	lock sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

func NewDocStore() *DocStore {
	return &DocStore{
		docs: make(map[string]Document),
		now:  time.Now,
	}
}

func (s *DocStore) WithClock(now func() time.Time) *DocStore {
	s.now = now
	return s
}

func (s *DocStore) Read(id string) (Document, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return doc.copy(), true
}

// Upsert shallow merges partial into the document. The original _createdAt is
// kept and _updatedAt is always stamped.
func (s *DocStore) Upsert(id string, partial Document) Document {
	now := s.now().UTC()

	s.lock.Lock()
	defer s.lock.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		doc = Document{CreatedAtField: now}
	}
	createdAt := doc[CreatedAtField]

	merged := doc.copy()
	for k, v := range partial {
		merged[k] = v
	}
	merged["_id"] = id
	merged[CreatedAtField] = createdAt
	merged[UpdatedAtField] = now

	s.docs[id] = merged
	return merged.copy()
}

// Query returns every document whose fields equal all of the filter values,
// ordered by id.
func (s *DocStore) Query(filter Document) []Document {
	s.lock.RLock()
	defer s.lock.RUnlock()

	results := []Document{}
	for _, doc := range s.docs {
		if matches(doc, filter) {
			results = append(results, doc.copy())
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID() < results[j].ID() })
	return results
}

func matches(doc, filter Document) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

// equal treats values as equal when they are deeply equal or encode to the
// same JSON, so a filter decoded from a request matches typed values.
func equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
