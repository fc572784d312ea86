// Package graph is the knowledge graph store (C4): entities and
// relationships extracted from documents, plus communities of densely
// connected entities computed over the undirected relationship graph.
// Persistence is BadgerDB with a single-byte key-prefix scheme, adapted
// from the node/edge layout used elsewhere in the retrieved pack.
package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	prefixEntity       = byte(0x01)
	prefixRelationship = byte(0x02)
	prefixCommunity    = byte(0x03)
)

// Entity is a node in the knowledge graph: a stable, slug-identified thing
// mentioned in a document.
type Entity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	DocumentID  string `json:"document_id"`
}

// Relationship is an edge between two entities. Added only if both
// endpoints exist (invariant I2); duplicates are allowed, semantic dedup
// is not attempted.
type Relationship struct {
	SourceEntityID string `json:"source_entity_id"`
	TargetEntityID string `json:"target_entity_id"`
	Relation       string `json:"relation"`
	Description    string `json:"description"`
}

// Community is a set of entities detected as densely interconnected.
// MembershipHash changes whenever Members changes, so summary generation
// can detect staleness without a separate dirty flag.
type Community struct {
	ID             string    `json:"id"`
	Members        []string  `json:"members"`
	Summary        string    `json:"summary"`
	SummaryVector  []float32 `json:"summary_vector,omitempty"`
	MembershipHash string    `json:"membership_hash"`
}

// EntityID derives a stable slug from a name and type, so the same
// mentioned entity across re-ingestions maps to the same ID.
func EntityID(name, entityType string) string {
	norm := strings.ToLower(strings.TrimSpace(name)) + "::" + strings.ToLower(strings.TrimSpace(entityType))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(norm)).String()
}

func entityKey(id string) []byte       { return append([]byte{prefixEntity}, []byte(id)...) }
func relationshipKey(id string) []byte { return append([]byte{prefixRelationship}, []byte(id)...) }
func communityKey(id string) []byte    { return append([]byte{prefixCommunity}, []byte(id)...) }

// Store is the badger-backed graph store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a graph store at dir. An empty dir opens
// an in-memory instance, useful for tests.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening graph store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// AddEntity upserts an entity.
func (s *Store) AddEntity(e Entity) error {
	if e.ID == "" {
		e.ID = EntityID(e.Name, e.Type)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding entity: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entityKey(e.ID), data)
	})
}

// GetEntity fetches an entity by ID.
func (s *Store) GetEntity(id string) (Entity, bool, error) {
	var out Entity
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &out) })
	})
	return out, found, err
}

// AddRelationship adds a relationship, rejecting it if either endpoint
// entity does not exist (invariant I2).
func (s *Store) AddRelationship(r Relationship) error {
	_, srcOK, err := s.GetEntity(r.SourceEntityID)
	if err != nil {
		return err
	}
	_, dstOK, err := s.GetEntity(r.TargetEntityID)
	if err != nil {
		return err
	}
	if !srcOK || !dstOK {
		return fmt.Errorf("relationship references an absent entity")
	}

	id := uuid.New().String()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding relationship: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(relationshipKey(id), data)
	})
}

// AllEntities returns every stored entity.
func (s *Store) AllEntities() ([]Entity, error) {
	var out []Entity
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixEntity, func(val []byte) error {
			var e Entity
			if err := json.Unmarshal(val, &e); err != nil {
				return nil
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// AllRelationships returns every stored relationship.
func (s *Store) AllRelationships() ([]Relationship, error) {
	var out []Relationship
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixRelationship, func(val []byte) error {
			var r Relationship
			if err := json.Unmarshal(val, &r); err != nil {
				return nil
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// EntitiesByOwner returns entities owned by ownerID.
func (s *Store) EntitiesByOwner(ownerID string) ([]Entity, error) {
	all, err := s.AllEntities()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteByDocument removes every entity belonging to documentID. Stored
// relationships are not deleted: one that references a removed entity
// stays in the store, and DetectCommunities skips it when building the
// community graph.
func (s *Store) DeleteByDocument(documentID string) error {
	all, err := s.AllEntities()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, e := range all {
			if e.DocumentID == documentID {
				if err := txn.Delete(entityKey(e.ID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func scanPrefix(txn *badger.Txn, prefix byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte{prefix}
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
