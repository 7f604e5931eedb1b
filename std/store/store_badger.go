package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type BadgerStore struct {
	db *badger.DB
	tx *badger.Txn
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Get(key string) (value []byte, err error) {
	if s.tx != nil {
		return nil, fmt.Errorf("get within a write transaction")
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return
}

func (s *BadgerStore) Put(key string, value []byte) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) Delete(key string) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) List(prefix string) ([]Record, error) {
	out := []Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		pfx := []byte(prefix)
		for it.Seek(pfx); it.ValidForPrefix(pfx); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Record{Key: string(item.KeyCopy(nil)), Value: v})
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Begin() (Store, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("nested write transaction")
	}
	return &BadgerStore{db: s.db, tx: s.db.NewTransaction(true)}, nil
}

func (s *BadgerStore) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("commit without a write transaction")
	}
	return s.tx.Commit()
}

func (s *BadgerStore) Rollback() error {
	if s.tx == nil {
		return fmt.Errorf("rollback without a write transaction")
	}
	s.tx.Discard()
	return nil
}

func (s *BadgerStore) update(f func(tx *badger.Txn) error) error {
	if s.tx != nil {
		return f(s.tx)
	}
	return s.db.Update(f)
}
