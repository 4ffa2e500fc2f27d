package recordstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) TestCrud() {
	s.Run("set then get returns the record", func() {
		s.Require().NoError(s.store.Set(s.ctx, "alice_transactions", "t1", []byte(`{"amount":100}`)))

		record, err := s.store.Get(s.ctx, "alice_transactions", "t1")
		s.Require().NoError(err)
		s.JSONEq(`{"amount":100}`, string(record))
	})

	s.Run("get of unknown id returns ErrNotFound", func() {
		_, err := s.store.Get(s.ctx, "alice_transactions", "missing")
		s.Require().ErrorIs(err, ErrNotFound)
	})

	s.Run("delete removes the record", func() {
		s.Require().NoError(s.store.Set(s.ctx, "alice_notes", "n1", []byte(`{}`)))
		s.Require().NoError(s.store.Delete(s.ctx, "alice_notes", "n1"))

		_, err := s.store.Get(s.ctx, "alice_notes", "n1")
		s.Require().ErrorIs(err, ErrNotFound)
	})

	s.Run("delete of unknown id returns ErrNotFound", func() {
		s.Require().ErrorIs(s.store.Delete(s.ctx, "alice_notes", "missing"), ErrNotFound)
	})

	s.Run("stored records are isolated from caller mutation", func() {
		record := []byte(`{"amount":1}`)
		s.Require().NoError(s.store.Set(s.ctx, "alice_transactions", "t2", record))
		record[10] = '9'

		stored, err := s.store.Get(s.ctx, "alice_transactions", "t2")
		s.Require().NoError(err)
		s.JSONEq(`{"amount":1}`, string(stored))
	})
}

func (s *InMemorySuite) TestQuery() {
	s.Require().NoError(s.store.Set(s.ctx, "alice_transactions", "t1", []byte(`{"amount":100,"currency":"EUR"}`)))
	s.Require().NoError(s.store.Set(s.ctx, "alice_transactions", "t2", []byte(`{"amount":250,"currency":"EUR"}`)))
	s.Require().NoError(s.store.Set(s.ctx, "alice_transactions", "t3", []byte(`{"amount":100,"currency":"USD"}`)))

	s.Run("no filters returns every record in stable order", func() {
		entries, err := s.store.Query(s.ctx, "alice_transactions", nil)
		s.Require().NoError(err)
		s.Require().Len(entries, 3)
		s.Equal("t1", entries[0].ID)
		s.Equal("t3", entries[2].ID)
	})

	s.Run("filters AND together", func() {
		entries, err := s.store.Query(s.ctx, "alice_transactions", []Filter{
			{Field: "amount", Value: 100},
			{Field: "currency", Value: "EUR"},
		})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("t1", entries[0].ID)
	})

	s.Run("unknown field matches nothing", func() {
		entries, err := s.store.Query(s.ctx, "alice_transactions", []Filter{{Field: "missing", Value: 1}})
		s.Require().NoError(err)
		s.Empty(entries)
	})
}

func (s *InMemorySuite) TestCollections() {
	s.Require().NoError(s.store.Set(s.ctx, "alice_transactions", "t1", []byte(`{}`)))
	s.Require().NoError(s.store.Set(s.ctx, "alice_research", "r1", []byte(`{}`)))
	s.Require().NoError(s.store.Set(s.ctx, "bob_transactions", "t1", []byte(`{}`)))

	s.Run("prefix scopes to one profile namespace", func() {
		names, err := s.store.Collections(s.ctx, "alice_")
		s.Require().NoError(err)
		s.Equal([]string{"alice_research", "alice_transactions"}, names)
	})

	s.Run("drop removes the whole collection", func() {
		s.Require().NoError(s.store.DropCollection(s.ctx, "alice_research"))
		names, err := s.store.Collections(s.ctx, "alice_")
		s.Require().NoError(err)
		s.Equal([]string{"alice_transactions"}, names)
	})
}
