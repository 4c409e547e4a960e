package record_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store/record"
	"namereg/pkg/domain"
	"namereg/pkg/platform/sentinel"
)

// recordStore is the surface every backend shares.
type recordStore interface {
	FindByName(ctx context.Context, name models.Name) (*models.Record, error)
	Execute(ctx context.Context, name models.Name, fn record.MutateFunc) (*models.Record, error)
	Count(ctx context.Context) (int, error)
}

// ContractSuite exercises the behavior all record stores must agree on.
// Backends embed it and set newStore.
type ContractSuite struct {
	suite.Suite
	newStore func() recordStore
	store    recordStore
}

var (
	alice = domain.NewAddress("alice")
	bob   = domain.NewAddress("bob")
	now   = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
)

func (s *ContractSuite) SetupTest() {
	s.store = s.newStore()
}

func (s *ContractSuite) register(name models.Name, owner domain.Identity) *models.Record {
	rec, err := models.NewRecord(name, owner, domain.NewContract("resolver"), time.Hour, now)
	s.Require().NoError(err)
	stored, err := s.store.Execute(context.Background(), name, func(current *models.Record) (*models.Record, error) {
		return rec, nil
	})
	s.Require().NoError(err)
	return stored
}

func (s *ContractSuite) TestFindByNameMissing() {
	_, err := s.store.FindByName(context.Background(), "ghost")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ContractSuite) TestExecuteInsertsAndFinds() {
	stored := s.register("alpha", alice)
	s.Equal(alice, stored.Owner)

	got, err := s.store.FindByName(context.Background(), "alpha")
	s.Require().NoError(err)
	s.Equal(models.Name("alpha"), got.Name)
	s.Equal(alice, got.Owner)
	s.Equal(domain.NewContract("resolver"), got.Resolver)
	s.True(got.Expiry.Equal(now.Add(time.Hour)))
	s.True(got.RegisteredAt.Equal(now))

	n, err := s.store.Count(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *ContractSuite) TestExecuteSeesNilForUnknownName() {
	var seen *models.Record
	called := false
	_, err := s.store.Execute(context.Background(), "fresh", func(current *models.Record) (*models.Record, error) {
		called = true
		seen = current
		return nil, nil
	})
	s.Require().NoError(err)
	s.True(called)
	s.Nil(seen)

	_, err = s.store.FindByName(context.Background(), "fresh")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ContractSuite) TestExecuteUpdatesExisting() {
	s.register("alpha", alice)

	_, err := s.store.Execute(context.Background(), "alpha", func(current *models.Record) (*models.Record, error) {
		s.Require().NotNil(current)
		current.ApplyOwnerChange(bob, now.Add(time.Minute))
		return current, nil
	})
	s.Require().NoError(err)

	got, err := s.store.FindByName(context.Background(), "alpha")
	s.Require().NoError(err)
	s.Equal(bob, got.Owner)
	s.True(got.UpdatedAt.Equal(now.Add(time.Minute)))

	n, err := s.store.Count(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *ContractSuite) TestExecuteErrorWritesNothing() {
	s.register("alpha", alice)
	boom := errors.New("boom")

	_, err := s.store.Execute(context.Background(), "alpha", func(current *models.Record) (*models.Record, error) {
		current.ApplyOwnerChange(bob, now)
		return nil, boom
	})
	s.Require().ErrorIs(err, boom)

	got, err := s.store.FindByName(context.Background(), "alpha")
	s.Require().NoError(err)
	s.Equal(alice, got.Owner)
}

func (s *ContractSuite) TestCallbackMutationDoesNotLeak() {
	s.register("alpha", alice)

	_, err := s.store.Execute(context.Background(), "alpha", func(current *models.Record) (*models.Record, error) {
		current.Owner = bob
		return nil, nil
	})
	s.Require().NoError(err)

	got, err := s.store.FindByName(context.Background(), "alpha")
	s.Require().NoError(err)
	s.Equal(alice, got.Owner)
}

func (s *ContractSuite) TestConcurrentExtendsAreSerialized() {
	s.register("alpha", alice)

	const workers = 8
	var wg sync.WaitGroup
	var failures atomic.Int32
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(context.Background(), "alpha", func(current *models.Record) (*models.Record, error) {
				current.ApplyExtension(time.Minute, now)
				return current, nil
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Require().Zero(failures.Load())

	got, err := s.store.FindByName(context.Background(), "alpha")
	s.Require().NoError(err)
	s.True(got.Expiry.Equal(now.Add(time.Hour+workers*time.Minute)), "got %s", got.Expiry)
}
