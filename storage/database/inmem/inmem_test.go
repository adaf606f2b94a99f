package inmemdb_test

import (
	"testing"

	inmemdb "github.com/hansini-nalla/pes-sub000/storage/database/inmem"
	testutil "github.com/hansini-nalla/pes-sub000/tests"
)

func TestRepositories(t *testing.T) {
	testutil.TestRepositories(t, func(t *testing.T) testutil.Repos {
		db := inmemdb.Open()
		return testutil.Repos{
			Actors:   inmemdb.NewActorRepository(db),
			Exams:    inmemdb.NewExamRepository(db),
			Verdicts: inmemdb.NewVerdictRepository(db),
			Disputes: inmemdb.NewDisputeRepository(db),
		}
	})
}
