package inmemdb

import (
	"context"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
)

type disputeRepository struct {
	db *DB
}

var _ dispute.Repository = (*disputeRepository)(nil) // interface compliance check

func NewDisputeRepository(db *DB) *disputeRepository {
	return &disputeRepository{db: db}
}

func (repo *disputeRepository) CreateFlag(_ context.Context, f dispute.Flag) (dispute.Flag, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.evalIndex[f.EvaluationID]; !ok {
		return dispute.Flag{}, core.NewNotFoundError("evaluation", f.EvaluationID)
	}
	for _, fl := range repo.db.flags {
		if fl.EvaluationID == f.EvaluationID && fl.IsOpen() {
			return dispute.Flag{}, core.NewConflictError("evaluation", f.EvaluationID, "disputed", "flag")
		}
	}
	repo.db.flags = append(repo.db.flags, &f)
	return f, nil
}

func (repo *disputeRepository) GetFlag(_ context.Context, id string) (dispute.Flag, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if f := repo.db.flag(id); f != nil {
		return *f, nil
	}
	return dispute.Flag{}, core.NewNotFoundError("flag", id)
}

func (db *DB) flag(id string) *dispute.Flag {
	for _, f := range db.flags {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (repo *disputeRepository) QueryFlags(_ context.Context, filter dispute.FlagFilter) ([]dispute.Flag, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	flags := make([]dispute.Flag, 0)
	for _, f := range repo.db.flags {
		if filter.Matches(*f) {
			flags = append(flags, *f)
		}
	}
	return flags, nil
}

func (repo *disputeRepository) UpdateFlag(_ context.Context, f dispute.Flag, ev *exam.EvaluationWrite, from ...dispute.FlagStatus) (dispute.Flag, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := repo.db.flag(f.ID)
	if stored == nil {
		return dispute.Flag{}, core.NewNotFoundError("flag", f.ID)
	}
	if !hasFlagStatus(stored.Status, from) {
		return dispute.Flag{}, core.NewConflictError("flag", f.ID, string(stored.Status), "update")
	}
	if ev != nil {
		if err := repo.db.saveEvaluation(*ev); err != nil {
			return dispute.Flag{}, err
		}
	}
	*stored = f
	return f, nil
}

func hasFlagStatus(status dispute.FlagStatus, statuses []dispute.FlagStatus) bool {
	for _, s := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

func (repo *disputeRepository) CreateTicket(_ context.Context, t dispute.Ticket, ev *exam.EvaluationWrite) (dispute.Ticket, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if t.IsUnchecked() {
		for _, tk := range repo.db.tickets {
			if tk.IsUnchecked() && tk.ExamID == t.ExamID && tk.Student == t.Student && tk.Evaluator == t.Evaluator {
				return dispute.Ticket{}, core.NewConflictError("ticket", tk.ID, string(tk.Status), "duplicate")
			}
		}
	}
	if ev != nil {
		if err := repo.db.saveEvaluation(*ev); err != nil {
			return dispute.Ticket{}, err
		}
	}
	repo.db.tickets = append(repo.db.tickets, &t)
	return t, nil
}

func (repo *disputeRepository) GetTicket(_ context.Context, id string) (dispute.Ticket, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t := repo.db.ticket(id); t != nil {
		return *t, nil
	}
	return dispute.Ticket{}, core.NewNotFoundError("ticket", id)
}

func (db *DB) ticket(id string) *dispute.Ticket {
	for _, t := range db.tickets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (repo *disputeRepository) QueryTickets(_ context.Context, filter dispute.TicketFilter) ([]dispute.Ticket, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tickets := make([]dispute.Ticket, 0)
	for _, t := range repo.db.tickets {
		if filter.Matches(*t) {
			tickets = append(tickets, *t)
		}
	}
	return tickets, nil
}

func (repo *disputeRepository) UpdateTicket(_ context.Context, t dispute.Ticket, ev *exam.EvaluationWrite, from ...dispute.TicketStatus) (dispute.Ticket, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := repo.db.ticket(t.ID)
	if stored == nil {
		return dispute.Ticket{}, core.NewNotFoundError("ticket", t.ID)
	}
	statusOK := false
	for _, s := range from {
		if stored.Status == s {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return dispute.Ticket{}, core.NewConflictError("ticket", t.ID, string(stored.Status), "update")
	}
	if ev != nil {
		if err := repo.db.saveEvaluation(*ev); err != nil {
			return dispute.Ticket{}, err
		}
	}
	t.EscalatedToTeacher = t.EscalatedToTeacher || stored.EscalatedToTeacher // one-way
	*stored = t
	return t, nil
}
