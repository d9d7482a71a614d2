package scheduler

// LedgerSize exposes the raw ledger length to tests.
func (s *Scheduler) LedgerSize() int { return s.ledgerSize() }
