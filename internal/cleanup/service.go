// Package cleanup runs the periodic ledger maintenance sweep: lecture
// number normalization, duplicate collapse and removal of structurally
// invalid records. The same repairs are reachable on demand through the
// API; the sweep just keeps entropy from accumulating between manual runs.
package cleanup

import (
	"time"

	"rollcall-go/internal/attendance"
	"rollcall-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service runs ledger maintenance on a fixed interval.
type Service struct {
	repo          repository.Repository
	auditor       *attendance.Auditor
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates a maintenance service. A non-positive interval
// disables it and returns nil; callers treat a nil service as a no-op.
func NewService(repo repository.Repository, auditor *attendance.Auditor, checkInterval time.Duration) *Service {
	if checkInterval <= 0 {
		log.Info("Periodic ledger maintenance disabled (interval <= 0).")
		return nil
	}
	log.Infof("Initializing ledger maintenance: interval=%s", checkInterval)
	return &Service{
		repo:          repo,
		auditor:       auditor,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the background maintenance routine. One cycle runs
// immediately so a freshly restarted instance repairs inherited state
// without waiting a full interval.
func (s *Service) Start() {
	if s == nil {
		return
	}
	log.Info("Starting background ledger maintenance...")

	go func() {
		s.RunCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCycle()
			case <-s.stopChan:
				log.Info("Stopping background ledger maintenance.")
				return
			}
		}
	}()
}

// Stop signals the background routine to stop.
func (s *Service) Stop() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
		// already closed
	default:
		close(s.stopChan)
	}
}

// RunCycle performs one maintenance pass.
func (s *Service) RunCycle() {
	if s == nil {
		return
	}

	invalid, err := s.repo.DeleteInvalidRecords()
	if err != nil {
		log.Errorf("Ledger maintenance: failed to remove invalid records: %v", err)
	} else if invalid > 0 {
		log.Infof("Ledger maintenance: removed %d invalid record(s)", invalid)
	}

	report, err := s.auditor.Run()
	if err != nil {
		log.Errorf("Ledger maintenance: duplicate audit failed: %v", err)
		return
	}
	if report.GroupsFound > 0 || report.TypesNormalized > 0 {
		log.WithFields(log.Fields{
			"normalized": report.TypesNormalized,
			"groups":     report.GroupsFound,
			"removed":    report.RecordsRemoved,
		}).Info("Ledger maintenance cycle finished")
	} else {
		log.Debug("Ledger maintenance cycle finished, ledger clean")
	}
}
