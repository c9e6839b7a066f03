package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/rumahkita/pemilu/internal/metrics"
)

// Sweeper advances any election whose active turn has expired, independent
// of client presence. Clients still call AdvanceTurn when their countdown
// hits zero; both paths go through the same conditional update, so whoever
// arrives second is a no-op.
type Sweeper struct {
	scheduler  *Service
	store      TurnStore
	clock      clockwork.Clock
	batchSize  int32
	numWorkers int
	wakeCh     chan struct{}
	workCh     chan uuid.UUID
	instanceID string

	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

const idlePollInterval = 5 * time.Second

func NewSweeper(scheduler *Service, store TurnStore, clock clockwork.Clock, batchSize int32, numWorkers int) *Sweeper {
	return &Sweeper{
		scheduler:  scheduler,
		store:      store,
		clock:      clock,
		batchSize:  batchSize,
		numWorkers: numWorkers,
		wakeCh:     make(chan struct{}, 1),
		workCh:     make(chan uuid.UUID, numWorkers*2),
		instanceID: uuid.New().String()[:8],
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Wake nudges the sweeper to re-read the next deadline, e.g. after a turn
// advance set a sooner expiry.
func (s *Sweeper) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run loops forever, sleeping until the next turn deadline and dispatching
// due elections to the worker pool.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Info().Str("instance", s.instanceID).Int("workers", s.numWorkers).Msg("sweeper started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer func() {
		cancelWorkers()
		close(s.workCh)
		wg.Wait()
		log.Info().Str("instance", s.instanceID).Msg("sweeper workers shut down")
	}()

	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	timer := s.clock.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.wakeCh:
		default:
		}

		nd, err := s.store.FetchNextTurnDeadline(ctx)
		if err != nil {
			log.Error().Err(err).Str("instance", s.instanceID).Msg("error fetching next turn deadline")
			if !s.sleep(ctx, timer, time.Second) {
				return nil
			}
			continue
		}

		if nd == nil || nd.Deadline == nil {
			// No running turns anywhere; idle until woken or the poll
			// interval elapses.
			if !s.sleep(ctx, timer, idlePollInterval) {
				return nil
			}
			continue
		}

		if wait := nd.Deadline.Sub(s.clock.Now()); wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				return nil
			case <-s.wakeCh:
				// A sooner deadline may exist now; re-read.
				continue
			}
		}

		due, err := s.store.FetchElectionsDueForAdvance(ctx, s.clock.Now(), s.batchSize)
		if err != nil {
			log.Error().Err(err).Str("instance", s.instanceID).Msg("error fetching due elections")
			if !s.sleep(ctx, timer, time.Second) {
				return nil
			}
			continue
		}

		for _, electionID := range due {
			s.inFlightMu.Lock()
			if s.inFlight[electionID] {
				s.inFlightMu.Unlock()
				continue
			}
			s.inFlight[electionID] = true
			s.inFlightMu.Unlock()

			select {
			case <-ctx.Done():
				s.clearInFlight(electionID)
				return nil
			case s.workCh <- electionID:
			}
		}
	}
}

// sleep waits for d or a wake signal; returns false on shutdown.
func (s *Sweeper) sleep(ctx context.Context, timer clockwork.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-timer.Chan():
		return true
	case <-s.wakeCh:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Sweeper) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case electionID, ok := <-s.workCh:
			if !ok {
				return
			}
			if _, err := s.scheduler.AdvanceTurn(ctx, electionID, nil); err != nil {
				log.Error().
					Err(err).
					Str("election_id", electionID.String()).
					Str("instance", s.instanceID).
					Int("worker_id", workerID).
					Msg("sweep advance failed")
			} else {
				metrics.SweepAdvancesTotal.Inc()
				log.Info().
					Str("election_id", electionID.String()).
					Str("instance", s.instanceID).
					Msg("swept expired turn")
			}
			s.clearInFlight(electionID)
		}
	}
}

func (s *Sweeper) clearInFlight(electionID uuid.UUID) {
	s.inFlightMu.Lock()
	delete(s.inFlight, electionID)
	s.inFlightMu.Unlock()
}
