package bridge

import (
	"sync"
	"time"

	"github.com/speedrun-hq/bridgerunner/pkg/models"
)

// Snapshot is the read-only view of a session handed to presentation layers
type Snapshot struct {
	SessionID        string                       `json:"sessionId"`
	Version          uint64                       `json:"version"`
	Purpose          Purpose                      `json:"purpose"`
	SourceChain      int                          `json:"sourceChainId"`
	DestinationChain int                          `json:"destinationChainId"`
	Token            string                       `json:"token"`
	Amount           string                       `json:"amount"`
	Status           State                        `json:"status"`
	StatusMessage    string                       `json:"statusMessage"`
	Error            *ErrorView                   `json:"error,omitempty"`
	Quote            *models.BridgeQuote          `json:"quote,omitempty"`
	TxHash           string                       `json:"txHash,omitempty"`
	ExplorerURL      string                       `json:"explorerUrl,omitempty"`
	Transfer         *models.BridgeTransferRecord `json:"transfer,omitempty"`
	ObservedChainID  int                          `json:"observedChainId"`
	FallbackURL      string                       `json:"fallbackUrl"`
	Balances         map[int]string               `json:"balances,omitempty"`
	UpdatedAt        time.Time                    `json:"updatedAt"`
}

// dispatcher delivers snapshots to subscribers in order on its own goroutine,
// so subscribers may call back into the orchestrator
type dispatcher struct {
	mu          sync.Mutex
	queue       []Snapshot
	subscribers map[int]func(Snapshot)
	nextID      int
	signal      chan struct{}
	done        chan struct{}
	stopped     chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		subscribers: make(map[int]func(Snapshot)),
		signal:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(fn func(Snapshot)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.subscribers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subscribers, id)
	}
}

func (d *dispatcher) enqueue(s Snapshot) {
	d.mu.Lock()
	d.queue = append(d.queue, s)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case <-d.signal:
			d.flush()
		case <-d.done:
			d.flush()
			return
		}
	}
}

func (d *dispatcher) flush() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		subs := make([]func(Snapshot), 0, len(d.subscribers))
		for _, fn := range d.subscribers {
			subs = append(subs, fn)
		}
		d.mu.Unlock()

		for _, s := range batch {
			for _, fn := range subs {
				fn(s)
			}
		}
	}
}

// stop delivers what is queued and ends the dispatcher goroutine
func (d *dispatcher) stop() {
	close(d.done)
	<-d.stopped
}
