package cmd

import (
	"expvar"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
)

// monitor exposes the chain loop's progress over HTTP via expvar.
type monitor struct {
	info    *expvar.Map
	stopped chan struct{}
	server  *http.Server

	NumChains  *expvar.Int
	NumSamples *expvar.Int
	BurnIn     *expvar.Int
	StepsDone  *expvar.Int
	TotalSteps *expvar.Int
	RunTime    *expvar.Float
}

// Start begins the monitor
func (m *monitor) Start(addr string) error {
	if m.info != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}

	m.info = expvar.NewMap("temper-progress")
	m.stopped = make(chan struct{})
	m.server = &http.Server{
		Addr: addr,
	}

	// Help the user and redirect to the only thing currently available:
	// the handler from the expvar package
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/vars", http.StatusTemporaryRedirect)
	})

	m.NumChains = expvar.NewInt("Chain-Count")
	m.NumSamples = expvar.NewInt("Samples-Per-Chain")
	m.BurnIn = expvar.NewInt("Burn-In")
	m.StepsDone = expvar.NewInt("Steps-Done")
	m.TotalSteps = expvar.NewInt("Total-Steps")
	m.RunTime = expvar.NewFloat("Run-Time")

	// Actual server that will close the stopped channel on exit
	started := make(chan struct{})
	go func() {
		defer close(m.stopped)
		fmt.Fprintf(os.Stderr, "HTTP now available at %v (see debug/vars/)\n", m.server.Addr)
		close(started)
		m.server.ListenAndServe()
	}()

	<-started
	return nil
}

func (m *monitor) Stop() {
	if m.info == nil {
		return
	}

	m.server.Close()

	select {
	case <-m.stopped:
		fmt.Fprintf(os.Stderr, "HTTP Info Stopped\n")
	case <-time.After(2 * time.Second):
		fmt.Fprintf(os.Stderr, "HTTP would NOT stop: just continuing on\n")
	}
}
