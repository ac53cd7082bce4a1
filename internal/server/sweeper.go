package server

import (
	"context"
	"log"
	"time"

	"warroom/internal/engine"
)

const defaultSweepInterval = time.Second

// startDeadlineSweeper runs the time-driven mission transitions while
// the server is up: due scheduled missions open for recruiting, and
// teams that run out the clock get their drafts force-submitted.
func startDeadlineSweeper(e engine.Engine, arenaID string) {
	go func() {
		ticker := time.NewTicker(defaultSweepInterval)
		defer ticker.Stop()
		for {
			if err := e.Sweep(context.Background(), arenaID); err != nil {
				log.Printf("sweep: %v", err)
			}
			<-ticker.C
		}
	}()
}
