package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter renders a single updating status line while a command
// waits on the daemon. A printer is single-use: Start once, Stop once.
// Reaching a stop phase through the Callback shuts it down on its own.
type ProgressPrinter struct {
	prefix     string
	phase      atomic.Value
	stopPhases map[string]struct{}

	countdown time.Duration // zero means count elapsed time up

	startTime time.Time
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewProgressPrinter shows elapsed time next to the current phase.
func NewProgressPrinter(prefix, phase string, stopPhases ...string) *ProgressPrinter {
	return newPrinter(prefix, phase, 0, stopPhases)
}

// NewCountdownProgressPrinter counts down from duration instead.
func NewCountdownProgressPrinter(prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	return newPrinter(prefix, phase, duration, stopPhases)
}

func newPrinter(prefix, phase string, countdown time.Duration, stopPhases []string) *ProgressPrinter {
	p := &ProgressPrinter{
		prefix:     prefix,
		stopPhases: make(map[string]struct{}, len(stopPhases)),
		countdown:  countdown,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, s := range stopPhases {
		p.stopPhases[s] = struct{}{}
	}
	p.phase.Store(phase)
	return p
}

// Start begins rendering in a background goroutine.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()
	p.print()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				if _, isStop := p.stopPhases[p.currentPhase()]; isStop {
					return
				}
				p.print()
			}
		}
	}()
}

func (p *ProgressPrinter) currentPhase() string {
	return p.phase.Load().(string)
}

func (p *ProgressPrinter) print() {
	seconds := 0
	if p.countdown > 0 {
		if remaining := p.countdown - time.Since(p.startTime); remaining > 0 {
			seconds = int(remaining.Seconds() + 0.5)
		}
	} else {
		seconds = int(time.Since(p.startTime).Seconds())
	}

	if seconds > 0 {
		fmt.Printf("\r%s (%s %ds)   ", p.prefix, p.currentPhase(), seconds)
	} else {
		fmt.Printf("\r%s (%s...)   ", p.prefix, p.currentPhase())
	}
}

// Callback adapts the printer into a phase callback. Safe for concurrent
// use; a stop phase stops the printer.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, isStop := p.stopPhases[phase]; isStop {
			p.Stop()
		}
	}
}

// Stop ends rendering and clears the line. Safe to call more than once
// and from multiple goroutines.
func (p *ProgressPrinter) Stop() {
	if !p.started.Load() {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
		fmt.Print(clearLineSequence)
	})
}
