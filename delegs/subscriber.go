package delegs

// Subscriber handles event subscriptions.
type Subscriber struct {
	done                  chan struct{}
	recoveredHandler      func(Recovered)
	startupFailedHandler  func(StartupFailed)
	scanStartedHandler    func(ScanStarted)
	cycleCompletedHandler func(CycleCompleted)
	cycleErrorHandler     func(CycleError)
	shutdownHandler       func(Shutdown)
}

// OnRecovered sets the handler for Recovered events
func OnRecovered(fn func(Recovered)) func(*Subscriber) {
	return func(s *Subscriber) { s.recoveredHandler = fn }
}

// OnStartupFailed sets the handler for StartupFailed events
func OnStartupFailed(fn func(StartupFailed)) func(*Subscriber) {
	return func(s *Subscriber) { s.startupFailedHandler = fn }
}

// OnScanStarted sets the handler for ScanStarted events
func OnScanStarted(fn func(ScanStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.scanStartedHandler = fn }
}

// OnCycleCompleted sets the handler for CycleCompleted events
func OnCycleCompleted(fn func(CycleCompleted)) func(*Subscriber) {
	return func(s *Subscriber) { s.cycleCompletedHandler = fn }
}

// OnCycleError sets the handler for CycleError events
func OnCycleError(fn func(CycleError)) func(*Subscriber) {
	return func(s *Subscriber) { s.cycleErrorHandler = fn }
}

// OnShutdown sets the handler for Shutdown events
func OnShutdown(fn func(Shutdown)) func(*Subscriber) {
	return func(s *Subscriber) { s.shutdownHandler = fn }
}

// NewSubscriber creates a Subscriber with the given options and starts the
// dispatch loop. Returns a closer function that waits for all events to be
// processed.
//
// Cleanup guarantee pattern:
//
//	The closer function ensures all events are handled before returning.
//	Use defer closer() immediately to guarantee cleanup before function exit.
//
// Example:
//
//	closer := delegs.NewSubscriber(events,
//	  delegs.OnCycleCompleted(func(e CycleCompleted) { ... }),
//	)
//	defer closer()  // Ensures all events processed before exit
//
// The subscriber processes events until the events channel closes,
// then the closer function confirms all processing is complete.
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:                  make(chan struct{}),
		recoveredHandler:      func(Recovered) {},      // nop by default
		startupFailedHandler:  func(StartupFailed) {},  // nop by default
		scanStartedHandler:    func(ScanStarted) {},    // nop by default
		cycleCompletedHandler: func(CycleCompleted) {}, // nop by default
		cycleErrorHandler:     func(CycleError) {},     // nop by default
		shutdownHandler:       func(Shutdown) {},       // nop by default
	}

	for _, opt := range opts {
		opt(s)
	}

	// Start the dispatch loop immediately
	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case Recovered:
				s.recoveredHandler(e)
			case StartupFailed:
				s.startupFailedHandler(e)
			case ScanStarted:
				s.scanStartedHandler(e)
			case CycleCompleted:
				s.cycleCompletedHandler(e)
			case CycleError:
				s.cycleErrorHandler(e)
			case Shutdown:
				s.shutdownHandler(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
