package core

// RetryLedger counts dispatch attempts per file index. A file may be
// dispatched maxRetries+1 times in total.
type RetryLedger struct {
	maxRetries int
	attempts   map[int]int
}

func NewRetryLedger(maxRetries int) *RetryLedger {
	return &RetryLedger{maxRetries: max(0, maxRetries), attempts: make(map[int]int)}
}

// Charge records a dispatch of file and returns its attempt number.
func (l *RetryLedger) Charge(file int) int {
	l.attempts[file]++
	return l.attempts[file]
}

// Refund reverses a Charge for a dispatch that never reached a worker.
func (l *RetryLedger) Refund(file int) {
	if l.attempts[file] > 0 {
		l.attempts[file]--
	}
}

func (l *RetryLedger) Attempts(file int) int {
	return l.attempts[file]
}

// CanRetry reports whether a file that just failed transiently may be
// dispatched again.
func (l *RetryLedger) CanRetry(file int) bool {
	return l.attempts[file] <= l.maxRetries
}

func (l *RetryLedger) MaxRetries() int {
	return l.maxRetries
}
