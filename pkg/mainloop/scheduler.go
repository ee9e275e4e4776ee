package mainloop

// Scheduler runs tasks on the goroutine that may read live participant
// state and deliver to participants. Loop implements it.
type Scheduler interface {
	Submit(task func()) error
}

// Inline runs tasks immediately in the caller's goroutine.
type Inline struct{}

// Submit runs task before returning.
func (Inline) Submit(task func()) error {
	task()
	return nil
}

var _ Scheduler = (*Loop)(nil)
