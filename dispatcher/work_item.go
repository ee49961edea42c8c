package dispatcher

import (
	"time"

	"github.com/google/uuid"

	"github.com/JohnPlummer/batch-scorer/scorer"
)

// Reply is one element of a result channel: either the result for the text
// at the same position or the error that prevented scoring it.
type Reply struct {
	Result scorer.Result
	Err    error
}

// WorkItem pairs the texts of one caller with that caller's private result
// channel. It is not modified after creation.
type WorkItem struct {
	ID       string
	Texts    []string
	Enqueued time.Time

	// reply is buffered to len(Texts) so the worker never blocks on it
	reply chan Reply
}

func newWorkItem(texts []string) *WorkItem {
	return &WorkItem{
		ID:       uuid.NewString(),
		Texts:    texts,
		Enqueued: time.Now(),
		reply:    make(chan Reply, len(texts)),
	}
}

// fail writes err once per text
func (w *WorkItem) fail(err error) {
	for range w.Texts {
		w.reply <- Reply{Err: err}
	}
}

// deliver writes results in input order
func (w *WorkItem) deliver(results []scorer.Result) {
	for _, r := range results {
		w.reply <- Reply{Result: r}
	}
}
