package job

import "context"

type Flusher interface {
	Flush(ctx context.Context) error
}

// IndexFlushJob writes pending index changes to the backing store.
type IndexFlushJob struct {
	index Flusher
}

func NewIndexFlushJob(index Flusher) *IndexFlushJob {
	return &IndexFlushJob{index: index}
}

func (j *IndexFlushJob) Name() string {
	return "index_flush"
}

func (j *IndexFlushJob) Run(ctx context.Context) error {
	if j.index == nil {
		return nil
	}
	return j.index.Flush(ctx)
}
