package bus

import (
	"context"
	"time"

	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/realtime"
)

// JobNotifier publishes job lifecycle events onto the bus. All publishes are
// best effort with a short timeout; a broken bus never stalls a pipeline.
type JobNotifier struct {
	log *logger.Logger
	bus Bus
}

func NewJobNotifier(b Bus, baseLog *logger.Logger) *JobNotifier {
	return &JobNotifier{
		log: baseLog.With("service", "JobNotifier"),
		bus: b,
	}
}

func (n *JobNotifier) publish(ev realtime.Event) {
	if n == nil || n.bus == nil {
		return
	}
	ev.At = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("Event publish failed", "kind", ev.Kind, "job_id", ev.JobID, "error", err)
	}
}

func (n *JobNotifier) event(kind string, job *types.JobRun) realtime.Event {
	ev := realtime.Event{Kind: kind}
	if job != nil {
		ev.JobID = job.ID
		ev.JobType = job.JobType
		ev.EntityType = job.EntityType
		ev.EntityID = job.EntityID
		ev.Stage = job.Stage
		ev.Progress = job.Progress
	}
	return ev
}

func (n *JobNotifier) JobCreated(job *types.JobRun) {
	n.publish(n.event(realtime.EventJobCreated, job))
}

func (n *JobNotifier) JobProgress(job *types.JobRun, stage string, pct int, msg string) {
	ev := n.event(realtime.EventJobProgress, job)
	ev.Stage = stage
	ev.Progress = pct
	ev.Message = msg
	n.publish(ev)
}

func (n *JobNotifier) JobDone(job *types.JobRun) {
	n.publish(n.event(realtime.EventJobDone, job))
}

func (n *JobNotifier) JobFailed(job *types.JobRun, stage string, msg string) {
	ev := n.event(realtime.EventJobFailed, job)
	ev.Stage = stage
	ev.Error = msg
	n.publish(ev)
}

func (n *JobNotifier) JobCanceled(job *types.JobRun) {
	n.publish(n.event(realtime.EventJobCanceled, job))
}

func (n *JobNotifier) JobRestarted(job *types.JobRun) {
	n.publish(n.event(realtime.EventJobRestarted, job))
}

// DocumentComplete announces a terminal document status flip.
func (n *JobNotifier) DocumentComplete(documentID string, failed bool) {
	kind := realtime.EventDocComplete
	if failed {
		kind = realtime.EventDocFailed
	}
	ev := realtime.Event{Kind: kind, Message: documentID}
	n.publish(ev)
}
