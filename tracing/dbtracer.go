package tracing

import (
	"sync"

	"github.com/sarchlab/htif/datarecording"
)

// TraceTable is the table the DBTracer writes tasks to.
const TraceTable = "trace"

// TraceStepTable is the table the DBTracer writes task steps to.
const TraceStepTable = "trace_step"

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime uint64
	EndTime   uint64
}

type stepTableEntry struct {
	TaskID string
	Time   uint64
	What   string
}

// DBTracer writes completed tasks to a DataRecorder.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller TimeTeller
	backend    datarecording.DataRecorder
	filter     TaskFilter

	tracingTasks map[string]Task
}

// NewDBTracer creates the trace tables in the recorder.
func NewDBTracer(
	timeTeller TimeTeller,
	recorder datarecording.DataRecorder,
) *DBTracer {
	recorder.CreateTable(TraceTable, taskTableEntry{})
	recorder.CreateTable(TraceStepTable, stepTableEntry{})

	return &DBTracer{
		timeTeller:   timeTeller,
		backend:      recorder,
		filter:       AllTasks,
		tracingTasks: make(map[string]Task),
	}
}

// SetFilter limits the traced tasks.
func (t *DBTracer) SetFilter(filter TaskFilter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.filter = filter
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.filter(task) {
		return
	}

	task.StartTime = t.timeTeller.CurrentTime()
	t.tracingTasks[task.ID] = task
}

// StepTask records a step of a task that is traced.
func (t *DBTracer) StepTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tracingTasks[task.ID]; !ok {
		return
	}

	t.backend.InsertData(TraceStepTable, stepTableEntry{
		TaskID: task.ID,
		Time:   uint64(t.timeTeller.CurrentTime()),
		What:   task.Steps[0].What,
	})
}

// EndTask writes the task.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	original.EndTime = t.timeTeller.CurrentTime()
	t.write(original)
	delete(t.tracingTasks, task.ID)
}

// Terminate writes the tasks that have not ended, with the current time as
// their end, and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.timeTeller.CurrentTime()
	for id, task := range t.tracingTasks {
		task.EndTime = now
		t.write(task)
		delete(t.tracingTasks, id)
	}

	t.backend.Flush()
}

func (t *DBTracer) write(task Task) {
	t.backend.InsertData(TraceTable, taskTableEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Where,
		StartTime: uint64(task.StartTime),
		EndTime:   uint64(task.EndTime),
	})
}
