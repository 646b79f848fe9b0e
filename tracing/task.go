package tracing

// VTime counts the idle quanta the target has run. It is the clock of the
// traces.
type VTime uint64

// A TimeTeller tells the current time.
type TimeTeller interface {
	CurrentTime() VTime
}

// A TaskStep is a milestone in the processing of a task.
type TaskStep struct {
	Time VTime  `json:"time"`
	What string `json:"what"`
}

// A Task is a traced piece of work, such as one dispatched command.
type Task struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id"`
	Kind      string     `json:"kind"`
	What      string     `json:"what"`
	Where     string     `json:"where"`
	StartTime VTime      `json:"start_time"`
	EndTime   VTime      `json:"end_time"`
	Steps     []TaskStep `json:"steps"`
	Detail    any        `json:"-"`
}

// TaskFilter selects the tasks a tracer keeps.
type TaskFilter func(t Task) bool

// AllTasks keeps every task.
func AllTasks(Task) bool {
	return true
}
