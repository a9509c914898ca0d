package tasks

// Worker is an agent that holds at most one task. A worker with an empty
// TaskID is idle.
type Worker struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Home    string `json:"home"`
	TaskID  string `json:"taskId,omitempty"`
	Working bool   `json:"working,omitempty"`
	// EarlyTerminated lists task kinds this worker bailed out of since it was
	// last renewed.
	EarlyTerminated []Key `json:"earlyTerminated,omitempty"`
}

func (w *Worker) Idle() bool { return w.TaskID == "" }

func (w *Worker) HasEarlyTerminated(k Key) bool {
	for _, e := range w.EarlyTerminated {
		if e == k {
			return true
		}
	}
	return false
}

func (w *Worker) MarkEarlyTerminated(k Key) {
	if !w.HasEarlyTerminated(k) {
		w.EarlyTerminated = append(w.EarlyTerminated, k)
	}
}

// Renew is called when the worker is respawned or refreshed.
func (w *Worker) Renew() {
	w.EarlyTerminated = nil
	w.Working = false
}

// Release detaches the worker from its task.
func (w *Worker) Release() {
	w.TaskID = ""
	w.Working = false
}
