package tasks

import (
	"strings"
	"unicode"
)

// Code is the per-worker outcome of one run invocation.
type Code int

const (
	Continue Code = 0
	Renew    Code = 3
	Finish   Code = 7
	Delete   Code = 15
)

// Normalize maps unknown codes to Delete; a task that reports garbage is
// treated as permanently invalid.
func (c Code) Normalize() Code {
	switch c {
	case Continue, Renew, Finish, Delete:
		return c
	default:
		return Delete
	}
}

func (c Code) String() string {
	switch c {
	case Continue:
		return "CONTINUE"
	case Renew:
		return "RENEW"
	case Finish:
		return "FINISH"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

type Category string

const (
	Basic  Category = "basic"
	Medium Category = "medium"
)

// CategoryOf derives the category from the first letter of a taskType:
// lower case is basic, upper case is medium.
func CategoryOf(taskType string) Category {
	for _, r := range taskType {
		if unicode.IsUpper(r) {
			return Medium
		}
		return Basic
	}
	return Basic
}

type Kind string

const (
	KindAttached Kind = "ATTACHED"
	KindAcross   Kind = "ACROSS"
)

// Identity locates a task. Attached tasks live at Home; Across tasks aim at
// TargetRoom and are offered to rooms within MaxRange of it, at most
// MaxReceivedRooms of them (0 means no cap).
type Identity struct {
	Kind             Kind   `json:"kind"`
	TaskType         string `json:"taskType"`
	SubTaskType      string `json:"subTaskType"`
	Home             string `json:"home,omitempty"`
	TargetRoom       string `json:"targetRoom,omitempty"`
	MaxRange         int    `json:"maxRange,omitempty"`
	MaxReceivedRooms int    `json:"maxReceivedRooms,omitempty"`
}

func Attached(home, taskType, subTaskType string) Identity {
	return Identity{Kind: KindAttached, TaskType: taskType, SubTaskType: subTaskType, Home: home}
}

func Across(targetRoom, taskType, subTaskType string, maxRange, maxReceivedRooms int) Identity {
	return Identity{
		Kind:             KindAcross,
		TaskType:         taskType,
		SubTaskType:      subTaskType,
		TargetRoom:       targetRoom,
		MaxRange:         maxRange,
		MaxReceivedRooms: maxReceivedRooms,
	}
}

// Anchor is the room the task is performed at.
func (id Identity) Anchor() string {
	if id.Kind == KindAcross {
		return id.TargetRoom
	}
	return id.Home
}

// Path is the tree path of the task when admitted at room.
func (id Identity) Path(room string) []string {
	return []string{room, id.TaskType, id.SubTaskType}
}

func (id Identity) Category() Category { return CategoryOf(id.TaskType) }

// Key is a (taskType, subTaskType) pair.
type Key struct {
	TaskType    string `json:"taskType"`
	SubTaskType string `json:"subTaskType"`
}

func (k Key) String() string { return k.TaskType + "/" + k.SubTaskType }

func (id Identity) Key() Key { return Key{TaskType: id.TaskType, SubTaskType: id.SubTaskType} }

// Settings are the mutable bookkeeping of a task.
type Settings struct {
	Received Received `json:"received"`
	// Revoked is set once any worker reported Delete; the task is never
	// re-admitted to the pool afterwards.
	Revoked bool `json:"revoked,omitempty"`
}

// Task is a unit of work. Behavior is not persisted and must be re-attached
// through a Registry after loading.
type Task struct {
	ID       string         `json:"id"`
	Identity Identity       `json:"identity"`
	Data     map[string]any `json:"data,omitempty"`
	// Priority is the receive priority: lower is picked up first.
	Priority float64        `json:"priority"`
	Settings Settings       `json:"settings"`
	Options  map[string]any `json:"options,omitempty"`

	Behavior `json:"-"`
}

// New builds a task whose id is the fingerprint of salt, identity and data with
// the omitted keys dropped. A nil or empty max defaults to one worker of any role.
func New(salt int64, identity Identity, data map[string]any, max Quota, omit ...string) *Task {
	return &Task{
		ID:       Fingerprint(salt, fingerprintInput{Identity: identity, Data: data}, omit),
		Identity: identity,
		Data:     data,
		Settings: Settings{Received: NewReceived(max)},
	}
}

type fingerprintInput struct {
	Identity Identity       `json:"identity"`
	Data     map[string]any `json:"data,omitempty"`
}

func (t *Task) Category() Category { return t.Identity.Category() }

// String is used in logs.
func (t *Task) String() string {
	var b strings.Builder
	b.WriteString(t.ID)
	b.WriteString("[")
	b.WriteString(t.Identity.Anchor())
	b.WriteString(" ")
	b.WriteString(t.Identity.Key().String())
	b.WriteString("]")
	return b.String()
}

// Issued is one follow-up task of a callback batch.
type Issued struct {
	Task    *Task
	Silence bool
}

type (
	RunFunc            func(t *Task, workers []*Worker) []Code
	CallbackFunc       func(t *Task) []Issued
	EarlyTerminateFunc func(t *Task, w *Worker, home string) bool
)

// Behavior is what a task does. Only Run is required.
type Behavior struct {
	Run            RunFunc
	Callback       CallbackFunc
	EarlyTerminate EarlyTerminateFunc
}
