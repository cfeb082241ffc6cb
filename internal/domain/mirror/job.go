package mirror

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/shared/id"
	"github.com/GriffinCanCode/sitepack/internal/shared/utils"
)

// State is a position in the request pipeline
type State string

const (
	StateIdle               State = "idle"
	StatePreparingDirectory State = "preparing_directory"
	StateCrawling           State = "crawling"
	StatePostProcessing     State = "post_processing"
	StateArchiving          State = "archiving"
	StateResponding         State = "responding"
	StateCleanup            State = "cleanup"
	StateFailed             State = "failed"
)

var transitions = map[State][]State{
	StateIdle:               {StatePreparingDirectory},
	StatePreparingDirectory: {StateCrawling, StateFailed},
	StateCrawling:           {StatePostProcessing, StateFailed},
	StatePostProcessing:     {StateArchiving, StateFailed},
	StateArchiving:          {StateResponding, StateFailed},
	StateResponding:         {StateCleanup, StateFailed},
	StateCleanup:            {StateIdle, StateFailed},
	StateFailed:             {StateCleanup, StateIdle},
}

// CanTransition reports whether the pipeline may move from one state to another
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one in-flight download request
type Job struct {
	ID        id.JobID
	URL       string
	Name      string
	Dir       string
	UserAgent string
	CreatedAt time.Time

	mu        sync.RWMutex
	state     State
	updatedAt time.Time
	err       error
}

// Snapshot is a read-only copy of a job
type Snapshot struct {
	ID        id.JobID  `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// State returns the job's current state
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Err returns the error that failed the job, if any
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Snapshot copies the job's current fields
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Snapshot{
		ID:        j.ID,
		URL:       j.URL,
		Name:      j.Name,
		State:     j.state,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.updatedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

func (j *Job) transition(to State) (State, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	from := j.state
	if !CanTransition(from, to) {
		return from, fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	j.state = to
	j.updatedAt = time.Now()
	return from, nil
}

func (j *Job) setErr(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
}

// DeriveName returns the archive and directory name for rawURL: the text
// before the first "." once a leading http:// or https:// is removed. The
// result must be usable as a single path segment.
func DeriveName(rawURL string) (string, error) {
	if err := utils.ValidateURL(rawURL); err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(rawURL)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(trimmed, scheme) {
			trimmed = trimmed[len(scheme):]
			break
		}
	}

	name, _, _ := strings.Cut(trimmed, ".")
	if name == "" {
		return "", errors.New("url yields an empty name")
	}
	if err := utils.ValidateSegment(name, "name"); err != nil {
		return "", err
	}
	return name, nil
}
