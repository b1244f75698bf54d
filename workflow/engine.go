package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jing2uo/rufeng/analyzer"
	"github.com/jing2uo/rufeng/config"
	"github.com/jing2uo/rufeng/database"
	"github.com/jing2uo/rufeng/datamanager"
	"github.com/jing2uo/rufeng/logger"
)

// TaskState represents the state of a task execution
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateSkipped   TaskState = "skipped"
	StateFailed    TaskState = "failed"
)

// TaskResult holds the execution result of a task
type TaskResult struct {
	State   TaskState
	Rows    int
	Message string
	Error   error
}

type ErrorMode int

const (
	ErrorModeStop ErrorMode = iota
	ErrorModeSkip
)

// TaskFunc is the function that executes a task
type TaskFunc func(ctx context.Context, db database.DataRepository, args *TaskArgs) (*TaskResult, error)

// SkipCondition determines if a task should be skipped
type SkipCondition func(ctx context.Context, db database.DataRepository, args *TaskArgs) bool

// Task represents a unit of work with dependencies
type Task struct {
	Name      string
	DependsOn []string
	Executor  TaskFunc
	SkipIf    SkipCondition
	OnError   ErrorMode
}

// TaskArgs is shared by every task of a run. Tasks running in the same
// wave must not write the same field.
type TaskArgs struct {
	Config  *config.Config
	Manager *datamanager.Manager
	Threads int
	Force   bool
	// Offline skips the remote sync and works on stored data.
	Offline   bool
	OutputDir string
	Today     time.Time

	Analysis     *analyzer.Result
	SelectedFile string
}

// TaskExecutor manages and executes tasks with dependency resolution
type TaskExecutor struct {
	db    database.DataRepository
	tasks map[string]*Task
	log   *logger.Entry
}

// NewTaskExecutor creates a new task executor
func NewTaskExecutor(db database.DataRepository, tasks map[string]*Task) *TaskExecutor {
	return &TaskExecutor{
		db:    db,
		tasks: tasks,
		log:   logger.GetLogger().WithComponent("workflow"),
	}
}

// Run executes taskNames in dependency order. Tasks whose dependencies are
// all done run concurrently. A failed task with ErrorModeSkip skips its
// dependents instead of stopping the run.
func (te *TaskExecutor) Run(ctx context.Context, taskNames []string, args *TaskArgs) (map[string]*TaskResult, error) {
	results := make(map[string]*TaskResult)
	if len(taskNames) == 0 {
		return results, nil
	}

	order, err := te.topologicalSort(taskNames)
	if err != nil {
		return results, fmt.Errorf("failed to resolve task dependencies: %w", err)
	}

	pending := make(map[string]bool)
	for _, name := range order {
		pending[name] = true
	}

	var mu sync.Mutex
	blocked := make(map[string]bool)
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		te.skipBlocked(pending, results, blocked)
		if len(pending) == 0 {
			break
		}

		ready := te.findReadyTasks(pending, results)
		if len(ready) == 0 {
			return results, fmt.Errorf("circular dependency detected or no ready tasks")
		}

		var wg sync.WaitGroup
		var started []string
		for _, name := range ready {
			task := te.tasks[name]

			if task.SkipIf != nil && task.SkipIf(ctx, te.db, args) {
				mu.Lock()
				results[name] = &TaskResult{State: StateSkipped, Message: "skipped by condition"}
				mu.Unlock()
				te.log.WithFields(logger.Fields{"task": name}).Info("task skipped")
				delete(pending, name)
				continue
			}

			started = append(started, name)
			wg.Add(1)
			go func(n string, t *Task) {
				defer wg.Done()
				r := te.executeTask(ctx, t, args)
				mu.Lock()
				results[n] = r
				mu.Unlock()
			}(name, task)
		}

		wg.Wait()

		for _, name := range started {
			result := results[name]
			if result.Error != nil && te.tasks[name].OnError == ErrorModeStop {
				return results, fmt.Errorf("task %s failed: %w", name, result.Error)
			}
			delete(pending, name)
		}
	}

	return results, nil
}

func (te *TaskExecutor) executeTask(ctx context.Context, task *Task, args *TaskArgs) *TaskResult {
	entry := te.log.WithFields(logger.Fields{"task": task.Name})
	started := time.Now()

	result, err := task.Executor(ctx, te.db, args)
	if err != nil {
		entry.WithError(err).Error("task failed")
		return &TaskResult{
			State: StateFailed,
			Error: err,
		}
	}
	if result == nil {
		result = &TaskResult{}
	}
	if result.State == "" {
		result.State = StateCompleted
	}
	logger.LogPerformanceEntry(entry, task.Name, time.Since(started), logger.Fields{"rows": result.Rows})
	return result
}

// skipBlocked marks pending tasks whose dependency failed, or was itself
// blocked, as skipped.
func (te *TaskExecutor) skipBlocked(pending map[string]bool, results map[string]*TaskResult, blocked map[string]bool) {
	for changed := true; changed; {
		changed = false
		for _, name := range sortedKeys(pending) {
			for _, dep := range te.tasks[name].DependsOn {
				r, ok := results[dep]
				if !ok || (r.State != StateFailed && !blocked[dep]) {
					continue
				}
				results[name] = &TaskResult{State: StateSkipped, Message: fmt.Sprintf("dependency %s did not complete", dep)}
				blocked[name] = true
				delete(pending, name)
				changed = true
				break
			}
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (te *TaskExecutor) topologicalSort(taskNames []string) ([]string, error) {
	inDegree := make(map[string]int)
	adj := make(map[string][]string)
	taskSet := make(map[string]bool)

	for _, name := range taskNames {
		if _, exists := te.tasks[name]; !exists {
			return nil, fmt.Errorf("task %s not found", name)
		}
		taskSet[name] = true
		inDegree[name] = 0
	}

	for _, name := range taskNames {
		task := te.tasks[name]
		for _, dep := range task.DependsOn {
			if !taskSet[dep] {
				continue
			}
			adj[dep] = append(adj[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for _, name := range sortedKeys(taskSet) {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, neighbor := range adj[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(order) != len(taskNames) {
		return nil, fmt.Errorf("circular dependency detected")
	}

	return order, nil
}

// findReadyTasks returns pending tasks whose dependencies are done.
// Dependencies not requested in this run are ignored.
func (te *TaskExecutor) findReadyTasks(pending map[string]bool, results map[string]*TaskResult) []string {
	var ready []string

	for _, name := range sortedKeys(pending) {
		task := te.tasks[name]

		allDepsDone := true
		for _, dep := range task.DependsOn {
			result, exists := results[dep]
			if pending[dep] || (exists && result.State != StateCompleted && result.State != StateSkipped) {
				allDepsDone = false
				break
			}
		}

		if allDepsDone {
			ready = append(ready, name)
		}
	}

	return ready
}

func (te *TaskExecutor) GetTaskNames() []string {
	names := make([]string, 0, len(te.tasks))
	for name := range te.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (te *TaskExecutor) HasTask(name string) bool {
	_, exists := te.tasks[name]
	return exists
}
