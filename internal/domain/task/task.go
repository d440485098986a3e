package task

import "encoding/json"

type Task interface {
	TaskType() string
	TaskValue() ([]byte, error)
}

// TaskTypes lists every task type that has a stream
var TaskTypes = []string{
	(&FailedLinkTask{}).TaskType(),
}

// DefaultTaskValue provides a common implementation for TaskValue
func DefaultTaskValue(task interface{}) ([]byte, error) {
	return json.Marshal(task)
}

func UnmarshalTask[T any](task []byte) (*T, error) {
	var t T
	if err := json.Unmarshal(task, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
