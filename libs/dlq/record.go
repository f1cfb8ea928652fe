// Package dlq tracks messages whose broker delivery failed and drives them
// through the retry state machine:
//
//	PENDING_RETRY -> RETRY_IN_PROGRESS -> RETRY_SUCCEEDED
//	                                   -> PENDING_RETRY
//	                                   -> FAILED_PERMANENTLY
package dlq

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

type Status string

const (
	StatusPendingRetry      Status = "PENDING_RETRY"
	StatusRetryInProgress   Status = "RETRY_IN_PROGRESS"
	StatusRetrySucceeded    Status = "RETRY_SUCCEEDED"
	StatusFailedPermanently Status = "FAILED_PERMANENTLY"
)

var Statuses = []Status{StatusPendingRetry, StatusRetryInProgress, StatusRetrySucceeded, StatusFailedPermanently}

func (s Status) Terminal() bool {
	return s == StatusRetrySucceeded || s == StatusFailedPermanently
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

var (
	ErrNotFound          = errors.New("dlq message not found")
	ErrStaleTransition   = errors.New("dlq message is no longer in the expected status")
	ErrInvalidTransition = errors.New("invalid dlq status transition")
)

// CheckTransition enforces the state machine. An empty from status is the
// initial classification of a new record.
func CheckTransition(from Status, to Status) error {
	ok := false
	switch from {
	case "":
		ok = to == StatusPendingRetry || to == StatusFailedPermanently
	case StatusPendingRetry:
		ok = to == StatusRetryInProgress
	case StatusRetryInProgress:
		ok = to == StatusRetrySucceeded || to == StatusPendingRetry || to == StatusFailedPermanently
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Record is one tracked failed delivery.
type Record struct {
	MessageID     string            `json:"messageId"`
	OriginalTopic string            `json:"originalTopic"`
	MessageKey    string            `json:"messageKey"`
	Partition     int               `json:"partition"`
	Offset        int64             `json:"offset"`
	Payload       []byte            `json:"-"`
	Headers       map[string]string `json:"headers,omitempty"`
	ErrorMessage  string            `json:"errorMessage"`
	Status        Status            `json:"status"`
	RetryCount    int               `json:"retryCount"`
	Reason        string            `json:"reason"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Transition is one recorded status change.
type Transition struct {
	MessageID  string    `json:"messageId"`
	From       Status    `json:"from,omitempty"`
	To         Status    `json:"to"`
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retryCount"`
	At         time.Time `json:"at"`
}

// MessageID derives the stable record id of a failed delivery.
func MessageID(originalTopic string, key string, partition int, offset int64) string {
	if key == "" {
		key = "unknown"
	}
	return originalTopic + "-" + key + "-" + strconv.Itoa(partition) + "-" + strconv.FormatInt(offset, 10)
}
