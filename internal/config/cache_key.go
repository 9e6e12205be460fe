package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AttemptStartKey returns the cache key for an attempt's authoritative start time
func (r *CacheKeyStruct) AttemptStartKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:attempt_start", studentID, testID)
}

// AttemptAnswersKey returns the cache key for an attempt's autosaved answers
func (r *CacheKeyStruct) AttemptAnswersKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:answers", studentID, testID)
}

// TestPayloadKey returns the cache key for a test's question payload
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// TestDurationKey returns the cache key for a test's time limit
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// StudentActiveTestKey returns the cache key for a student's currently active test
func (r *CacheKeyStruct) StudentActiveTestKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_test", studentID)
}

// PendingSubmissionKey returns the cache key holding a submission snapshot
// written when a session escalates, consumed exactly once.
func (r *CacheKeyStruct) PendingSubmissionKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:pending_submission", attemptID)
}

// BeaconTokenKey returns the cache key for a single-use beacon submit token
func (r *CacheKeyStruct) BeaconTokenKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:beacon_token", attemptID)
}

var CacheKey = NewCacheKeyStruct()
