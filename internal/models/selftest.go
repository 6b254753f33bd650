package models

import "time"

// TestStatus результат сценария самопроверки.
type TestStatus string

const (
	TestPass TestStatus = "PASS"
	TestFail TestStatus = "FAIL"
)

// TestResult итог одного сценария самопроверки.
type TestResult struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    TestStatus    `json:"status"`
	Details   string        `json:"details"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// DummyRunSelfTest тело запроса на прогон самопроверки.
// Пустой список запускает все сценарии.
type DummyRunSelfTest struct {
	IDs []string `json:"ids" validate:"omitempty,max=50,dive,required,max=16"`
}
