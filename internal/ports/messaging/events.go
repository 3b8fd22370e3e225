package messaging

import "time"

// PayrollEvent is the JSON payload sent via SQS for the payroll export queue
// once a day's attendance is completed.
type PayrollEvent struct {
	AttendanceID int64     `json:"attendanceId"`
	EmployeeID   string    `json:"employeeId"`
	Date         string    `json:"date"`
	HoursWorked  float64   `json:"hoursWorked"`
	PunchOutTime time.Time `json:"punchOutTime"`
}

// EmailEvent is the JSON payload sent via SQS for the summary email queue.
type EmailEvent struct {
	AttendanceID int64     `json:"attendanceId"`
	EmployeeID   string    `json:"employeeId"`
	HoursWorked  float64   `json:"hoursWorked"`
	OccurredAt   time.Time `json:"occurredAt"`
}
