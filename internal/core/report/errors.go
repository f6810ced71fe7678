package report

import "errors"

var (
	ErrInvalidID          = errors.New("report: invalid id")
	ErrWorkReportNotFound = errors.New("report: work report not found")
)
