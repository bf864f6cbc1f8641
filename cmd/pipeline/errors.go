package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/airframesio/report-archiver/cmd/report"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDataSource        = errors.New("data source failure")
	ErrSerialization     = errors.New("serialization failure")
	ErrArchiveConflict   = errors.New("archive object already exists")
	ErrArchiveWrite      = errors.New("archive write failed")
	ErrArchiveRead       = errors.New("archive read failed")
	ErrCycleInProgress   = errors.New("close-cycle already in progress")
	ErrResumeUnsupported = errors.New("purge resume is not supported for this report")
)

// SpanError reports a range longer than the configured limit
type SpanError struct {
	MaxMonths int
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("date range exceeds %d months", e.MaxMonths)
}

func (e *SpanError) Unwrap() error {
	return report.ErrRangeTooLong
}

// PurgeError is returned when the archive was written but deletion stopped
// part way. Rows in completed batches are gone; RemainingIDs are untouched.
type PurgeError struct {
	Completed    int
	Total        int
	ArchiveKey   string
	RemainingIDs []int64
	Err          error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge incomplete: %d of %d batches completed, archive %s: %v",
		e.Completed, e.Total, e.ArchiveKey, e.Err)
}

func (e *PurgeError) Unwrap() error {
	return e.Err
}

// UserMessage renders err for the operator. Internal detail such as SQL or
// bucket names never appears here, except the archive key of a partial purge.
func UserMessage(err error) string {
	var purgeErr *PurgeError
	if errors.As(err, &purgeErr) {
		return fmt.Sprintf("ลบข้อมูลได้ %d จาก %d ชุด ไฟล์สำรองข้อมูลถูกบันทึกไว้ที่ %s กรุณาติดต่อผู้ดูแลระบบ",
			purgeErr.Completed, purgeErr.Total, purgeErr.ArchiveKey)
	}
	var spanErr *SpanError
	if errors.As(err, &spanErr) {
		return report.MaxSpanMessage(spanErr.MaxMonths)
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "คำขอไม่ถูกต้อง กรุณาตรวจสอบช่วงวันที่และรูปแบบไฟล์"
	case errors.Is(err, ErrUnauthorized):
		return "กรุณาเข้าสู่ระบบก่อนดาวน์โหลดรายงาน"
	case errors.Is(err, ErrDataSource):
		return "ไม่สามารถดึงข้อมูลจากฐานข้อมูลได้ กรุณาลองใหม่อีกครั้ง"
	case errors.Is(err, ErrSerialization):
		return "ไม่สามารถสร้างไฟล์รายงานได้"
	case errors.Is(err, ErrArchiveConflict):
		return "มีไฟล์สำรองข้อมูลชื่อเดียวกันอยู่แล้ว ระบบยังไม่ได้ลบข้อมูลใดๆ"
	case errors.Is(err, ErrArchiveWrite):
		return "บันทึกไฟล์สำรองข้อมูลไม่สำเร็จ ระบบยังไม่ได้ลบข้อมูลใดๆ"
	case errors.Is(err, ErrArchiveRead):
		return "ไม่สามารถอ่านไฟล์สำรองข้อมูลได้"
	case errors.Is(err, ErrCycleInProgress):
		return "มีการปิดรอบรายงานนี้กำลังดำเนินการอยู่ กรุณารอสักครู่"
	case errors.Is(err, ErrResumeUnsupported):
		return "รายงานประเภทนี้ไม่รองรับการลบข้อมูลต่อ กรุณาตรวจสอบข้อมูลด้วยตนเอง"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "คำขอถูกยกเลิกหรือใช้เวลานานเกินไป ระบบยังไม่ได้ลบข้อมูลใดๆ"
	default:
		return "เกิดข้อผิดพลาดภายในระบบ"
	}
}

// HTTPStatus maps err to a response status code
func HTTPStatus(err error) int {
	var purgeErr *PurgeError
	if errors.As(err, &purgeErr) {
		return http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrResumeUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrDataSource), errors.Is(err, ErrArchiveWrite), errors.Is(err, ErrArchiveRead):
		return http.StatusBadGateway
	case errors.Is(err, ErrArchiveConflict), errors.Is(err, ErrCycleInProgress):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
