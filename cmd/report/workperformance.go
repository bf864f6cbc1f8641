package report

import (
	"fmt"
	"sort"
	"strconv"
)

const WorkPerformanceTitle = "รายงานสรุปการทำความสะอาด (Maid Report)"

// Session status codes as stored in check_sessions.
const (
	StatusPass     = "pass"
	StatusApproved = "approved"
	StatusFixed    = "fixed"
	StatusFail     = "fail"
	StatusRejected = "rejected"
	StatusWaiting  = "waiting"
)

const (
	systemInspectorName = "Admin (System)"
	systemInspectorRole = "ผู้ดูแลระบบ"
)

var statusLabels = map[string]string{
	StatusPass:     "รอตรวจ",
	StatusApproved: "ตรวจแล้ว",
	StatusFixed:    "แก้ไขแล้ว",
	StatusFail:     "พบปัญหา",
	StatusRejected: "ปฏิเสธ",
	StatusWaiting:  "รอตรวจ",
}

var roleLabels = map[string]string{
	"admin":      "ผู้ดูแลระบบ",
	"supervisor": "หัวหน้างาน",
	"user":       "พนักงานทั่วไป",
	"maid":       "แม่บ้าน",
	"cleaner":    "พนักงานทำความสะอาด",
}

// StatusLabel translates a status code; unknown codes pass through.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// RoleLabel translates an employee role; unknown roles pass through.
func RoleLabel(role string) string {
	if label, ok := roleLabels[role]; ok {
		return label
	}
	return orDash(role)
}

func reviewed(status string) bool {
	return status == StatusApproved || status == StatusRejected || status == StatusFixed
}

// WorkPerformanceSubtitle renders the date range line of the work report.
func WorkPerformanceSubtitle(rng DateRange) string {
	return fmt.Sprintf("ช่วงวันที่: %s ถึง %s", ThaiDate(rng.Start), ThaiDate(rng.End))
}

// BuildWorkPerformanceTable lays check sessions out in creation order with
// their round number within (date, location, shift).
func BuildWorkPerformanceTable(rows []CheckSession, rng DateRange) (*Table, error) {
	groups := []HeaderGroup{
		{Title: "ลำดับ"},
		{Title: "รหัสงาน"},
		{Title: "วัน/เดือน/ปี"},
		{Title: "ชื่อพนักงาน"},
		{Title: "อาคาร"},
		{Title: "ชั้น"},
		{Title: "ชื่อจุดตรวจ"},
		{Title: "ข้อมูลงานทำความสะอาด", Columns: []string{"ครั้งที่", "ประทับเวลา", "ช่วงการทำงาน"}},
		{Title: "ข้อมูลติดตามงาน", Columns: []string{"สถานะ", "วัน/เดือน/ปี", "เวลา", "ชื่อผู้ตรวจ", "ตำแหน่ง"}},
		{Title: "หมายเหตุ"},
	}

	sorted := make([]CheckSession, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sessionLess(sorted[i], sorted[j]) })
	rounds := AssignRounds(sorted)

	data := make([][]string, 0, len(sorted))
	for i, s := range sorted {
		var reviewDate, reviewTime, inspectorName, inspectorRole string
		if reviewed(s.Status) {
			at := s.CreatedAt
			if s.UpdatedAt != nil {
				at = *s.UpdatedAt
			}
			reviewDate = ThaiDate(at)
			reviewTime = ThaiTime(at)

			switch {
			case s.Inspector != nil:
				inspectorName = s.Inspector.FullName()
				inspectorRole = RoleLabel(s.Inspector.Role)
			case s.Status == StatusApproved:
				inspectorName = systemInspectorName
				inspectorRole = systemInspectorRole
			}
		}

		sessionDate := s.SessionDate
		if sessionDate.IsZero() {
			sessionDate = s.CreatedAt
		}

		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(s.ID, 10),
			ThaiDate(sessionDate),
			s.Employee.FullName(),
			orDash(s.Location.Building),
			orDash(s.Location.Floor),
			orDash(s.Location.Name),
			strconv.Itoa(rounds[i]),
			ThaiTime(s.CreatedAt),
			ShiftOf(s).Label(),
			StatusLabel(s.Status),
			reviewDate,
			reviewTime,
			inspectorName,
			inspectorRole,
			s.SupervisorComment,
		})
	}

	return NewTable(WorkPerformanceTitle, WorkPerformanceSubtitle(rng), groups, data)
}

// WorkPerformanceIDColumn is the zero-based column holding the session ID.
const WorkPerformanceIDColumn = 1
