package report

import (
	"fmt"
	"time"
)

// ReportZone is the fixed UTC+7 offset every report is rendered in.
var ReportZone = time.FixedZone("ICT", 7*60*60)

// buddhistEraOffset converts a Gregorian year to the Thai Buddhist Era.
const buddhistEraOffset = 543

var thaiShortMonths = [12]string{
	"ม.ค.", "ก.พ.", "มี.ค.", "เม.ย.", "พ.ค.", "มิ.ย.",
	"ก.ค.", "ส.ค.", "ก.ย.", "ต.ค.", "พ.ย.", "ธ.ค.",
}

var thaiLongMonths = [12]string{
	"มกราคม", "กุมภาพันธ์", "มีนาคม", "เมษายน", "พฤษภาคม", "มิถุนายน",
	"กรกฎาคม", "สิงหาคม", "กันยายน", "ตุลาคม", "พฤศจิกายน", "ธันวาคม",
}

func inZone(t time.Time) time.Time {
	return t.In(ReportZone)
}

func beYear(t time.Time) int {
	return t.Year() + buddhistEraOffset
}

// ThaiDate renders DD/MM/YYYY with a Buddhist Era year.
func ThaiDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = inZone(t)
	return fmt.Sprintf("%02d/%02d/%d", t.Day(), int(t.Month()), beYear(t))
}

// ThaiTime renders HH:MM.
func ThaiTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return inZone(t).Format("15:04")
}

// ThaiClock renders HH:MM:SS.
func ThaiClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return inZone(t).Format("15:04:05")
}

// ThaiShortDate renders "DD <abbreviated month> YYYY", e.g. "05 ม.ค. 2567".
func ThaiShortDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = inZone(t)
	return fmt.Sprintf("%02d %s %d", t.Day(), thaiShortMonths[t.Month()-1], beYear(t))
}

// ThaiLongDate renders "DD-<month name>-YYYY", e.g. "05-มกราคม-2567".
func ThaiLongDate(t time.Time) string {
	t = inZone(t)
	return fmt.Sprintf("%02d-%s-%d", t.Day(), thaiLongMonths[t.Month()-1], beYear(t))
}

// ThaiReadableDate renders "D <month name> YYYY" for confirmation prompts.
func ThaiReadableDate(t time.Time) string {
	t = inZone(t)
	return fmt.Sprintf("%d %s %d", t.Day(), thaiLongMonths[t.Month()-1], beYear(t))
}
