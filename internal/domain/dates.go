package domain

import "time"

const dateLayout = "2006-01-02"

// ValidDate проверяет календарную дату формата YYYY-MM-DD.
func ValidDate(date string) bool {
	_, err := time.Parse(dateLayout, date)
	return err == nil
}

// PreviousDate возвращает предыдущую календарную дату.
func PreviousDate(date string) (string, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -1).Format(dateLayout), nil
}
