package validation

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	nameMinLength     = 2
	nameMaxLength     = 50
	emailMinLength    = 5
	emailMaxLength    = 254
	emailLocalMax     = 64
	emailDomainMax    = 253
	emailLabelMax     = 63
	studentIDMin      = 4
	studentIDMax      = 15
	employeeIDPrefix  = "EMP"
	employeeIDMinimum = 1000
	employeeIDMaximum = 999999
	courseNumberMin   = 100
	courseNumberMax   = 9999
	passwordMinLength = 8
	passwordMaxLength = 128
	maxIdenticalRun   = 4
)

var (
	digitsOnly        = regexp.MustCompile(`^\d+$`)
	hebrewNameChars   = regexp.MustCompile(`^[\x{0590}-\x{05FF} '".\-]+$`)
	hebrewLetter      = regexp.MustCompile(`[\x{05D0}-\x{05EA}]`)
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._%+\-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.\-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,6}$`)
	phoneSeparators   = regexp.MustCompile(`[\s\-().+/]`)
	studentIDPattern  = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	employeeIDPattern = regexp.MustCompile(`^` + employeeIDPrefix + `(\d{4,6})$`)
	courseCodePattern = regexp.MustCompile(`^([A-Za-z]{2,4})(\d{3,4})$`)

	// second digit of a 05X mobile prefix
	mobileCarriers = []byte{'0', '2', '3', '4', '5', '8'}
	// area codes without the trunk zero
	landlineAreaCodes = []string{"2", "3", "4", "8", "9", "72", "73", "74", "76", "77", "78", "79"}

	degenerateStudentIDs = []string{
		"0000", "1111", "2222", "3333", "4444", "5555", "6666", "7777", "8888", "9999",
		"AAAA", "BBBB",
	}
	weakPasswordParts = []string{
		"password", "123456", "12345678", "qwerty", "abc123", "111111", "letmein", "admin", "welcome", "iloveyou",
	}
)

// ValidateIsraeliID checks a 9 digit national ID and its check digit
func ValidateIsraeliID(id string) FieldResult {
	if strings.TrimSpace(id) == "" {
		return invalid("תעודת זהות היא שדה חובה")
	}
	if len(id) != 9 || !digitsOnly.MatchString(id) {
		return invalid("תעודת זהות חייבת להכיל 9 ספרות בדיוק")
	}
	if IsraeliIDCheckDigit(id[:8]) != int(id[8]-'0') {
		return invalid("מספר תעודת הזהות אינו תקין")
	}
	return valid()
}

// IsraeliIDCheckDigit computes the check digit for the first 8 digits of a national ID
func IsraeliIDCheckDigit(first8 string) int {
	sum := 0
	for i := 0; i < 8 && i < len(first8); i++ {
		product := int(first8[i]-'0') * (i%2 + 1)
		if product > 9 {
			product = product/10 + product%10
		}
		sum += product
	}
	return (10 - sum%10) % 10
}

// ValidateHebrewName checks a full name written in Hebrew
func ValidateHebrewName(name string) FieldResult {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return invalid("שם מלא הוא שדה חובה")
	}
	if trimmed != name {
		return invalid("השם אינו יכול להתחיל או להסתיים ברווח")
	}
	if strings.Contains(name, "  ") {
		return invalid("השם אינו יכול להכיל רווחים כפולים")
	}
	length := utf8.RuneCountInString(trimmed)
	if length < nameMinLength {
		return invalidf("השם חייב להכיל לפחות %d תווים", nameMinLength)
	}
	if length > nameMaxLength {
		return invalidf("השם אינו יכול להכיל יותר מ-%d תווים", nameMaxLength)
	}
	if !hebrewNameChars.MatchString(trimmed) || !hebrewLetter.MatchString(trimmed) {
		return invalid("השם חייב להיות כתוב בעברית בלבד")
	}
	return valid()
}

// ValidateEmail checks address length limits and shape
func ValidateEmail(email string) FieldResult {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("כתובת אימייל היא שדה חובה")
	}
	if len(email) < emailMinLength || len(email) > emailMaxLength {
		return invalidf("אורך כתובת האימייל חייב להיות בין %d ל-%d תווים", emailMinLength, emailMaxLength)
	}
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domainPart, "@") {
		return invalid("כתובת האימייל אינה תקינה")
	}
	if len(local) > emailLocalMax {
		return invalidf("החלק שלפני ה-@ אינו יכול להכיל יותר מ-%d תווים", emailLocalMax)
	}
	if len(domainPart) > emailDomainMax {
		return invalidf("שם הדומיין אינו יכול להכיל יותר מ-%d תווים", emailDomainMax)
	}
	for _, label := range strings.Split(domainPart, ".") {
		if len(label) == 0 || len(label) > emailLabelMax {
			return invalid("שם הדומיין אינו תקין")
		}
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return invalid("כתובת האימייל אינה יכולה להתחיל או להסתיים בנקודה")
	}
	for _, doubled := range []string{"..", "__", "--"} {
		if strings.Contains(email, doubled) {
			return invalid("כתובת האימייל מכילה תווים כפולים לא חוקיים")
		}
	}
	if !emailPattern.MatchString(email) {
		return invalid("כתובת האימייל אינה תקינה")
	}
	return valid()
}

// ValidatePhone checks an optional Israeli mobile, landline or international number
func ValidatePhone(phone string) FieldResult {
	if strings.TrimSpace(phone) == "" {
		return valid()
	}
	digits := phoneSeparators.ReplaceAllString(phone, "")
	if !digitsOnly.MatchString(digits) {
		return invalid("מספר הטלפון יכול להכיל ספרות בלבד")
	}
	if rest, ok := strings.CutPrefix(digits, "972"); ok {
		digits = "0" + rest
	}
	if isMobile(digits) || isLandline(digits) {
		return valid()
	}
	return invalid("מספר הטלפון אינו תקין")
}

func isMobile(digits string) bool {
	if len(digits) != 10 || !strings.HasPrefix(digits, "05") {
		return false
	}
	return slices.Contains(mobileCarriers, digits[2])
}

func isLandline(digits string) bool {
	for _, code := range landlineAreaCodes {
		rest, ok := strings.CutPrefix(digits, "0"+code)
		if ok && (len(rest) == 7 || len(rest) == 8) {
			return true
		}
	}
	return false
}

// ValidateStudentID checks a student identifier
func ValidateStudentID(id string) FieldResult {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("מספר סטודנט הוא שדה חובה")
	}
	if len(id) < studentIDMin || len(id) > studentIDMax {
		return invalidf("מספר סטודנט חייב להכיל בין %d ל-%d תווים", studentIDMin, studentIDMax)
	}
	if !studentIDPattern.MatchString(id) {
		return invalid("מספר סטודנט יכול להכיל אותיות באנגלית וספרות בלבד")
	}
	if slices.Contains(degenerateStudentIDs, strings.ToUpper(id)) {
		return invalid("מספר סטודנט זה אינו חוקי")
	}
	if hasIdenticalRun(strings.ToUpper(id), maxIdenticalRun) {
		return invalidf("מספר סטודנט אינו יכול להכיל %d תווים זהים ברצף", maxIdenticalRun)
	}
	return valid()
}

// ValidateEmployeeID checks a lecturer employee identifier (EMP + 4-6 digits)
func ValidateEmployeeID(id string) FieldResult {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return invalid("מספר עובד הוא שדה חובה")
	}
	m := employeeIDPattern.FindStringSubmatch(id)
	if m == nil {
		return invalidf("מספר עובד חייב להתחיל ב-%s ולאחריו 4-6 ספרות", employeeIDPrefix)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < employeeIDMinimum || n > employeeIDMaximum {
		return invalidf("המספר במספר העובד חייב להיות בין %d ל-%d", employeeIDMinimum, employeeIDMaximum)
	}
	if hasIdenticalRun(m[1], maxIdenticalRun) {
		return invalidf("מספר עובד אינו יכול להכיל %d ספרות זהות ברצף", maxIdenticalRun)
	}
	return valid()
}

// ValidateCourseCode checks a course code (2-4 letters followed by 3-4 digits)
func ValidateCourseCode(code string) FieldResult {
	code = strings.TrimSpace(code)
	if code == "" {
		return invalid("קוד קורס הוא שדה חובה")
	}
	m := courseCodePattern.FindStringSubmatch(code)
	if m == nil {
		return invalid("קוד קורס חייב להכיל 2-4 אותיות באנגלית ולאחריהן 3-4 ספרות")
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < courseNumberMin || n > courseNumberMax {
		return invalidf("המספר בקוד הקורס חייב להיות בין %d ל-%d", courseNumberMin, courseNumberMax)
	}
	return valid()
}

// ValidatePassword checks a new password chosen in the settings flow
func ValidatePassword(password string) FieldResult {
	if password == "" {
		return invalid("סיסמה היא שדה חובה")
	}
	length := utf8.RuneCountInString(password)
	if length < passwordMinLength || length > passwordMaxLength {
		return invalidf("הסיסמה חייבת להכיל בין %d ל-%d תווים", passwordMinLength, passwordMaxLength)
	}
	var hasLetter, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasLetter || !hasDigit || !hasSymbol {
		return invalid("הסיסמה חייבת להכיל אות, ספרה ותו מיוחד")
	}
	lower := strings.ToLower(password)
	for _, weak := range weakPasswordParts {
		if strings.Contains(lower, weak) {
			return invalid("הסיסמה מכילה רצף נפוץ וקל לניחוש")
		}
	}
	return valid()
}

// ValidateRequired checks that a free-text value is present and within bounds
func ValidateRequired(value, label string, minLen, maxLen int) FieldResult {
	value = strings.TrimSpace(value)
	if value == "" {
		return invalidf("%s הוא שדה חובה", label)
	}
	n := utf8.RuneCountInString(value)
	if n < minLen || n > maxLen {
		return invalidf("%s חייב להכיל בין %d ל-%d תווים", label, minLen, maxLen)
	}
	return valid()
}

// ValidateField dispatches to the validator registered for a field name.
// Unknown fields always pass.
func ValidateField(name, value string) FieldResult {
	switch name {
	case "full_name":
		return ValidateHebrewName(value)
	case "national_id":
		return ValidateIsraeliID(value)
	case "email":
		return ValidateEmail(value)
	case "phone":
		return ValidatePhone(value)
	case "student_id":
		return ValidateStudentID(value)
	case "employee_id":
		return ValidateEmployeeID(value)
	case "course_code", "code":
		return ValidateCourseCode(value)
	case "password":
		return ValidatePassword(value)
	default:
		return valid()
	}
}

func hasIdenticalRun(s string, n int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
