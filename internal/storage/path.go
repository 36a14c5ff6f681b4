package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const anonymousOwner = "anonymous"

// BuildExportKey returns the object key of an archived export:
// exports/date=YYYY-MM-DD/<owner>/<id>.<ext>. An empty owner is stored as
// "anonymous".
func BuildExportKey(owner, id, ext string, at time.Time) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = anonymousOwner
	}
	if err := validatePathComponent(owner, "owner"); err != nil {
		return "", err
	}
	if err := validatePathComponent(id, "export id"); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if err := validatePathComponent(ext, "extension"); err != nil {
		return "", err
	}

	ts := at.UTC()
	return path.Join(
		"exports",
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		owner,
		id+"."+ext,
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
