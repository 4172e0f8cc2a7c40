// Package importer parses the line-oriented files operators use to load
// accounts and payment cards. Blank lines and lines starting with '#' are
// skipped. Bad lines are reported with their line number; good lines are
// still returned.
package importer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/models"
)

// AccountSeparator splits the fields of an account line.
const AccountSeparator = "----"

// LineError is a parse failure on one input line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// AccountRecord is one parsed account line.
type AccountRecord struct {
	Email string
	models.AccountSecrets
}

func scanLines(r io.Reader, parse func(line string) error) error {
	sc := bufio.NewScanner(r)
	var errs []error
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := parse(line); err != nil {
			errs = append(errs, &LineError{Line: n, Err: err})
		}
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), common.ErrInvalidRecord)
}

// ParseAccounts reads email----password[----backup[----otpseed]] lines.
func ParseAccounts(r io.Reader) ([]AccountRecord, error) {
	var out []AccountRecord
	err := scanLines(r, func(line string) error {
		rec, err := ParseAccountLine(line)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func ParseAccountLine(line string) (AccountRecord, error) {
	parts := strings.Split(line, AccountSeparator)
	if len(parts) < 2 || len(parts) > 4 {
		return AccountRecord{}, invalid("want 2 to 4 fields separated by %q, got %d", AccountSeparator, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	rec := AccountRecord{Email: parts[0]}
	rec.Password = parts[1]
	if len(parts) > 2 {
		rec.BackupContact = parts[2]
	}
	if len(parts) > 3 {
		rec.OTPSeed = strings.ReplaceAll(parts[3], " ", "")
	}

	if !strings.Contains(rec.Email, "@") {
		return AccountRecord{}, invalid("bad email %q", rec.Email)
	}
	if rec.Password == "" {
		return AccountRecord{}, invalid("empty password")
	}
	return rec, nil
}

// ParseCards reads "number month year cvv [| holder | address...]" lines.
func ParseCards(r io.Reader) ([]models.Card, error) {
	var out []models.Card
	err := scanLines(r, func(line string) error {
		card, err := ParseCardLine(line)
		if err != nil {
			return err
		}
		out = append(out, card)
		return nil
	})
	return out, err
}

func ParseCardLine(line string) (models.Card, error) {
	head, tail, _ := strings.Cut(line, "|")
	fields := strings.Fields(head)
	if len(fields) != 4 {
		return models.Card{}, invalid("want number month year cvv, got %d fields", len(fields))
	}

	number := strings.ReplaceAll(fields[0], "-", "")
	if !digits(number, 12, 19) {
		return models.Card{}, invalid("bad card number")
	}

	month, err := strconv.Atoi(fields[1])
	if err != nil || month < 1 || month > 12 {
		return models.Card{}, invalid("bad month %q", fields[1])
	}

	year, err := strconv.Atoi(fields[2])
	switch {
	case err != nil || (len(fields[2]) != 2 && len(fields[2]) != 4):
		return models.Card{}, invalid("bad year %q", fields[2])
	case len(fields[2]) == 2:
		year += 2000
	}

	if !digits(fields[3], 3, 4) {
		return models.Card{}, invalid("bad cvv")
	}

	card := models.Card{Number: number, ExpMonth: month, ExpYear: year, CVV: fields[3]}
	if tail != "" {
		extra := strings.Split(tail, "|")
		card.Holder = strings.TrimSpace(extra[0])
		for _, a := range extra[1:] {
			if a = strings.TrimSpace(a); a != "" {
				card.Address = append(card.Address, a)
			}
		}
	}
	return card, nil
}

func digits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
